// pattern: Functional Core

// Package model holds the in-memory tree of Project → Worktree → Session
// that the rest of wsx observes and mutates. Model is the single owner of
// this data: every reference into it from outside the package is by
// identifier, never by pointer, so the observer loop can replace whole
// subtrees atomically without anyone else holding a stale pointer.
package model

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// ProjectID content-addresses a project by its canonical absolute path, so
// the same repository always maps to the same ID across restarts.
type ProjectID string

// NewProjectID derives a ProjectID from a canonical absolute path.
func NewProjectID(canonicalPath string) ProjectID {
	sum := xxhash.Sum64String(canonicalPath)
	return ProjectID(formatHex(sum))
}

func formatHex(v uint64) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

// SessionID is the multiplexer session name, namespaced
// wsx/<project>/<worktree>/<alias>, and uniquely identifies a Session
// across both the multiplexer and the Model.
type SessionID string

// SessionStatus is the tagged variant described in §3 of the spec.
type SessionStatus int

const (
	Idle SessionStatus = iota
	Active
	Pending
	MutedStatus
	Gone
)

func (s SessionStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Pending:
		return "pending"
	case MutedStatus:
		return "muted"
	case Gone:
		return "gone"
	default:
		return "idle"
	}
}

// CommitSummary is one entry of a worktree's recent-commit log.
type CommitSummary struct {
	Hash    string
	Message string
}

// FileChange is one entry of a worktree's working-tree diff.
type FileChange struct {
	Path   string
	Status string // e.g. "M", "A", "D", "??"
}

// GitState is the derived git status for a Worktree.
type GitState struct {
	LocalDirty    bool
	Ahead         uint32
	Behind        uint32
	RemoteBranch  string // empty means no upstream configured
	RecentCommits []CommitSummary
	ChangedFiles  []FileChange
	LastFetchAt   time.Time
	FetchInFlight bool
}

// Indicator renders the `~ * ↑N ↓N↓N↑M` prefix used by the tree view. It is
// derived on read, never stored.
func (g GitState) Indicator() string {
	out := ""
	if g.RemoteBranch != "" {
		if g.Behind > 0 && g.Ahead > 0 {
			out += formatArrows(g.Behind, g.Ahead)
		} else if g.Behind > 0 {
			out += "↓" + formatUint(g.Behind)
		} else if g.Ahead > 0 {
			out += "↑" + formatUint(g.Ahead)
		}
	}
	if g.LocalDirty {
		out += "*"
	} else if out == "" {
		out = "~"
	}
	return out
}

func formatArrows(behind, ahead uint32) string {
	return "↓" + formatUint(behind) + "↑" + formatUint(ahead)
}

func formatUint(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// Session is a persistent multiplexer session bound to a worktree.
type Session struct {
	ID                  SessionID
	Alias               string
	CreationCommand     string
	Status              SessionStatus
	Muted               bool
	DismissedAt         *time.Time
	LastActivityProbeAt time.Time
	Tail                []byte

	// PriorStatusRight holds the tmux status-right value observed just
	// before attach, which FinishAttach re-applies after detach. wsx does
	// not itself set status-right on attach.
	PriorStatusRight *string

	// DirtyEpoch is the Epoch at which this entity was last marked dirty
	// by a mutation; probe results whose request epoch predates it are
	// discarded (§5 staleness rule).
	DirtyEpoch Epoch

	consecutiveFailures int
}

// ConsecutiveFailures returns the per-entity probe-failure counter (§4.6).
func (s *Session) ConsecutiveFailures() int { return s.consecutiveFailures }

// ProjectConfig holds the parsed .gtrconfig for a project (§4.9).
type ProjectConfig struct {
	PostCreateHook string
	CopyIncludes   []string
	CopyExcludes   []string
	DefaultBranch  string
	ParseError     error
}

// Worktree is a git worktree rooted under a Project.
type Worktree struct {
	Path                    string
	BranchName              string
	IsMain                  bool
	Alias                   string
	Git                     GitState
	LastGitProbeAt          time.Time
	LastGitProbeFingerprint string
	Sessions                []*Session
	sessionIndex            map[SessionID]int

	DirtyEpoch          Epoch
	consecutiveFailures int
}

// ConsecutiveFailures returns the per-entity probe-failure counter (§4.6).
func (w *Worktree) ConsecutiveFailures() int { return w.consecutiveFailures }

// Session looks up a child session by ID.
func (w *Worktree) Session(id SessionID) (*Session, bool) {
	if i, ok := w.sessionIndex[id]; ok {
		return w.Sessions[i], true
	}
	return nil, false
}

// Project is a git repository the user has added.
type Project struct {
	ID       ProjectID
	RootPath string
	Alias    string
	Order    int
	Config   ProjectConfig
	Missing  bool
	Worktrees []*Worktree

	worktreeIndex map[string]int
}

// DisplayName returns the alias if set, else the last path component.
func (p *Project) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return basename(p.RootPath)
}

// Worktree looks up a child worktree by path.
func (p *Project) Worktree(path string) (*Worktree, bool) {
	if i, ok := p.worktreeIndex[path]; ok {
		return p.Worktrees[i], true
	}
	return nil, false
}

// MainWorktree returns the project's main worktree, which always exists
// once the project has been probed at least once.
func (p *Project) MainWorktree() (*Worktree, bool) {
	for _, wt := range p.Worktrees {
		if wt.IsMain {
			return wt, true
		}
	}
	return nil, false
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// DisplayName returns the alias if set, else the branch name.
func (w *Worktree) DisplayName() string {
	if w.Alias != "" {
		return w.Alias
	}
	return w.BranchName
}

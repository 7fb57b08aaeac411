// pattern: Imperative Shell

// Package observer runs the periodic probes that keep the Model in sync
// with git, the multiplexer and the process table. It owns no state of its
// own and never touches the Model directly: each Run* function fans a
// batch of probes out to goroutines — the same per-item
// goroutine-plus-channel shape devagent's process.Supervisor used to
// supervise a child process, retargeted here to supervise a probe instead
// of a restart loop — and collects the results into a slice the caller
// feeds back into Model's mutator API on the single writer goroutine
// (§4.6, §5).
package observer

import (
	"context"
	"strings"
	"sync"
	"time"

	"devagent/internal/activity"
	"devagent/internal/execx"
	"devagent/internal/gitprobe"
	"devagent/internal/model"
	"devagent/internal/muxprobe"
)

// Default ticker intervals (§4.6).
const (
	GitStatusInterval       = 2 * time.Second
	GitFetchInterval        = 60 * time.Second
	SessionActiveInterval   = 500 * time.Millisecond
	SessionIdleInterval     = 2 * time.Second
	MaxConsecutiveFailures  = 5
)

// WorktreeTarget names one worktree to probe, carrying the epoch the
// request was issued at so the caller can discard a result that arrives
// after the worktree was marked dirty by a user action.
type WorktreeTarget struct {
	ProjectID    model.ProjectID
	Path         string
	RequestEpoch model.Epoch
}

// SessionTarget names one session to probe for activity, carrying the
// signals needed that the Model already has (mute/dismiss) and the
// previous tick's observations (pane length in bytes, foreground command,
// and whether the pane was producing output). went_quiet is computed from
// PrevProducing; PrevForegroundComm is carried but not consulted.
type SessionTarget struct {
	ProjectID          model.ProjectID
	WorktreePath       string
	SessionID          model.SessionID
	RequestEpoch       model.Epoch
	Muted              bool
	DismissedAt        *time.Time
	PrevPaneLen        int
	PrevForegroundComm string
	PrevProducing       bool
}

// GitStatusResult is the outcome of one worktree's status probe.
type GitStatusResult struct {
	ProjectID    model.ProjectID
	Path         string
	RequestEpoch model.Epoch
	State        model.GitState
	Fingerprint  string
	Err          error
}

// RunGitStatus probes every target's git status concurrently. Concurrency
// is already bounded by the execx.Executor shared with probe, so this
// simply fans out one goroutine per target and waits.
func RunGitStatus(ctx context.Context, probe *gitprobe.Probe, targets []WorktreeTarget) []GitStatusResult {
	results := make([]GitStatusResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target WorktreeTarget) {
			defer wg.Done()
			state, fp, err := probe.Status(ctx, target.Path)
			results[i] = GitStatusResult{
				ProjectID:    target.ProjectID,
				Path:         target.Path,
				RequestEpoch: target.RequestEpoch,
				State:        state,
				Fingerprint:  fp,
				Err:          err,
			}
		}(i, target)
	}
	wg.Wait()
	return results
}

// GitFetchResult is the outcome of one worktree's background fetch.
type GitFetchResult struct {
	ProjectID    model.ProjectID
	Path         string
	RequestEpoch model.Epoch
	Err          error
}

// RunGitFetch runs `git fetch` for every target concurrently (§4.6
// GitFetchTicker, a slower sibling of GitStatusTicker).
func RunGitFetch(ctx context.Context, probe *gitprobe.Probe, targets []WorktreeTarget) []GitFetchResult {
	results := make([]GitFetchResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target WorktreeTarget) {
			defer wg.Done()
			err := probe.Fetch(ctx, target.Path)
			results[i] = GitFetchResult{ProjectID: target.ProjectID, Path: target.Path, RequestEpoch: target.RequestEpoch, Err: err}
		}(i, target)
	}
	wg.Wait()
	return results
}

// SessionListResult is the outcome of listing the multiplexer's sessions
// for one worktree's namespace.
type SessionListResult struct {
	ProjectID    model.ProjectID
	Path         string
	RequestEpoch model.Epoch
	Sessions     []model.SessionSeed
	Err          error
}

// RunSessionList lists all live multiplexer sessions once and partitions
// them by the `wsx/<project>/<worktree>/` namespace prefix each target
// expects, since tmux has no concept of a worktree-scoped listing (§3
// SessionId namespacing).
func RunSessionList(ctx context.Context, probe *muxprobe.Probe, targets []WorktreeTarget) []SessionListResult {
	all, err := probe.ListSessions(ctx)
	results := make([]SessionListResult, len(targets))
	for i, target := range targets {
		if err != nil {
			results[i] = SessionListResult{ProjectID: target.ProjectID, Path: target.Path, RequestEpoch: target.RequestEpoch, Err: err}
			continue
		}
		prefix := string(sessionNamespace(target.ProjectID, target.Path))
		var seeds []model.SessionSeed
		for _, s := range all {
			if strings.HasPrefix(s.Name, prefix) {
				seeds = append(seeds, model.SessionSeed{ID: model.SessionID(s.Name)})
			}
		}
		results[i] = SessionListResult{ProjectID: target.ProjectID, Path: target.Path, RequestEpoch: target.RequestEpoch, Sessions: seeds}
	}
	return results
}

func sessionNamespace(projectID model.ProjectID, worktreePath string) string {
	return "wsx/" + string(projectID) + "/" + lastPathComponent(worktreePath) + "/"
}

func lastPathComponent(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ActivityResult is one session's freshly classified status, plus the raw
// signals the next tick needs to compute went_quiet.
type ActivityResult struct {
	ProjectID          model.ProjectID
	WorktreePath       string
	SessionID          model.SessionID
	RequestEpoch       model.Epoch
	Status             activity.SessionStatus
	Tail               []byte
	ForegroundComm     string
	Producing          bool
	Err                error
}

// RunActivityProbe captures each target session's pane and foreground
// process, derives went_quiet by comparing against the previous tick's
// signals carried on SessionTarget, and classifies the result (§4.4).
func RunActivityProbe(ctx context.Context, probe *muxprobe.Probe, classifier *activity.Classifier, targets []SessionTarget, now time.Time) []ActivityResult {
	results := make([]ActivityResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target SessionTarget) {
			defer wg.Done()
			results[i] = probeOne(ctx, probe, classifier, target, now)
		}(i, target)
	}
	wg.Wait()
	return results
}

func probeOne(ctx context.Context, probe *muxprobe.Probe, classifier *activity.Classifier, target SessionTarget, now time.Time) ActivityResult {
	result := ActivityResult{
		ProjectID:    target.ProjectID,
		WorktreePath: target.WorktreePath,
		SessionID:    target.SessionID,
		RequestEpoch: target.RequestEpoch,
	}

	sessionName := string(target.SessionID)
	sessions, err := probe.ListSessions(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	var hasBell bool
	for _, s := range sessions {
		if s.Name == sessionName {
			hasBell = s.HasBell
		}
	}

	pane, err := probe.CapturePane(ctx, sessionName, 200)
	if err != nil {
		result.Err = err
		return result
	}
	result.Tail = pane

	fg, err := probe.ForegroundProcess(ctx, sessionName)
	if err == nil {
		result.ForegroundComm = fg.Comm
	}

	producing := len(pane) != target.PrevPaneLen
	result.Producing = producing
	wentQuiet := target.PrevProducing && !producing

	var delta uint64
	if producing {
		delta = 1
	}

	result.Status = classifier.Classify(activity.Signals{
		PaneBytesDelta: delta,
		LastOutputAt:   now,
		HasBellFlag:    hasBell,
		ForegroundComm: result.ForegroundComm,
		WentQuiet:      wentQuiet,
		Muted:          target.Muted,
		DismissedAt:    target.DismissedAt,
		Now:            now,
	})
	return result
}

// SessionTickInterval implements the SessionTicker backoff rule: 500ms
// while any session is Active, 2s once everything has settled to
// Idle/Muted (§4.6).
func SessionTickInterval(anyActive bool) time.Duration {
	if anyActive {
		return SessionActiveInterval
	}
	return SessionIdleInterval
}

// MuxReady reports whether tmux itself is reachable before the first tick.
func MuxReady(ctx context.Context, exec *execx.Executor) bool {
	return muxprobe.New(exec).IsAvailable(ctx)
}

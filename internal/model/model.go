// pattern: Imperative Shell

package model

import "time"

// Epoch is the monotonic counter stamped on every Model mutation (§3
// Ownership, §5 Ordering guarantees).
type Epoch uint64

// Model owns the entire Project → Worktree → Session tree. It is mutated
// by exactly one goroutine (the event loop, §5); it holds no locks.
type Model struct {
	epoch        Epoch
	projects     []*Project
	projectIndex map[ProjectID]int
}

// NewModel creates an empty Model at epoch 0.
func NewModel() *Model {
	return &Model{projectIndex: make(map[ProjectID]int)}
}

// Epoch returns the current model epoch.
func (m *Model) Epoch() Epoch { return m.epoch }

func (m *Model) bump() Epoch {
	m.epoch++
	return m.epoch
}

// Projects returns the projects in display order. Callers must not retain
// the slice or pointers across the next mutation.
func (m *Model) Projects() []*Project { return m.projects }

// Project looks up a project by ID.
func (m *Model) Project(id ProjectID) (*Project, bool) {
	if i, ok := m.projectIndex[id]; ok {
		return m.projects[i], true
	}
	return nil, false
}

// AddProject inserts a new project at the end of the order, or returns the
// existing one unchanged if rootPath is already present.
func (m *Model) AddProject(id ProjectID, rootPath, alias string) (*Project, Epoch) {
	if p, ok := m.projectIndex[id]; ok {
		return m.projects[p], m.epoch
	}
	p := &Project{
		ID:            id,
		RootPath:      rootPath,
		Alias:         alias,
		Order:         len(m.projects),
		worktreeIndex: make(map[string]int),
	}
	m.projectIndex[id] = len(m.projects)
	m.projects = append(m.projects, p)
	return p, m.bump()
}

// RemoveProject deletes a project and everything under it. Lifecycle per
// §3: only ever called from an explicit user delete, never automatically.
func (m *Model) RemoveProject(id ProjectID) Epoch {
	i, ok := m.projectIndex[id]
	if !ok {
		return m.epoch
	}
	m.projects = append(m.projects[:i], m.projects[i+1:]...)
	delete(m.projectIndex, id)
	for j := i; j < len(m.projects); j++ {
		m.projectIndex[m.projects[j].ID] = j
	}
	return m.bump()
}

// SetProjectMissing flips the Missing flag (§3: root_path disappears ⇒
// Missing, not removed).
func (m *Model) SetProjectMissing(id ProjectID, missing bool) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	if p.Missing == missing {
		return m.epoch
	}
	p.Missing = missing
	return m.bump()
}

// SetProjectConfig replaces a project's parsed .gtrconfig.
func (m *Model) SetProjectConfig(id ProjectID, cfg ProjectConfig) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	p.Config = cfg
	return m.bump()
}

// SetProjectAlias sets or clears a project's display alias.
func (m *Model) SetProjectAlias(id ProjectID, alias string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	p.Alias = alias
	return m.bump()
}

// SetProjectOrder persists an explicit reorder of a project among its
// siblings. Involution law: applying the inverse permutation restores the
// original order (§8 round-trip laws).
func (m *Model) SetProjectOrder(id ProjectID, order int) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	p.Order = order
	return m.bump()
}

// WorktreeSeed is what GitProbe hands to the Model after listing
// worktrees; the Model decides what to keep and what to drop.
type WorktreeSeed struct {
	Path       string
	BranchName string
	IsMain     bool
}

// ReconcileWorktrees replaces a project's worktree set with what GitProbe
// discovered, matching by path so existing GitState and Sessions survive a
// refresh (§9: "lets the observer replace whole subtrees atomically").
// Exactly one discovered entry must have IsMain set; invariant enforced by
// the caller (GitProbe only ever reports one main worktree).
func (m *Model) ReconcileWorktrees(id ProjectID, discovered []WorktreeSeed) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}

	kept := make([]*Worktree, 0, len(discovered))
	keptIndex := make(map[string]int, len(discovered))
	changed := false

	for _, seed := range discovered {
		if existing, ok := p.Worktree(seed.Path); ok {
			if existing.BranchName != seed.BranchName || existing.IsMain != seed.IsMain {
				existing.BranchName = seed.BranchName
				existing.IsMain = seed.IsMain
				changed = true
			}
			keptIndex[seed.Path] = len(kept)
			kept = append(kept, existing)
			continue
		}
		wt := &Worktree{
			Path:         seed.Path,
			BranchName:   seed.BranchName,
			IsMain:       seed.IsMain,
			sessionIndex: make(map[SessionID]int),
		}
		keptIndex[seed.Path] = len(kept)
		kept = append(kept, wt)
		changed = true
	}

	if len(kept) != len(p.Worktrees) {
		changed = true
	}

	p.Worktrees = kept
	p.worktreeIndex = keptIndex

	if !changed {
		return m.epoch
	}
	return m.bump()
}

// UpdateGitState applies a probe result to a worktree's GitState, subject
// to the staleness rule in §5: if requestEpoch predates the worktree's
// DirtyEpoch, the result is a stale overwrite of a user action and is
// discarded.
func (m *Model) UpdateGitState(id ProjectID, worktreePath string, state GitState, fingerprint string, requestEpoch Epoch) (applied bool, epoch Epoch) {
	p, ok := m.Project(id)
	if !ok {
		return false, m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return false, m.epoch
	}
	if requestEpoch < wt.DirtyEpoch {
		return false, m.epoch
	}
	wt.Git = state
	wt.LastGitProbeAt = time.Now()
	wt.LastGitProbeFingerprint = fingerprint
	wt.consecutiveFailures = 0
	return true, m.bump()
}

// MarkWorktreeDirty stamps a worktree's DirtyEpoch with the current epoch
// after bumping it, forcing any in-flight probe for it to be discarded and
// signaling ObserverLoop to re-probe immediately (§4.6, §5).
func (m *Model) MarkWorktreeDirty(id ProjectID, worktreePath string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	e := m.bump()
	wt.DirtyEpoch = e
	return e
}

// RecordWorktreeProbeFailure increments the consecutive-failure counter
// without mutating GitState — probes never propagate errors (§7).
func (m *Model) RecordWorktreeProbeFailure(id ProjectID, worktreePath string) {
	p, ok := m.Project(id)
	if !ok {
		return
	}
	if wt, ok := p.Worktree(worktreePath); ok {
		wt.consecutiveFailures++
	}
}

// RemoveWorktree deletes a worktree and its sessions from the Model.
func (m *Model) RemoveWorktree(id ProjectID, path string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	i, ok := p.worktreeIndex[path]
	if !ok {
		return m.epoch
	}
	p.Worktrees = append(p.Worktrees[:i], p.Worktrees[i+1:]...)
	delete(p.worktreeIndex, path)
	for j := i; j < len(p.Worktrees); j++ {
		p.worktreeIndex[p.Worktrees[j].Path] = j
	}
	return m.bump()
}

// SetWorktreeAlias sets or clears a worktree's display alias.
func (m *Model) SetWorktreeAlias(id ProjectID, worktreePath, alias string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	wt.Alias = alias
	return m.bump()
}

// SessionSeed is what MuxProbe hands to the Model after listing sessions.
type SessionSeed struct {
	ID              SessionID
	Alias           string
	CreationCommand string
}

// ReconcileSessions merges a multiplexer session listing into a worktree's
// Sessions. A session absent from discovered is marked Gone on its first
// missing tick and removed on the next, unless its ID is in protect (an
// optimistic placeholder whose creation is still in flight, §4.8) — this
// implements the two-tick removal described in §3.
func (m *Model) ReconcileSessions(id ProjectID, worktreePath string, discovered []SessionSeed, protect map[SessionID]bool) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}

	discoveredIndex := make(map[SessionID]SessionSeed, len(discovered))
	for _, s := range discovered {
		discoveredIndex[s.ID] = s
	}

	kept := make([]*Session, 0, len(wt.Sessions))
	keptIndex := make(map[SessionID]int, len(wt.Sessions))
	changed := false

	for _, sess := range wt.Sessions {
		if _, present := discoveredIndex[sess.ID]; present {
			keptIndex[sess.ID] = len(kept)
			kept = append(kept, sess)
			continue
		}
		if protect[sess.ID] {
			keptIndex[sess.ID] = len(kept)
			kept = append(kept, sess)
			continue
		}
		if sess.Status == Gone {
			changed = true // drop on the second missing tick
			continue
		}
		sess.Status = Gone
		keptIndex[sess.ID] = len(kept)
		kept = append(kept, sess)
		changed = true
	}

	for _, seed := range discovered {
		if _, already := keptIndex[seed.ID]; already {
			continue
		}
		s := &Session{
			ID:              seed.ID,
			Alias:           seed.Alias,
			CreationCommand: seed.CreationCommand,
			Status:          Idle,
		}
		keptIndex[s.ID] = len(kept)
		kept = append(kept, s)
		changed = true
	}

	wt.Sessions = kept
	wt.sessionIndex = keptIndex

	if !changed {
		return m.epoch
	}
	return m.bump()
}

// InsertPlaceholderSession adds an optimistic `Pending`-placeholder session
// ahead of multiplexer confirmation (§4.8 Optimistic updates).
func (m *Model) InsertPlaceholderSession(id ProjectID, worktreePath string, seed SessionSeed) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	if _, exists := wt.Session(seed.ID); exists {
		return m.epoch
	}
	s := &Session{ID: seed.ID, Alias: seed.Alias, CreationCommand: seed.CreationCommand, Status: Pending}
	wt.sessionIndex[s.ID] = len(wt.Sessions)
	wt.Sessions = append(wt.Sessions, s)
	return m.bump()
}

// RevertPlaceholderSession removes an optimistic placeholder after its
// reconciliation against the next probe failed (§4.8).
func (m *Model) RevertPlaceholderSession(id ProjectID, worktreePath string, sessionID SessionID) Epoch {
	return m.RemoveSession(id, worktreePath, sessionID)
}

// RemoveSession deletes a session from a worktree.
func (m *Model) RemoveSession(id ProjectID, worktreePath string, sessionID SessionID) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	i, ok := wt.sessionIndex[sessionID]
	if !ok {
		return m.epoch
	}
	wt.Sessions = append(wt.Sessions[:i], wt.Sessions[i+1:]...)
	delete(wt.sessionIndex, sessionID)
	for j := i; j < len(wt.Sessions); j++ {
		wt.sessionIndex[wt.Sessions[j].ID] = j
	}
	return m.bump()
}

// UpdateSessionStatus applies an ActivityClassifier result, subject to the
// same staleness rule as UpdateGitState.
func (m *Model) UpdateSessionStatus(id ProjectID, worktreePath string, sessionID SessionID, status SessionStatus, requestEpoch Epoch) (applied bool, epoch Epoch) {
	p, ok := m.Project(id)
	if !ok {
		return false, m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return false, m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return false, m.epoch
	}
	if requestEpoch < sess.DirtyEpoch {
		return false, m.epoch
	}
	if sess.Status == status {
		return true, m.epoch
	}
	sess.Status = status
	sess.consecutiveFailures = 0
	return true, m.bump()
}

// SetSessionTail stores the latest pane capture for preview rendering.
func (m *Model) SetSessionTail(id ProjectID, worktreePath string, sessionID SessionID, tail []byte, requestEpoch Epoch) (applied bool, epoch Epoch) {
	p, ok := m.Project(id)
	if !ok {
		return false, m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return false, m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return false, m.epoch
	}
	if requestEpoch < sess.DirtyEpoch {
		return false, m.epoch
	}
	sess.Tail = tail
	sess.LastActivityProbeAt = time.Now()
	return true, m.bump()
}

// MarkSessionDirty is the session-scoped analogue of MarkWorktreeDirty,
// used when a user action (send-keys, attach) should invalidate in-flight
// probes for that session.
func (m *Model) MarkSessionDirty(id ProjectID, worktreePath string, sessionID SessionID) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return m.epoch
	}
	e := m.bump()
	sess.DirtyEpoch = e
	return e
}

// SetMuted toggles mute, which the ActivityClassifier treats as the
// highest-priority rule (§4.4 rule 1).
func (m *Model) SetMuted(id ProjectID, worktreePath string, sessionID SessionID, muted bool) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return m.epoch
	}
	sess.Muted = muted
	return m.bump()
}

// SetDismissed records (or clears, passing nil) the dismiss timestamp used
// by ActivityClassifier rule 3.
func (m *Model) SetDismissed(id ProjectID, worktreePath string, sessionID SessionID, at *time.Time) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return m.epoch
	}
	sess.DismissedAt = at
	return m.bump()
}

// SetSessionAlias sets or clears a session's display alias.
func (m *Model) SetSessionAlias(id ProjectID, worktreePath string, sessionID SessionID, alias string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return m.epoch
	}
	sess.Alias = alias
	return m.bump()
}

// SetSessionPriorStatusRight records the tmux status-right value observed
// just before an attach, for FinishAttach to re-apply on detach.
func (m *Model) SetSessionPriorStatusRight(id ProjectID, worktreePath string, sessionID SessionID, value *string) Epoch {
	p, ok := m.Project(id)
	if !ok {
		return m.epoch
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return m.epoch
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return m.epoch
	}
	sess.PriorStatusRight = value
	return m.bump()
}

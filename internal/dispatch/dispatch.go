// pattern: Imperative Shell

// Package dispatch implements the ActionDispatcher state machine: it
// sequences user-initiated mutations (new worktree, new session, attach,
// send keys, ...) against gitprobe/muxprobe/config, then folds the result
// back into the Model. It never runs on its own goroutine — the tui
// package invokes it from inside a bubbletea command, and its Phase is
// read back into the view on every render (§4.8).
package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"devagent/internal/config"
	"devagent/internal/gitprobe"
	"devagent/internal/logging"
	"devagent/internal/model"
	"devagent/internal/muxprobe"
)

// Phase is the dispatcher's current interaction mode.
type Phase int

const (
	Idle Phase = iota
	PromptOpen
	ConfirmOpen
	ExternalInFlight
	Attached
	Popup
)

// PromptKind distinguishes the many single-line prompts the dispatcher
// can open; the tui package renders a label from this and collects input.
type PromptKind int

const (
	PromptNone PromptKind = iota
	PromptAddProjectPath
	PromptNewWorktreeBranch
	PromptNewSessionAlias
	PromptNewSessionCommand
	PromptSendCommand
	PromptSetAlias
	PromptGitPullRebaseBranch
	PromptGitMergeFrom
	PromptGitMergeInto
)

// ConfirmKind distinguishes the destructive actions that require
// confirmation before running.
type ConfirmKind int

const (
	ConfirmNone ConfirmKind = iota
	ConfirmDelete
	ConfirmCleanMerged
	ConfirmGitMergeFrom
	ConfirmGitMergeInto
)

// PopupKind distinguishes the multi-key popups (git ops, config viewer).
type PopupKind int

const (
	PopupNone PopupKind = iota
	PopupGit
	PopupConfigViewer
	PopupLogView
)

// State is the dispatcher's tagged-union interaction state (§4.8).
type State struct {
	Phase       Phase
	PromptKind  PromptKind
	Buffer      string
	ConfirmKind ConfirmKind
	PopupKind   PopupKind
	Target      Selection
	AttachedID  model.SessionID
	StatusLine  string
	dismissedAt map[model.SessionID]time.Time
}

// Selection identifies the tree node an in-progress action targets.
type Selection struct {
	ProjectID    model.ProjectID
	WorktreePath string
	SessionID    model.SessionID
}

// Dispatcher owns the interaction State and the probes/stores it sequences
// actions against.
type Dispatcher struct {
	state  State
	model  *model.Model
	git    *gitprobe.Probe
	mux    *muxprobe.Probe
	cfg    *config.Store
	logger *logging.ScopedLogger
}

// New creates a Dispatcher wired to the shared Model and probes.
func New(m *model.Model, git *gitprobe.Probe, mux *muxprobe.Probe, cfg *config.Store, logger *logging.ScopedLogger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Dispatcher{
		model:  m,
		git:    git,
		mux:    mux,
		cfg:    cfg,
		logger: logger,
		state:  State{Phase: Idle, dismissedAt: make(map[model.SessionID]time.Time)},
	}
}

// State returns the current interaction state for rendering.
func (d *Dispatcher) State() State { return d.state }

// OpenPrompt transitions Idle -> PromptOpen for the named prompt, seeded
// with an initial buffer (often empty).
func (d *Dispatcher) OpenPrompt(kind PromptKind, target Selection, initial string) {
	d.state = State{Phase: PromptOpen, PromptKind: kind, Target: target, Buffer: initial, dismissedAt: d.state.dismissedAt}
}

// OpenConfirm transitions Idle -> ConfirmOpen.
func (d *Dispatcher) OpenConfirm(kind ConfirmKind, target Selection) {
	d.state = State{Phase: ConfirmOpen, ConfirmKind: kind, Target: target, dismissedAt: d.state.dismissedAt}
}

// OpenPopup transitions Idle -> Popup.
func (d *Dispatcher) OpenPopup(kind PopupKind, target Selection) {
	d.state = State{Phase: Popup, PopupKind: kind, Target: target, dismissedAt: d.state.dismissedAt}
}

// UpdateBuffer appends to or replaces the current prompt's buffer.
func (d *Dispatcher) UpdateBuffer(buffer string) {
	d.state.Buffer = buffer
}

// Cancel returns to Idle from any non-Idle phase, discarding the buffer.
func (d *Dispatcher) Cancel() {
	d.state = State{Phase: Idle, dismissedAt: d.state.dismissedAt}
}

// BeginExternal transitions into ExternalInFlight while an action's
// external command sequence runs; the tui package calls this before
// launching the corresponding bubbletea command.
func (d *Dispatcher) BeginExternal(target Selection) {
	d.state = State{Phase: ExternalInFlight, Target: target, dismissedAt: d.state.dismissedAt}
}

// Finish returns to Idle, optionally leaving a transient status line (used
// to surface an optimistic-update reconciliation failure, §4.8).
func (d *Dispatcher) Finish(statusLine string) {
	d.state = State{Phase: Idle, StatusLine: statusLine, dismissedAt: d.state.dismissedAt}
}

// BeginAttach transitions into Attached for the duration of a blocking
// mux.attach call.
func (d *Dispatcher) BeginAttach(sessionID model.SessionID) {
	d.state = State{Phase: Attached, AttachedID: sessionID, dismissedAt: d.state.dismissedAt}
}

// AddProject validates path is a git repository, persists it to the global
// config, and seeds the Model with its discovered worktrees (§4.8 `p`).
func (d *Dispatcher) AddProject(ctx context.Context, path string) (model.ProjectID, error) {
	if _, err := d.git.ListWorktrees(ctx, path); err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	cfg := d.cfg.Get()
	cfg.AddProject(baseName(path), path)
	d.cfg.Update(cfg)

	id := model.NewProjectID(path)
	d.model.AddProject(id, path, "")
	seeds, err := d.git.ListWorktrees(ctx, path)
	if err != nil {
		return id, err
	}
	d.model.ReconcileWorktrees(id, seeds)
	d.model.SetProjectConfig(id, d.git.LoadProjectConfig(ctx, path))
	return id, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// NewWorktree runs `git worktree add`, reconciles the project's worktrees
// so the new one enters the tree, then runs the postCreate hook and the
// copy rules (§4.8 `w`). No placeholder is shown while git runs: the
// worktree appears only after `git worktree add` has succeeded.
func (d *Dispatcher) NewWorktree(ctx context.Context, projectID model.ProjectID, repoPath, branch, baseBranch string) error {
	wtPath, err := d.git.CreateWorktree(ctx, repoPath, branch, baseBranch)
	if err != nil {
		return err
	}
	seeds, err := d.git.ListWorktrees(ctx, repoPath)
	if err != nil {
		return err
	}
	d.model.ReconcileWorktrees(projectID, seeds)

	p, ok := d.model.Project(projectID)
	if !ok {
		return fmt.Errorf("dispatch: project %s vanished during worktree creation", projectID)
	}
	wt, ok := p.Worktree(wtPath)
	if !ok {
		return nil
	}
	if p.Config.PostCreateHook != "" {
		if _, err := d.git.RunHook(ctx, wt.Path, p.Config.PostCreateHook); err != nil {
			d.logger.Warn("postCreate hook failed", "worktree", wt.Path, "err", err)
		}
	}
	if len(p.Config.CopyIncludes) > 0 {
		if err := d.git.CopyFiles(repoPath, wt.Path, p.Config.CopyIncludes, p.Config.CopyExcludes); err != nil {
			d.logger.Warn("copy rules failed", "worktree", wt.Path, "err", err)
		}
	}
	return nil
}

// NewSession creates a detached session namespaced wsx/<project>/<worktree>/<alias>,
// tagging it with @wsx_project/@wsx_alias options for discovery (§4.8 `s`).
func (d *Dispatcher) NewSession(ctx context.Context, projectID model.ProjectID, worktreePath, alias, command string) (model.SessionID, error) {
	p, ok := d.model.Project(projectID)
	if !ok {
		return "", fmt.Errorf("dispatch: unknown project %s", projectID)
	}
	name := d.mux.UniqueSessionName(ctx, fmt.Sprintf("wsx/%s/%s/%s", p.ID, baseName(worktreePath), alias))
	id := model.SessionID(name)

	d.model.InsertPlaceholderSession(projectID, worktreePath, model.SessionSeed{ID: id, Alias: alias, CreationCommand: command})

	if err := d.mux.NewSession(ctx, name, worktreePath, command, nil); err != nil {
		d.model.RevertPlaceholderSession(projectID, worktreePath, id)
		return "", err
	}
	_ = d.mux.SetOption(ctx, name, "@wsx_project", string(p.ID))
	_ = d.mux.SetOption(ctx, name, "@wsx_alias", alias)
	return id, nil
}

// PrepareAttach snapshots the session's status-right (so FinishAttach can
// restore it) and returns the *exec.Cmd that hands the terminal to tmux.
// The caller runs it via tea.ExecProcess, since attach is uncancellable and
// needs the real terminal, not a supervised execx.Executor call (§4.8 `Enter`).
func (d *Dispatcher) PrepareAttach(ctx context.Context, target Selection) *exec.Cmd {
	prior, _ := d.mux.GetOption(ctx, string(target.SessionID), "status-right")
	d.model.SetSessionPriorStatusRight(target.ProjectID, target.WorktreePath, target.SessionID, &prior)
	return muxprobe.AttachCommand(string(target.SessionID))
}

// FinishAttach marks the session and its worktree dirty so the next probe
// tick re-reads fresh state, and re-applies the status-right value
// PrepareAttach recorded, when that value is non-empty. wsx does not set
// status-right on attach, so nothing else is restored.
func (d *Dispatcher) FinishAttach(ctx context.Context, target Selection) {
	d.model.MarkSessionDirty(target.ProjectID, target.WorktreePath, target.SessionID)
	d.model.MarkWorktreeDirty(target.ProjectID, target.WorktreePath)
	p, ok := d.model.Project(target.ProjectID)
	if !ok {
		return
	}
	wt, ok := p.Worktree(target.WorktreePath)
	if !ok {
		return
	}
	sess, ok := wt.Session(target.SessionID)
	if !ok || sess.PriorStatusRight == nil || *sess.PriorStatusRight == "" {
		return
	}
	_ = d.mux.SetOption(ctx, string(target.SessionID), "status-right", *sess.PriorStatusRight)
}

// SendCommand sends text to a session's active pane followed by Enter
// (§4.8 `S`).
func (d *Dispatcher) SendCommand(ctx context.Context, target Selection, text string) error {
	d.model.MarkSessionDirty(target.ProjectID, target.WorktreePath, target.SessionID)
	return d.mux.SendKeys(ctx, string(target.SessionID), text, true)
}

// SendInterrupt delivers SIGINT to a session's foreground process (§4.8 `C`).
func (d *Dispatcher) SendInterrupt(ctx context.Context, target Selection) error {
	return d.mux.SendSignal(ctx, string(target.SessionID), "SIGINT")
}

// ClearBell clears a session's sticky tmux bell flag, called once its
// status leaves Pending so a stale alert can't re-trigger the Pending
// classification after the dismiss grace window expires (§4.4 rule 4,
// §8 scenario 1).
func (d *Dispatcher) ClearBell(ctx context.Context, target Selection) error {
	return d.mux.ClearBell(ctx, string(target.SessionID))
}

// mute sets the in-memory mute flag and, when the project is still known,
// persists it into [projects].mutes so it survives a restart (§4.9/§6).
func (d *Dispatcher) mute(target Selection) {
	d.model.SetMuted(target.ProjectID, target.WorktreePath, target.SessionID, true)
	p, ok := d.model.Project(target.ProjectID)
	if !ok {
		return
	}
	cfg := d.cfg.Get()
	cfg.SetMuted(p.RootPath, string(target.SessionID), true)
	d.cfg.Update(cfg)
}

// DismissOrMute implements the two-stage `x` key: the first press records
// a dismiss timestamp; a second press within 2s, or any press once the
// session is already not Pending, mutes it outright (§4.8 `x`).
func (d *Dispatcher) DismissOrMute(target Selection, now time.Time, currentlyPending bool) {
	if !currentlyPending {
		d.mute(target)
		return
	}
	if last, ok := d.state.dismissedAt[target.SessionID]; ok && now.Sub(last) < 2*time.Second {
		delete(d.state.dismissedAt, target.SessionID)
		d.mute(target)
		return
	}
	d.state.dismissedAt[target.SessionID] = now
	d.model.SetDismissed(target.ProjectID, target.WorktreePath, target.SessionID, &now)
}

// DeleteSession kills a session and removes it from the Model (§4.8 `d`).
func (d *Dispatcher) DeleteSession(ctx context.Context, target Selection) error {
	if err := d.mux.KillSession(ctx, string(target.SessionID)); err != nil {
		return err
	}
	d.model.RemoveSession(target.ProjectID, target.WorktreePath, target.SessionID)
	return nil
}

// DeleteWorktree removes a worktree from git and the Model (§4.8 `d`).
func (d *Dispatcher) DeleteWorktree(ctx context.Context, target Selection, repoPath, branch string) error {
	if err := d.git.RemoveWorktree(ctx, repoPath, target.WorktreePath, branch); err != nil {
		return err
	}
	d.model.RemoveWorktree(target.ProjectID, target.WorktreePath)
	return nil
}

// DeleteProject removes a project from the config store and the Model.
func (d *Dispatcher) DeleteProject(projectID model.ProjectID, path string) {
	cfg := d.cfg.Get()
	cfg.RemoveProject(path)
	d.cfg.Update(cfg)
	d.model.RemoveProject(projectID)
}

// PreviewCleanMerged computes the branches CleanMerged would remove,
// without mutating anything, so the `c` confirm dialog can show the user
// what it is about to delete before they commit (§4.8 `c`).
func (d *Dispatcher) PreviewCleanMerged(ctx context.Context, repoPath, defaultBranch string) ([]string, error) {
	candidates, err := d.git.MergeableWorktrees(ctx, repoPath, defaultBranch)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(candidates))
	for i, wt := range candidates {
		names[i] = wt.BranchName
	}
	return names, nil
}

// CleanMerged removes every non-main, clean worktree whose branch merged
// into the project's default branch (§4.8 `c`).
func (d *Dispatcher) CleanMerged(ctx context.Context, projectID model.ProjectID, repoPath, defaultBranch string) ([]string, error) {
	removed, err := d.git.CleanMerged(ctx, repoPath, defaultBranch)
	if err != nil {
		return nil, err
	}
	seeds, err := d.git.ListWorktrees(ctx, repoPath)
	if err == nil {
		d.model.ReconcileWorktrees(projectID, seeds)
	}
	return removed, nil
}

// SetAlias persists and applies an alias to a project, worktree or session.
func (d *Dispatcher) SetAlias(target Selection, kind SelectionAliasKind, projectPath, branch, alias string) {
	switch kind {
	case AliasProject:
		d.model.SetProjectAlias(target.ProjectID, alias)
		cfg := d.cfg.Get()
		cfg.SetProjectAlias(projectPath, alias)
		d.cfg.Update(cfg)
	case AliasWorktree:
		d.model.SetWorktreeAlias(target.ProjectID, target.WorktreePath, alias)
		cfg := d.cfg.Get()
		cfg.SetAlias(projectPath, branch, alias)
		d.cfg.Update(cfg)
	case AliasSession:
		d.model.SetSessionAlias(target.ProjectID, target.WorktreePath, target.SessionID, alias)
	}
}

// SelectionAliasKind distinguishes which tree level SetAlias targets.
type SelectionAliasKind int

const (
	AliasProject SelectionAliasKind = iota
	AliasWorktree
	AliasSession
)

// GitPull, GitPush, GitPullRebase, GitMergeFrom and GitMergeInto back the
// git popup's sub-keys (§4.8 `g`). Each marks the worktree dirty first so a
// probe already in flight can't overwrite the outcome with stale state.
func (d *Dispatcher) GitPull(ctx context.Context, target Selection) error {
	d.model.MarkWorktreeDirty(target.ProjectID, target.WorktreePath)
	return d.git.Pull(ctx, target.WorktreePath)
}

func (d *Dispatcher) GitPush(ctx context.Context, target Selection) error {
	d.model.MarkWorktreeDirty(target.ProjectID, target.WorktreePath)
	return d.git.Push(ctx, target.WorktreePath)
}

func (d *Dispatcher) GitPullRebase(ctx context.Context, target Selection) error {
	d.model.MarkWorktreeDirty(target.ProjectID, target.WorktreePath)
	return d.git.PullRebase(ctx, target.WorktreePath)
}

// GitMergeFrom merges branch into the target worktree's current branch
// (§4.8 `g` sub-menu "merge from"); the caller is responsible for the
// local_dirty confirmation precondition before invoking this.
func (d *Dispatcher) GitMergeFrom(ctx context.Context, target Selection, branch string) error {
	d.model.MarkWorktreeDirty(target.ProjectID, target.WorktreePath)
	return d.git.Merge(ctx, target.WorktreePath, branch)
}

// GitMergeInto merges the target worktree's branch into another worktree
// identified by path (§4.8 `g` sub-menu "merge into").
func (d *Dispatcher) GitMergeInto(ctx context.Context, target Selection, sourceBranch, destWorktreePath string) error {
	d.model.MarkWorktreeDirty(target.ProjectID, destWorktreePath)
	return d.git.Merge(ctx, destWorktreePath, sourceBranch)
}

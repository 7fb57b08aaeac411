// pattern: Imperative Shell

package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"devagent/internal/config"
	"devagent/internal/dispatch"
	"devagent/internal/gitprobe"
	"devagent/internal/model"
	"devagent/internal/selection"
)

// applyConfigAliases folds an externally-reloaded config.Config's per-branch
// aliases and mutes onto the matching live projects, without touching
// anything ReconcileWorktrees/ReconcileSessions already own.
func (m *Model) applyConfigAliases(cfg config.Config) {
	for _, entry := range cfg.Projects {
		id := model.NewProjectID(entry.Path)
		p, ok := m.domain.Project(id)
		if !ok {
			continue
		}
		for _, wt := range p.Worktrees {
			if alias, ok := entry.Aliases[wt.BranchName]; ok && alias != wt.Alias {
				m.domain.SetWorktreeAlias(id, wt.Path, alias)
			}
			for _, sess := range wt.Sessions {
				muted, ok := entry.Mutes[string(sess.ID)]
				if ok && muted != sess.Muted {
					m.domain.SetMuted(id, wt.Path, sess.ID, muted)
				}
			}
		}
	}
}

// pendingFields carries state that spans two chained prompts (alias+command
// for a new session, or the kind/path needed to persist an alias) without
// growing dispatch.State's Buffer into a multi-field struct it doesn't
// otherwise need.
type pendingFields struct {
	alias                 string
	aliasKind             dispatch.SelectionAliasKind
	projectPath           string
	branch                string
	repoPath              string
	baseBranch            string
	deleteKind            selection.Kind
	mergeBranch           string
	mergeDest             string
	cleanMergedCandidates []string
}

func (m *Model) runExternal(target dispatch.Selection, fn func(ctx context.Context) (string, error)) tea.Cmd {
	m.disp.BeginExternal(target)
	return func() tea.Msg {
		line, err := fn(context.Background())
		if err != nil {
			return externalDoneMsg{statusLine: friendlyGitError(err)}
		}
		return externalDoneMsg{statusLine: line}
	}
}

// friendlyGitError renders a classified *gitprobe.ActionError with a short
// human message instead of git's raw stderr, falling back to the error's
// own text for anything the classifier couldn't place (§4.2/§7).
func friendlyGitError(err error) string {
	var ae *gitprobe.ActionError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	switch ae.Kind {
	case gitprobe.NonFastForward:
		return ae.Op + " rejected: remote has diverged (non-fast-forward)"
	case gitprobe.Conflict:
		return ae.Op + " stopped: conflict, resolve manually"
	case gitprobe.UncommittedChanges:
		return ae.Op + " blocked: commit or stash local changes first"
	case gitprobe.Network:
		return ae.Op + " failed: network unreachable"
	default:
		return ae.Error()
	}
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.disp.Cancel()
		m.promptInput.Blur()
		return m, nil
	case "enter":
		return m.submitPrompt()
	case "tab":
		if m.disp.State().PromptKind == dispatch.PromptAddProjectPath && len(m.discovered) > 0 {
			cand := m.discovered[m.discoverIdx%len(m.discovered)]
			m.discoverIdx++
			m.promptInput.SetValue(cand.Path)
			m.disp.UpdateBuffer(cand.Path)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.promptInput, cmd = m.promptInput.Update(msg)
	m.disp.UpdateBuffer(m.promptInput.Value())
	return m, cmd
}

func (m *Model) openPrompt(kind dispatch.PromptKind, target dispatch.Selection, initial string) tea.Cmd {
	m.disp.OpenPrompt(kind, target, initial)
	m.promptInput.SetValue(initial)
	m.promptInput.Focus()
	return textinput.Blink
}

func (m *Model) submitPrompt() (tea.Model, tea.Cmd) {
	st := m.disp.State()
	value := st.Buffer
	target := st.Target

	switch st.PromptKind {
	case dispatch.PromptAddProjectPath:
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			_, err := m.disp.AddProject(ctx, value)
			return "", err
		})

	case dispatch.PromptNewWorktreeBranch:
		repoPath, baseBranch := m.pending.repoPath, m.pending.baseBranch
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.NewWorktree(ctx, target.ProjectID, repoPath, value, baseBranch)
		})

	case dispatch.PromptNewSessionAlias:
		m.pending.alias = value
		return m, m.openPrompt(dispatch.PromptNewSessionCommand, target, "")

	case dispatch.PromptNewSessionCommand:
		alias := m.pending.alias
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			_, err := m.disp.NewSession(ctx, target.ProjectID, target.WorktreePath, alias, value)
			return "", err
		})

	case dispatch.PromptSendCommand:
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.SendCommand(ctx, target, value)
		})

	case dispatch.PromptSetAlias:
		m.disp.SetAlias(target, m.pending.aliasKind, m.pending.projectPath, m.pending.branch, value)
		m.disp.Finish("")
		return m, nil

	case dispatch.PromptGitMergeFrom:
		branch := value
		if m.worktreeDirty(target.ProjectID, target.WorktreePath) {
			m.pending.mergeBranch = branch
			m.disp.OpenConfirm(dispatch.ConfirmGitMergeFrom, target)
			return m, nil
		}
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitMergeFrom(ctx, target, branch)
		})

	case dispatch.PromptGitMergeInto:
		destPath := value
		if m.worktreeDirty(target.ProjectID, destPath) {
			m.pending.mergeDest = destPath
			m.disp.OpenConfirm(dispatch.ConfirmGitMergeInto, target)
			return m, nil
		}
		sourceBranch := m.pending.branch
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitMergeInto(ctx, target, sourceBranch, destPath)
		})
	}
	m.disp.Finish("")
	return m, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.disp.State()
	switch msg.String() {
	case "y", "enter":
		return m.runConfirmed(st)
	default:
		m.disp.Cancel()
		return m, nil
	}
}

func (m *Model) runConfirmed(st dispatch.State) (tea.Model, tea.Cmd) {
	target := st.Target
	switch st.ConfirmKind {
	case dispatch.ConfirmDelete:
		switch m.pending.deleteKind {
		case selection.SessionKind:
			return m, m.runExternal(target, func(ctx context.Context) (string, error) {
				return "", m.disp.DeleteSession(ctx, target)
			})
		case selection.WorktreeKind:
			repoPath, branch := m.pending.repoPath, m.pending.branch
			return m, m.runExternal(target, func(ctx context.Context) (string, error) {
				return "", m.disp.DeleteWorktree(ctx, target, repoPath, branch)
			})
		case selection.ProjectKind:
			path := m.pending.repoPath
			m.disp.DeleteProject(target.ProjectID, path)
			m.disp.Finish("")
			return m, nil
		}
	case dispatch.ConfirmCleanMerged:
		repoPath, defaultBranch := m.pending.repoPath, m.pending.branch
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			removed, err := m.disp.CleanMerged(ctx, target.ProjectID, repoPath, defaultBranch)
			if err != nil {
				return "", err
			}
			if len(removed) == 0 {
				return "nothing to clean", nil
			}
			return "cleaned " + joinComma(removed), nil
		})
	case dispatch.ConfirmGitMergeFrom:
		branch := m.pending.mergeBranch
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitMergeFrom(ctx, target, branch)
		})
	case dispatch.ConfirmGitMergeInto:
		destPath, sourceBranch := m.pending.mergeDest, m.pending.branch
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitMergeInto(ctx, target, sourceBranch, destPath)
		})
	}
	m.disp.Finish("")
	return m, nil
}

// worktreeDirty reports whether the worktree at path currently has
// uncommitted local changes, per the last probed GitState. Used to gate
// merge_from/merge_into behind a confirmation instead of running silently
// on top of a dirty tree (§4.8 `g` merge from/into).
func (m *Model) worktreeDirty(projectID model.ProjectID, path string) bool {
	p, ok := m.domain.Project(projectID)
	if !ok {
		return false
	}
	wt, ok := p.Worktree(path)
	if !ok {
		return false
	}
	return wt.Git.LocalDirty
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func (m *Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.disp.State()
	if msg.String() == "esc" {
		m.disp.Cancel()
		return m, nil
	}
	if st.PopupKind != dispatch.PopupGit {
		if msg.String() != "" {
			m.disp.Cancel()
		}
		return m, nil
	}
	target := st.Target
	switch msg.String() {
	case "p":
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitPull(ctx, target)
		})
	case "P":
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitPush(ctx, target)
		})
	case "r":
		return m, m.runExternal(target, func(ctx context.Context) (string, error) {
			return "", m.disp.GitPullRebase(ctx, target)
		})
	case "m":
		return m, m.openPrompt(dispatch.PromptGitMergeFrom, target, "")
	case "M":
		return m, m.openPrompt(dispatch.PromptGitMergeInto, target, "")
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.sel.SetFilter("")
		m.searchInput.SetValue("")
		m.searchInput.Blur()
		return m, nil
	case "enter":
		m.searching = false
		m.searchInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.sel.SetFilter(m.searchInput.Value())
	return m, cmd
}

func (m *Model) startNewWorktree(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	projectID := m.projectIDForCursor(cursor, has)
	if projectID == "" {
		return m, nil
	}
	p, ok := m.domain.Project(projectID)
	if !ok {
		return m, nil
	}
	base := p.Config.DefaultBranch
	if base == "" {
		base = "main"
	}
	m.pending = pendingFields{repoPath: p.RootPath, baseBranch: base}
	target := dispatch.Selection{ProjectID: projectID}
	return m, m.openPrompt(dispatch.PromptNewWorktreeBranch, target, "")
}

func (m *Model) startNewSession(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has || cursor.Kind == selection.ProjectKind {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath}
	return m, m.openPrompt(dispatch.PromptNewSessionAlias, target, "")
}

func (m *Model) startSendCommand(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has || cursor.Kind != selection.SessionKind {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
	return m, m.openPrompt(dispatch.PromptSendCommand, target, "")
}

func (m *Model) sendInterrupt(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has || cursor.Kind != selection.SessionKind {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
	return m, m.runExternal(target, func(ctx context.Context) (string, error) {
		return "", m.disp.SendInterrupt(ctx, target)
	})
}

// dismissOrMute runs the two-stage `x` key and, since dismissing or muting
// is exactly the action meant to extinguish a session's alert, also clears
// its tmux bell flag so a stale alert can't re-trigger Pending once the
// dismiss grace window expires (§4.4 rule 4, §8 scenario 1).
func (m *Model) dismissOrMute(cursor selection.Entry, has bool) tea.Cmd {
	if !has || cursor.Kind != selection.SessionKind {
		return nil
	}
	sess := m.sessionAt(cursor)
	if sess == nil {
		return nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
	m.disp.DismissOrMute(target, time.Now(), sess.Status == model.Pending)
	return m.clearBell(target)
}

// clearBell fires a best-effort, fire-and-forget tmux bell clear in the
// background; its result doesn't reach the status line since a failure
// here (e.g. the session already gone) isn't user-actionable.
func (m *Model) clearBell(target dispatch.Selection) tea.Cmd {
	disp := m.disp
	return func() tea.Msg {
		_ = disp.ClearBell(context.Background(), target)
		return nil
	}
}

func (m *Model) startDelete(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
	m.pending.deleteKind = cursor.Kind
	switch cursor.Kind {
	case selection.ProjectKind:
		p, ok := m.domain.Project(cursor.ProjectID)
		if !ok {
			return m, nil
		}
		m.pending.repoPath = p.RootPath
	case selection.WorktreeKind:
		p, ok := m.domain.Project(cursor.ProjectID)
		if !ok {
			return m, nil
		}
		wt, ok := p.Worktree(cursor.WorktreePath)
		if !ok {
			return m, nil
		}
		m.pending.repoPath = p.RootPath
		m.pending.branch = wt.BranchName
	}
	m.disp.OpenConfirm(dispatch.ConfirmDelete, target)
	return m, nil
}

// startCleanMerged computes the mergeable-worktree preview before opening
// the confirm dialog, so the `c` confirm line can show exactly what is
// about to be removed instead of asking the user to confirm blind (§4.8
// `c`: per-worktree mergeability check -> confirm list -> remove each).
func (m *Model) startCleanMerged(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	projectID := m.projectIDForCursor(cursor, has)
	if projectID == "" {
		return m, nil
	}
	p, ok := m.domain.Project(projectID)
	if !ok {
		return m, nil
	}
	base := p.Config.DefaultBranch
	if base == "" {
		base = "main"
	}
	repoPath := p.RootPath
	target := dispatch.Selection{ProjectID: projectID}
	disp := m.disp
	return m, func() tea.Msg {
		candidates, err := disp.PreviewCleanMerged(context.Background(), repoPath, base)
		return cleanMergedPreviewMsg{target: target, repoPath: repoPath, defaultBranch: base, candidates: candidates, err: err}
	}
}

func (m *Model) startGitPopup(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has || cursor.Kind != selection.WorktreeKind {
		return m, nil
	}
	p, ok := m.domain.Project(cursor.ProjectID)
	if ok {
		if wt, ok := p.Worktree(cursor.WorktreePath); ok {
			m.pending.branch = wt.BranchName
		}
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath}
	m.disp.OpenPopup(dispatch.PopupGit, target)
	return m, nil
}

func (m *Model) startSetAlias(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
	initial := ""
	switch cursor.Kind {
	case selection.ProjectKind:
		p, ok := m.domain.Project(cursor.ProjectID)
		if !ok {
			return m, nil
		}
		m.pending = pendingFields{aliasKind: dispatch.AliasProject, projectPath: p.RootPath}
		initial = p.Alias
	case selection.WorktreeKind:
		p, ok := m.domain.Project(cursor.ProjectID)
		if !ok {
			return m, nil
		}
		wt, ok := p.Worktree(cursor.WorktreePath)
		if !ok {
			return m, nil
		}
		m.pending = pendingFields{aliasKind: dispatch.AliasWorktree, projectPath: p.RootPath, branch: wt.BranchName}
		initial = wt.Alias
	case selection.SessionKind:
		sess := m.sessionAt(cursor)
		if sess == nil {
			return m, nil
		}
		m.pending = pendingFields{aliasKind: dispatch.AliasSession}
		initial = sess.Alias
	}
	return m, m.openPrompt(dispatch.PromptSetAlias, target, initial)
}

func (m *Model) startConfigViewer(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	projectID := m.projectIDForCursor(cursor, has)
	if projectID == "" {
		return m, nil
	}
	target := dispatch.Selection{ProjectID: projectID}
	m.disp.OpenPopup(dispatch.PopupConfigViewer, target)
	return m, nil
}

func (m *Model) projectIDForCursor(cursor selection.Entry, has bool) model.ProjectID {
	if !has {
		return ""
	}
	return cursor.ProjectID
}

// pattern: Imperative Shell

package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"devagent/internal/activity"
	"devagent/internal/config"
	"devagent/internal/dispatch"
	"devagent/internal/logging"
	"devagent/internal/model"
	"devagent/internal/observer"
	"devagent/internal/selection"
)

type (
	gitStatusTickMsg    time.Time
	gitFetchTickMsg     time.Time
	sessionTickMsg      time.Time
	gitStatusResultMsg  []observer.GitStatusResult
	gitFetchResultMsg   []observer.GitFetchResult
	sessionListResultMsg []observer.SessionListResult
	activityResultMsg   []observer.ActivityResult
	clearStatusMsg       struct{}
	externalDoneMsg      struct {
		statusLine string
	}
	attachDoneMsg struct {
		target dispatch.Selection
		err    error
	}
	configChangedMsg config.Config
	logEntryMsg      logging.LogEntry
	cleanMergedPreviewMsg struct {
		target        dispatch.Selection
		repoPath      string
		defaultBranch string
		candidates    []string
		err           error
	}
)

// Update is bubbletea's event loop entry point: the sole writer onto the
// domain Model (§5), applying probe results and dispatcher transitions in
// arrival order.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case gitStatusTickMsg:
		return m, tea.Batch(m.runGitStatus(), m.scheduleGitStatusTick())
	case gitFetchTickMsg:
		return m, tea.Batch(m.runGitFetch(), m.scheduleGitFetchTick())
	case sessionTickMsg:
		return m, tea.Batch(m.runActivityProbe(), m.runSessionList(), m.scheduleSessionTick())

	case gitStatusResultMsg:
		for _, r := range msg {
			if r.Err != nil {
				m.domain.RecordWorktreeProbeFailure(r.ProjectID, r.Path)
				continue
			}
			m.domain.UpdateGitState(r.ProjectID, r.Path, r.State, r.Fingerprint, r.RequestEpoch)
		}
		return m, nil

	case gitFetchResultMsg:
		for _, r := range msg {
			if r.Err != nil {
				m.domain.RecordWorktreeProbeFailure(r.ProjectID, r.Path)
			}
		}
		return m, nil

	case sessionListResultMsg:
		for _, r := range msg {
			if r.Err != nil {
				m.domain.RecordWorktreeProbeFailure(r.ProjectID, r.Path)
				continue
			}
			m.domain.ReconcileSessions(r.ProjectID, r.Path, r.Sessions, m.protectedPlaceholders())
		}
		return m, nil

	case activityResultMsg:
		m.anyActive = false
		var clearBellCmds []tea.Cmd
		for _, r := range msg {
			if r.Err != nil {
				continue
			}
			m.prevPaneLen[r.SessionID] = len(r.Tail)
			m.prevForegroundComm[r.SessionID] = r.ForegroundComm
			m.prevProducing[r.SessionID] = r.Producing
			wasPending := m.sessionStatusByID(r.ProjectID, r.WorktreePath, r.SessionID) == model.Pending
			status := mapActivityStatus(r.Status)
			m.domain.UpdateSessionStatus(r.ProjectID, r.WorktreePath, r.SessionID, status, r.RequestEpoch)
			m.domain.SetSessionTail(r.ProjectID, r.WorktreePath, r.SessionID, r.Tail, r.RequestEpoch)
			if status == model.Active {
				m.anyActive = true
			}
			if wasPending && status != model.Pending {
				clearBellCmds = append(clearBellCmds, m.clearBell(dispatch.Selection{ProjectID: r.ProjectID, WorktreePath: r.WorktreePath, SessionID: r.SessionID}))
			}
		}
		return m, tea.Batch(clearBellCmds...)

	case cleanMergedPreviewMsg:
		if msg.err != nil {
			return m, m.setStatus("clean merged: " + msg.err.Error())
		}
		if len(msg.candidates) == 0 {
			return m, m.setStatus("nothing to clean")
		}
		m.pending.repoPath = msg.repoPath
		m.pending.branch = msg.defaultBranch
		m.pending.cleanMergedCandidates = msg.candidates
		m.disp.OpenConfirm(dispatch.ConfirmCleanMerged, msg.target)
		return m, nil

	case externalDoneMsg:
		m.disp.Finish(msg.statusLine)
		return m, m.setStatus(msg.statusLine)

	case attachDoneMsg:
		m.disp.FinishAttach(context.Background(), msg.target)
		line := ""
		if msg.err != nil {
			line = "attach failed: " + msg.err.Error()
		}
		m.disp.Finish(line)
		return m, tea.Batch(m.setStatus(line), tea.EnterAltScreen)

	case configChangedMsg:
		m.applyConfigAliases(config.Config(msg))
		m.refreshDiscovered()
		return m, m.watchConfigChanges()

	case logEntryMsg:
		m.logEntries = append(m.logEntries, logging.LogEntry(msg))
		if len(m.logEntries) > logViewCap {
			m.logEntries = m.logEntries[len(m.logEntries)-logViewCap:]
		}
		return m, m.watchLogs()

	case clearStatusMsg:
		if time.Now().After(m.statusExpiry) {
			m.statusMessage = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func mapActivityStatus(s activity.SessionStatus) model.SessionStatus {
	switch s {
	case activity.Active:
		return model.Active
	case activity.Pending:
		return model.Pending
	case activity.Muted:
		return model.MutedStatus
	default:
		return model.Idle
	}
}

func (m *Model) protectedPlaceholders() map[model.SessionID]bool {
	out := map[model.SessionID]bool{}
	st := m.disp.State()
	if st.Phase == dispatch.ExternalInFlight {
		out[st.Target.SessionID] = true
	}
	return out
}

func (m *Model) setStatus(line string) tea.Cmd {
	m.statusMessage = line
	if line == "" {
		return nil
	}
	m.statusExpiry = time.Now().Add(statusLineDuration)
	return tea.Tick(statusLineDuration, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

func (m *Model) flat() []selection.Entry { return m.sel.Flatten(m.domain) }

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.disp.State().Phase {
	case dispatch.PromptOpen:
		return m.handlePromptKey(msg)
	case dispatch.ConfirmOpen:
		return m.handleConfirmKey(msg)
	case dispatch.Popup:
		return m.handlePopupKey(msg)
	case dispatch.ExternalInFlight, dispatch.Attached:
		return m, nil
	}

	if m.searching {
		return m.handleSearchKey(msg)
	}

	defer m.touchSelection()

	flat := m.flat()
	m.sel.Reconcile(flat)
	cursor, hasCursor := m.sel.Cursor()

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "j", "down":
		m.sel.MoveDown(flat)
		m.sel.EnsureVisible(m.flat(), m.treeHeight())
	case "k", "up":
		m.sel.MoveUp(flat)
		m.sel.EnsureVisible(m.flat(), m.treeHeight())
	case "h", "left":
		m.collapseCursor(cursor, hasCursor)
	case "l", "right":
		m.expandCursor(cursor, hasCursor)
	case "[":
		m.sel.JumpPrevProject(flat)
	case "]":
		m.sel.JumpNextProject(flat)
	case "/":
		m.searching = true
		m.searchInput.SetValue(m.sel.Filter())
		m.searchInput.Focus()
		return m, textinput.Blink
	case "enter":
		return m.handleEnter(cursor, hasCursor)
	case "p":
		m.disp.OpenPrompt(dispatch.PromptAddProjectPath, dispatch.Selection{}, "")
		m.promptInput.SetValue("")
		if len(m.discovered) > 0 {
			m.promptInput.Placeholder = "path (tab to browse discovered repos)"
		} else {
			m.promptInput.Placeholder = "path"
		}
		m.promptInput.Focus()
		return m, textinput.Blink
	case "w":
		return m.startNewWorktree(cursor, hasCursor)
	case "s":
		return m.startNewSession(cursor, hasCursor)
	case "S":
		return m.startSendCommand(cursor, hasCursor)
	case "C":
		return m.sendInterrupt(cursor, hasCursor)
	case "x":
		return m, m.dismissOrMute(cursor, hasCursor)
	case "n":
		m.sel.JumpNextMatching(flat, m.isPending)
	case "N":
		m.jumpPrevMatching(flat, m.isPending)
	case "a":
		m.sel.JumpNextMatching(flat, m.isActive)
	case "d":
		return m.startDelete(cursor, hasCursor)
	case "c":
		return m.startCleanMerged(cursor, hasCursor)
	case "g":
		return m.startGitPopup(cursor, hasCursor)
	case "r":
		return m.startSetAlias(cursor, hasCursor)
	case "e":
		return m.startConfigViewer(cursor, hasCursor)
	case "L":
		m.disp.OpenPopup(dispatch.PopupLogView, dispatch.Selection{})
		return m, nil
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) treeHeight() int {
	return ComputeLayout(m.width, m.height).Sidebar.Height
}

func (m *Model) isPending(e selection.Entry) bool {
	sess := m.sessionAt(e)
	return sess != nil && sess.Status == model.Pending
}

func (m *Model) isActive(e selection.Entry) bool {
	sess := m.sessionAt(e)
	return sess != nil && sess.Status == model.Active
}

// sessionStatusByID looks up a session's current status by identifier,
// used to detect a Pending->non-Pending transition before UpdateSessionStatus
// overwrites it with the freshly classified status (§4.4 rule 4).
func (m *Model) sessionStatusByID(projectID model.ProjectID, worktreePath string, sessionID model.SessionID) model.SessionStatus {
	p, ok := m.domain.Project(projectID)
	if !ok {
		return model.Idle
	}
	wt, ok := p.Worktree(worktreePath)
	if !ok {
		return model.Idle
	}
	sess, ok := wt.Session(sessionID)
	if !ok {
		return model.Idle
	}
	return sess.Status
}

func (m *Model) sessionAt(e selection.Entry) *model.Session {
	if e.Kind != selection.SessionKind {
		return nil
	}
	p, ok := m.domain.Project(e.ProjectID)
	if !ok {
		return nil
	}
	wt, ok := p.Worktree(e.WorktreePath)
	if !ok {
		return nil
	}
	sess, ok := wt.Session(e.SessionID)
	if !ok {
		return nil
	}
	return sess
}

// jumpPrevMatching is JumpNextMatching's mirror: selection.Engine exposes
// no reverse variant since nothing else in wsx needs one, so it is kept
// local to the view layer rather than growing the package's public surface.
func (m *Model) jumpPrevMatching(flat []selection.Entry, pred func(selection.Entry) bool) {
	if len(flat) == 0 {
		return
	}
	cursor, ok := m.sel.Cursor()
	start := indexOfEntry(flat, cursor, ok)
	n := len(flat)
	for step := 1; step <= n; step++ {
		i := ((start-step)%n + n) % n
		if flat[i].Kind == selection.SessionKind && pred(flat[i]) {
			m.sel.SetCursor(flat[i])
			return
		}
	}
}

func indexOfEntry(flat []selection.Entry, entry selection.Entry, has bool) int {
	if !has {
		return 0
	}
	for i, f := range flat {
		if f == entry {
			return i
		}
	}
	return 0
}

func (m *Model) collapseCursor(cursor selection.Entry, has bool) {
	if !has {
		return
	}
	switch cursor.Kind {
	case selection.ProjectKind:
		m.sel.ToggleProjectExpanded(cursor.ProjectID)
	case selection.WorktreeKind:
		m.sel.ToggleWorktreeExpanded(cursor.ProjectID, cursor.WorktreePath)
	}
}

func (m *Model) expandCursor(cursor selection.Entry, has bool) {
	m.collapseCursor(cursor, has)
}

func (m *Model) handleEnter(cursor selection.Entry, has bool) (tea.Model, tea.Cmd) {
	if !has {
		return m, nil
	}
	switch cursor.Kind {
	case selection.ProjectKind:
		m.sel.ToggleProjectExpanded(cursor.ProjectID)
		return m, nil
	case selection.WorktreeKind:
		m.sel.ToggleWorktreeExpanded(cursor.ProjectID, cursor.WorktreePath)
		return m, nil
	case selection.SessionKind:
		target := dispatch.Selection{ProjectID: cursor.ProjectID, WorktreePath: cursor.WorktreePath, SessionID: cursor.SessionID}
		cmd := m.disp.PrepareAttach(context.Background(), target)
		m.disp.BeginAttach(cursor.SessionID)
		return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
			return attachDoneMsg{target: target, err: err}
		})
	}
	return m, nil
}

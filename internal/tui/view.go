// pattern: Functional Core

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"devagent/internal/dispatch"
	"devagent/internal/selection"
)

const helpText = "j/k move  h/l collapse  enter attach  p add  w worktree  s session  " +
	"S send  C ^C  x mute  n/N pending  a active  d delete  c clean  g git  r alias  e config  L logs  / search  q quit"

// View renders the four regions described in §6: a top search line, a left
// sidebar tree, a right preview pane showing the last lines of the selected
// session's output, and a bottom status line. A prompt, confirm or popup state overlays the status
// line instead of opening a separate modal, matching the single-pane
// terminal surface the spec describes.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	layout := ComputeLayout(m.width, m.height)

	search := m.renderSearchLine(layout.Search.Width)
	sidebar := m.renderSidebar(layout.Sidebar)
	preview := m.renderPreview(layout.Preview)
	status := m.renderStatusLine(layout.StatusBar.Width)

	middle := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, preview)
	return lipgloss.JoinVertical(lipgloss.Left, search, middle, status)
}

func (m *Model) renderSearchLine(width int) string {
	if m.searching {
		return lipgloss.NewStyle().Width(width).Render(m.searchInput.View())
	}
	if f := m.sel.Filter(); f != "" {
		return m.styles.DimStyle().Width(width).Render("/" + f)
	}
	return lipgloss.NewStyle().Width(width).Render("")
}

func (m *Model) renderSidebar(region Region) string {
	flat := m.flat()
	m.sel.Reconcile(flat)
	cursor, hasCursor := m.sel.Cursor()

	rows := make([]string, 0, len(flat))
	for _, entry := range flat {
		selected := hasCursor && entry == cursor
		rows = append(rows, m.renderRow(entry, selected, region.Width))
	}

	offset := m.sel.ScrollOffset()
	if offset > len(rows) {
		offset = len(rows)
	}
	visible := rows[offset:]
	if len(visible) > region.Height {
		visible = visible[:region.Height]
	}
	for len(visible) < region.Height {
		visible = append(visible, "")
	}

	body := strings.Join(visible, "\n")
	return lipgloss.NewStyle().Width(region.Width).Height(region.Height).Render(body)
}

func (m *Model) renderRow(entry selection.Entry, selected bool, width int) string {
	var text string
	switch entry.Kind {
	case selection.ProjectKind:
		text = m.renderProjectRow(entry)
	case selection.WorktreeKind:
		text = m.renderWorktreeRow(entry)
	case selection.SessionKind:
		text = m.renderSessionRow(entry)
	}
	if selected {
		return m.styles.CursorStyle().Width(width).Render(text)
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func (m *Model) renderProjectRow(entry selection.Entry) string {
	p, ok := m.domain.Project(entry.ProjectID)
	if !ok {
		return ""
	}
	name := p.DisplayName()
	if p.Missing {
		return m.styles.ErrorStyle().Render(name + " (missing)")
	}
	return m.styles.TitleStyle().MarginBottom(0).Render(name)
}

func (m *Model) renderWorktreeRow(entry selection.Entry) string {
	p, ok := m.domain.Project(entry.ProjectID)
	if !ok {
		return ""
	}
	wt, ok := p.Worktree(entry.WorktreePath)
	if !ok {
		return ""
	}
	indicator := m.styles.GitIndicatorStyle(wt.Git.LocalDirty, wt.Git.Ahead > 0 && wt.Git.Behind > 0).Render(wt.Git.Indicator())
	return fmt.Sprintf("  %s %s", wt.DisplayName(), indicator)
}

func (m *Model) renderSessionRow(entry selection.Entry) string {
	p, ok := m.domain.Project(entry.ProjectID)
	if !ok {
		return ""
	}
	wt, ok := p.Worktree(entry.WorktreePath)
	if !ok {
		return ""
	}
	sess, ok := wt.Session(entry.SessionID)
	if !ok {
		return ""
	}
	name := sess.Alias
	if name == "" {
		name = string(sess.ID)
	}
	dot := m.styles.StatusStyle(sess.Status.String()).Render("●")
	return fmt.Sprintf("    %s %s", dot, name)
}

func (m *Model) renderPreview(region Region) string {
	if m.disp.State().Phase == dispatch.Popup && m.disp.State().PopupKind == dispatch.PopupLogView {
		return m.renderLogView(region)
	}
	cursor, hasCursor := m.sel.Cursor()
	if !hasCursor || cursor.Kind != selection.SessionKind {
		return lipgloss.NewStyle().Width(region.Width).Height(region.Height).Render("")
	}
	sess := m.sessionAt(cursor)
	if sess == nil {
		return lipgloss.NewStyle().Width(region.Width).Height(region.Height).Render("")
	}

	lines := strings.Split(string(sess.Tail), "\n")
	if len(lines) > region.Height {
		lines = lines[len(lines)-region.Height:]
	}
	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Width(region.Width).Height(region.Height).Render(body)
}

// renderLogView fills the preview pane with the most recent log entries
// drained off the log manager's channel sink, newest at the bottom (§9,
// the `L` popup promised in the ambient logging stack).
func (m *Model) renderLogView(region Region) string {
	lines := make([]string, 0, len(m.logEntries))
	for _, e := range m.logEntries {
		lines = append(lines, e.String())
	}
	if len(lines) > region.Height {
		lines = lines[len(lines)-region.Height:]
	}
	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Width(region.Width).Height(region.Height).Render(body)
}

func (m *Model) renderStatusLine(width int) string {
	st := m.disp.State()
	switch st.Phase {
	case dispatch.PromptOpen:
		return lipgloss.NewStyle().Width(width).Render(promptLabel(st.PromptKind) + m.promptInput.View())
	case dispatch.ConfirmOpen:
		return m.styles.AccentStyle().Width(width).Render(m.confirmLabel(st.ConfirmKind) + " (y/n)")
	case dispatch.Popup:
		return m.styles.AccentStyle().Width(width).Render(popupLabel(st.PopupKind))
	case dispatch.ExternalInFlight:
		return lipgloss.NewStyle().Width(width).Render(m.spin.View() + " working...")
	case dispatch.Attached:
		return lipgloss.NewStyle().Width(width).Render("attached")
	}
	if m.showHelp {
		return m.styles.HelpStyle().MarginTop(0).Width(width).Render(helpText)
	}
	if m.statusMessage != "" {
		return m.styles.InfoStyle().Width(width).Render(m.statusMessage)
	}
	return m.styles.DimStyle().Width(width).Render("? for help")
}

func promptLabel(kind dispatch.PromptKind) string {
	switch kind {
	case dispatch.PromptAddProjectPath:
		return "add project path: "
	case dispatch.PromptNewWorktreeBranch:
		return "new worktree branch: "
	case dispatch.PromptNewSessionAlias:
		return "session alias: "
	case dispatch.PromptNewSessionCommand:
		return "session command: "
	case dispatch.PromptSendCommand:
		return "send: "
	case dispatch.PromptSetAlias:
		return "alias: "
	case dispatch.PromptGitPullRebaseBranch:
		return "rebase onto: "
	case dispatch.PromptGitMergeFrom:
		return "merge from branch: "
	case dispatch.PromptGitMergeInto:
		return "merge into worktree path: "
	}
	return "> "
}

// confirmLabel renders the confirm line. For ConfirmCleanMerged it names
// the exact branches the previously-computed preview is about to remove,
// instead of asking the user to confirm a sweep blind (§4.8 `c`).
func (m *Model) confirmLabel(kind dispatch.ConfirmKind) string {
	switch kind {
	case dispatch.ConfirmDelete:
		return "delete?"
	case dispatch.ConfirmCleanMerged:
		if len(m.pending.cleanMergedCandidates) == 0 {
			return "remove every merged worktree?"
		}
		return "remove " + joinComma(m.pending.cleanMergedCandidates) + "?"
	case dispatch.ConfirmGitMergeFrom, dispatch.ConfirmGitMergeInto:
		return "target has uncommitted changes — merge anyway?"
	}
	return "confirm?"
}

func popupLabel(kind dispatch.PopupKind) string {
	switch kind {
	case dispatch.PopupGit:
		return "git: p pull  P push  r pull-rebase  m merge-from  M merge-into  esc close"
	case dispatch.PopupConfigViewer:
		return "esc to close"
	case dispatch.PopupLogView:
		return "logs — esc to close"
	}
	return ""
}

package tui

import (
	"strings"
	"testing"
	"time"

	"devagent/internal/dispatch"
	"devagent/internal/logging"
)

func TestView_RendersWithoutPanicAcrossSizes(t *testing.T) {
	sizes := []struct{ w, h int }{{80, 24}, {20, 5}, {200, 60}, {1, 1}}
	for _, sz := range sizes {
		m := newTestModel(t)
		seedProject(m, "p1", "/repo", "/repo", "main")
		seedSession(m, "p1", "/repo", "s1", "alpha")
		m.width, m.height = sz.w, sz.h

		out := m.View()
		if out == "" && !m.quitting {
			t.Errorf("View() at %dx%d returned empty output", sz.w, sz.h)
		}
	}
}

func TestView_QuittingRendersNothing(t *testing.T) {
	m := newTestModel(t)
	m.quitting = true
	if got := m.View(); got != "" {
		t.Errorf("View() = %q while quitting, want empty", got)
	}
}

func TestRenderPreview_ShowsLogEntriesWhenLogPopupOpen(t *testing.T) {
	m := newTestModel(t)
	m.width, m.height = 80, 24
	m.logEntries = []logging.LogEntry{
		{Timestamp: time.Now(), Level: "INFO", Scope: "test", Message: "hello"},
	}
	m.disp.OpenPopup(dispatch.PopupLogView, dispatch.Selection{})

	out := m.View()
	if !strings.Contains(out, "hello") {
		t.Errorf("View() = %q, want it to contain the log message", out)
	}
}

func TestUpdate_LogEntryMsgAppendsAndReschedules(t *testing.T) {
	m := newTestModel(t)
	ch := make(chan logging.LogEntry, 1)
	m.logCh = ch

	_, cmd := m.Update(logEntryMsg(logging.LogEntry{Level: "INFO", Scope: "test", Message: "hi"}))
	if len(m.logEntries) != 1 || m.logEntries[0].Message != "hi" {
		t.Fatalf("logEntries = %+v, want one entry with message hi", m.logEntries)
	}
	if cmd == nil {
		t.Fatal("expected a follow-up watchLogs command")
	}
}

func TestRenderStatusLine_ShowsWorkingSpinnerDuringExternal(t *testing.T) {
	m := newTestModel(t)
	m.disp.BeginExternal(dispatch.Selection{ProjectID: "p1"})
	line := m.renderStatusLine(40)
	if !strings.Contains(line, "working") {
		t.Errorf("status line = %q, want it to mention working while ExternalInFlight", line)
	}
}

func TestRenderStatusLine_ShowsConfirmPrompt(t *testing.T) {
	m := newTestModel(t)
	m.disp.OpenConfirm(dispatch.ConfirmDelete, dispatch.Selection{ProjectID: "p1"})
	line := m.renderStatusLine(40)
	if !strings.Contains(line, "delete?") {
		t.Errorf("status line = %q, want the delete confirm label", line)
	}
}

func TestRenderStatusLine_ShowsHelpWhenToggled(t *testing.T) {
	m := newTestModel(t)
	m.showHelp = true
	line := m.renderStatusLine(200)
	if !strings.Contains(line, "attach") {
		t.Errorf("status line = %q, want the help text", line)
	}
}

func TestRenderStatusLine_DefaultsToHintWhenIdle(t *testing.T) {
	m := newTestModel(t)
	line := m.renderStatusLine(40)
	if !strings.Contains(line, "? for help") {
		t.Errorf("status line = %q, want the default hint", line)
	}
}

func TestRenderSidebar_ShowsProjectAndSessionRows(t *testing.T) {
	m := newTestModel(t)
	seedProject(m, "p1", "/repo", "/repo", "main")
	seedSession(m, "p1", "/repo", "s1", "alpha")
	m.width, m.height = 80, 24

	layout := ComputeLayout(m.width, m.height)
	out := m.renderSidebar(layout.Sidebar)
	if !strings.Contains(out, "repo") {
		t.Errorf("sidebar = %q, want the project's display name", out)
	}
	if !strings.Contains(out, "alpha") {
		t.Errorf("sidebar = %q, want the session's alias", out)
	}
}

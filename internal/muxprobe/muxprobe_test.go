package muxprobe

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"devagent/internal/execx"
	"devagent/internal/logging"
)

func testLogger(t *testing.T) *logging.ScopedLogger {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })
	return lm.For("test")
}

func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}
}

func uniqueName(t *testing.T) string {
	return "wsx-test-" + t.Name() + "-" + time.Now().Format("150405.000000")
}

func TestNewSessionAndKillSession(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	name := uniqueName(t)
	dir := t.TempDir()

	if err := probe.NewSession(ctx, name, dir, "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, name) })

	if !probe.SessionExists(ctx, name) {
		t.Fatalf("SessionExists() = false after NewSession")
	}

	if err := probe.KillSession(ctx, name); err != nil {
		t.Fatalf("KillSession() error = %v", err)
	}
	if probe.SessionExists(ctx, name) {
		t.Fatalf("SessionExists() = true after KillSession")
	}
}

func TestListSessions_IncludesCreated(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	name := uniqueName(t)

	if err := probe.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, name) })

	sessions, err := probe.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	found := false
	for _, s := range sessions {
		if s.Name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListSessions() did not include %q", name)
	}
}

func TestClearBell_SucceedsOnLiveSession(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	name := uniqueName(t)

	if err := probe.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, name) })

	if err := probe.ClearBell(ctx, name); err != nil {
		t.Fatalf("ClearBell() error = %v", err)
	}
}

func TestCapturePane_Caches(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	name := uniqueName(t)

	if err := probe.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, name) })

	first, err := probe.CapturePane(ctx, name, 50)
	if err != nil {
		t.Fatalf("CapturePane() error = %v", err)
	}
	second, ok := probe.paneCache(name)
	if !ok {
		t.Fatalf("pane result was not cached")
	}
	if string(first) != string(second) {
		t.Errorf("cached pane content differs from first read")
	}
}

func TestSendKeys_AppearsInPane(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	name := uniqueName(t)

	if err := probe.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, name) })

	if err := probe.SendKeys(ctx, name, "echo marker-value", true); err != nil {
		t.Fatalf("SendKeys() error = %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	res, err := probe.exec.Run(ctx, execx.Request{Argv: []string{"tmux", "capture-pane", "-t", name, "-p"}})
	if err != nil {
		t.Fatalf("capture-pane error = %v", err)
	}
	if !strings.Contains(string(res.Stdout), "marker-value") {
		t.Errorf("pane content = %q, want it to contain %q", res.Stdout, "marker-value")
	}
}

func TestUniqueSessionName_AvoidsCollision(t *testing.T) {
	requireTmux(t)
	probe := New(execx.New(4, 16, testLogger(t)))
	ctx := context.Background()
	base := uniqueName(t)

	if err := probe.NewSession(ctx, base, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = probe.KillSession(ctx, base) })

	got := probe.UniqueSessionName(ctx, base)
	if got == base {
		t.Fatalf("UniqueSessionName() returned colliding name %q", got)
	}
	if probe.SessionExists(ctx, got) {
		t.Fatalf("UniqueSessionName() returned a name that already exists")
	}
}

func TestParseSessionList(t *testing.T) {
	out := "main:1700000000:1:0:1700000100\nother:1700000001:0:1:1700000200\n"
	sessions := parseSessionList(out)
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if !sessions[0].Attached {
		t.Errorf("sessions[0].Attached = false, want true")
	}
	if !sessions[1].HasBell {
		t.Errorf("sessions[1].HasBell = false, want true")
	}
}

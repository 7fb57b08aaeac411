package observer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"devagent/internal/activity"
	"devagent/internal/execx"
	"devagent/internal/gitprobe"
	"devagent/internal/logging"
	"devagent/internal/model"
	"devagent/internal/muxprobe"
)

func testLogger(t *testing.T) *logging.ScopedLogger {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })
	return lm.For("test")
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=wsx", "GIT_AUTHOR_EMAIL=wsx@example.com",
			"GIT_COMMITTER_NAME=wsx", "GIT_COMMITTER_EMAIL=wsx@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "wsx@example.com")
	run("config", "user.name", "wsx")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial")
	return dir
}

func TestRunGitStatus_ReturnsStateForEachTarget(t *testing.T) {
	repo := initRepo(t)
	probe := gitprobe.New(execx.New(4, 16, testLogger(t)))

	results := RunGitStatus(context.Background(), probe, []WorktreeTarget{
		{ProjectID: "p1", Path: repo, RequestEpoch: 1},
	})
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("Err = %v", results[0].Err)
	}
	if results[0].State.LocalDirty {
		t.Errorf("LocalDirty = true on a clean repo")
	}
}

func TestSessionTickInterval(t *testing.T) {
	if got := SessionTickInterval(true); got != SessionActiveInterval {
		t.Errorf("SessionTickInterval(true) = %v, want %v", got, SessionActiveInterval)
	}
	if got := SessionTickInterval(false); got != SessionIdleInterval {
		t.Errorf("SessionTickInterval(false) = %v, want %v", got, SessionIdleInterval)
	}
}

func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}
}

func TestRunSessionList_PartitionsByWorktreeNamespace(t *testing.T) {
	requireTmux(t)
	exec := execx.New(4, 16, testLogger(t))
	mux := muxprobe.New(exec)
	ctx := context.Background()

	name := "wsx-p1-main-" + time.Now().Format("150405.000000")
	if err := mux.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = mux.KillSession(ctx, name) })

	results := RunSessionList(ctx, mux, []WorktreeTarget{{ProjectID: "p1", Path: "/repo/p1"}})
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestRunActivityProbe_ClassifiesIdleSession(t *testing.T) {
	requireTmux(t)
	exec := execx.New(4, 16, testLogger(t))
	mux := muxprobe.New(exec)
	classifier := activity.New()
	ctx := context.Background()

	name := "wsx-activity-test-" + time.Now().Format("150405.000000")
	if err := mux.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = mux.KillSession(ctx, name) })

	results := RunActivityProbe(ctx, mux, classifier, []SessionTarget{
		{ProjectID: "p1", WorktreePath: "/repo/p1", SessionID: model.SessionID(name)},
	}, time.Now())
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("Err = %v", results[0].Err)
	}
}

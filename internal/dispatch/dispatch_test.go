package dispatch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"devagent/internal/config"
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

func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}
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

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	exec := execx.New(4, 16, testLogger(t))
	m := model.NewModel()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	store, err := config.Open(cfgPath, testLogger(t))
	if err != nil {
		t.Fatalf("config.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(m, gitprobe.New(exec), muxprobe.New(exec), store, testLogger(t))
}

func TestOpenPromptThenCancel_ReturnsToIdle(t *testing.T) {
	d := newDispatcher(t)
	d.OpenPrompt(PromptNewWorktreeBranch, Selection{ProjectID: "p1"}, "")
	if d.State().Phase != PromptOpen {
		t.Fatalf("Phase = %v, want PromptOpen", d.State().Phase)
	}
	d.Cancel()
	if d.State().Phase != Idle {
		t.Fatalf("Phase = %v, want Idle", d.State().Phase)
	}
}

func TestOpenConfirmThenFinish_LeavesStatusLine(t *testing.T) {
	d := newDispatcher(t)
	d.OpenConfirm(ConfirmDelete, Selection{ProjectID: "p1"})
	if d.State().Phase != ConfirmOpen {
		t.Fatalf("Phase = %v, want ConfirmOpen", d.State().Phase)
	}
	d.Finish("deleted")
	st := d.State()
	if st.Phase != Idle || st.StatusLine != "deleted" {
		t.Fatalf("State = %+v, want Idle with status line", st)
	}
}

func TestDismissOrMute_SecondPressWithinGraceMutes(t *testing.T) {
	d := newDispatcher(t)
	target := Selection{ProjectID: "p1", WorktreePath: "/repo", SessionID: "s1"}
	d.model.AddProject("p1", "/repo", "")
	d.model.ReconcileWorktrees("p1", []model.WorktreeSeed{{Path: "/repo", BranchName: "main", IsMain: true}})
	d.model.ReconcileSessions("p1", "/repo", []model.SessionSeed{{ID: "s1"}}, nil)
	d.model.UpdateSessionStatus("p1", "/repo", "s1", model.Pending, d.model.Epoch())

	now := time.Now()
	d.DismissOrMute(target, now, true)
	p, _ := d.model.Project("p1")
	wt, _ := p.Worktree("/repo")
	sess, _ := wt.Session("s1")
	if sess.DismissedAt == nil {
		t.Fatalf("first press should set DismissedAt")
	}

	d.DismissOrMute(target, now.Add(time.Second), true)
	if !sess.Muted {
		t.Fatalf("second press within grace should mute the session")
	}
}

func TestDismissOrMute_NonPendingMutesImmediately(t *testing.T) {
	d := newDispatcher(t)
	target := Selection{ProjectID: "p1", WorktreePath: "/repo", SessionID: "s1"}
	d.model.AddProject("p1", "/repo", "")
	d.model.ReconcileWorktrees("p1", []model.WorktreeSeed{{Path: "/repo", BranchName: "main", IsMain: true}})
	d.model.ReconcileSessions("p1", "/repo", []model.SessionSeed{{ID: "s1"}}, nil)

	d.DismissOrMute(target, time.Now(), false)
	p, _ := d.model.Project("p1")
	wt, _ := p.Worktree("/repo")
	sess, _ := wt.Session("s1")
	if !sess.Muted {
		t.Fatalf("non-pending session should mute on first press")
	}
}

func TestDismissOrMute_PersistsMuteToConfig(t *testing.T) {
	d := newDispatcher(t)
	target := Selection{ProjectID: "p1", WorktreePath: "/repo", SessionID: "s1"}
	d.model.AddProject("p1", "/repo", "")
	d.model.ReconcileWorktrees("p1", []model.WorktreeSeed{{Path: "/repo", BranchName: "main", IsMain: true}})
	d.model.ReconcileSessions("p1", "/repo", []model.SessionSeed{{ID: "s1"}}, nil)
	cfg := d.cfg.Get()
	cfg.AddProject("repo", "/repo")
	d.cfg.Update(cfg)

	d.DismissOrMute(target, time.Now(), false)

	if !d.cfg.Get().Projects[0].Mutes["s1"] {
		t.Fatalf("mute should round-trip into the config store's [projects].mutes")
	}
}

func TestAddProject_SeedsWorktreesIntoModel(t *testing.T) {
	repo := initRepo(t)
	d := newDispatcher(t)

	id, err := d.AddProject(context.Background(), repo)
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}
	p, ok := d.model.Project(id)
	if !ok {
		t.Fatalf("project %s not found after AddProject", id)
	}
	if len(p.Worktrees) != 1 {
		t.Fatalf("len(Worktrees) = %d, want 1", len(p.Worktrees))
	}
	if cfg := d.cfg.Get(); len(cfg.Projects) != 1 || cfg.Projects[0].Path != repo {
		t.Fatalf("global config not updated: %+v", cfg.Projects)
	}
}

func TestNewWorktree_AppearsInModel(t *testing.T) {
	repo := initRepo(t)
	d := newDispatcher(t)
	id, err := d.AddProject(context.Background(), repo)
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}

	if err := d.NewWorktree(context.Background(), id, repo, "feature", "main"); err != nil {
		t.Fatalf("NewWorktree() error = %v", err)
	}
	p, _ := d.model.Project(id)
	if len(p.Worktrees) != 2 {
		t.Fatalf("len(Worktrees) = %d, want 2", len(p.Worktrees))
	}
}

func TestNewWorktree_AppliesCopyRules(t *testing.T) {
	repo := initRepo(t)
	gtrconfig := "[copy]\n\tinclude = .env\n"
	if err := os.WriteFile(filepath.Join(repo, ".gtrconfig"), []byte(gtrconfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, ".env"), []byte("SECRET=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newDispatcher(t)
	id, err := d.AddProject(context.Background(), repo)
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}

	if err := d.NewWorktree(context.Background(), id, repo, "feature", "main"); err != nil {
		t.Fatalf("NewWorktree() error = %v", err)
	}
	p, _ := d.model.Project(id)
	wt, ok := p.Worktree(filepath.Join(filepath.Dir(repo), filepath.Base(repo)+"-feature"))
	if !ok {
		t.Fatalf("new worktree not found in model: %+v", p.Worktrees)
	}
	if _, err := os.Stat(filepath.Join(wt.Path, ".env")); err != nil {
		t.Fatalf(".env should have been copied into the new worktree: %v", err)
	}
}

func TestPreviewCleanMerged_MatchesCleanMergedResult(t *testing.T) {
	repo := initRepo(t)
	d := newDispatcher(t)
	id, err := d.AddProject(context.Background(), repo)
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}
	if err := d.NewWorktree(context.Background(), id, repo, "feature/clean", "main"); err != nil {
		t.Fatalf("NewWorktree() error = %v", err)
	}

	preview, err := d.PreviewCleanMerged(context.Background(), repo, "main")
	if err != nil {
		t.Fatalf("PreviewCleanMerged() error = %v", err)
	}
	if len(preview) != 1 || preview[0] != "feature/clean" {
		t.Fatalf("preview = %+v, want [feature/clean]", preview)
	}

	removed, err := d.CleanMerged(context.Background(), id, repo, "main")
	if err != nil {
		t.Fatalf("CleanMerged() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != preview[0] {
		t.Fatalf("removed = %+v, want to match the preview %+v", removed, preview)
	}
}

func TestClearBell_ClearsSessionBellFlag(t *testing.T) {
	requireTmux(t)
	d := newDispatcher(t)
	name := "wsx-test-clearbell"
	ctx := context.Background()
	if err := d.mux.NewSession(ctx, name, t.TempDir(), "", nil); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = d.mux.KillSession(ctx, name) })

	if err := d.ClearBell(ctx, Selection{SessionID: model.SessionID(name)}); err != nil {
		t.Fatalf("ClearBell() error = %v", err)
	}
}

func TestNewSessionAndDelete_RoundTrip(t *testing.T) {
	requireTmux(t)
	repo := initRepo(t)
	d := newDispatcher(t)
	id, err := d.AddProject(context.Background(), repo)
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}

	sessionID, err := d.NewSession(context.Background(), id, repo, "work", "")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = d.mux.KillSession(context.Background(), string(sessionID)) })

	p, _ := d.model.Project(id)
	wt, _ := p.Worktree(repo)
	if _, ok := wt.Session(sessionID); !ok {
		t.Fatalf("session %s missing from model after NewSession", sessionID)
	}

	if err := d.DeleteSession(context.Background(), Selection{ProjectID: id, WorktreePath: repo, SessionID: sessionID}); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, ok := wt.Session(sessionID); ok {
		t.Fatalf("session %s still present in model after DeleteSession", sessionID)
	}
}

package tui

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"devagent/internal/activity"
	"devagent/internal/config"
	"devagent/internal/dispatch"
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

// newTestModel wires a Model against real domain objects, the same fixture
// shape dispatch_test.go uses, so prompt/confirm flows exercise the actual
// Dispatcher rather than a mock.
func newTestModel(t *testing.T) *Model {
	t.Helper()
	ex := execx.New(4, 16, testLogger(t))
	domain := model.NewModel()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	store, err := config.Open(cfgPath, testLogger(t))
	if err != nil {
		t.Fatalf("config.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	git := gitprobe.New(ex)
	mux := muxprobe.New(ex)
	disp := dispatch.New(domain, git, mux, store, testLogger(t))
	m := New(domain, disp, store, git, mux, activity.New(), "mocha", nil)
	m.width, m.height = 80, 24
	return m
}

// seedProject adds a project with one worktree directly on the domain
// Model, bypassing AddProject's git call so tests don't need a repo on disk
// unless they're exercising the dispatcher itself.
func seedProject(m *Model, id model.ProjectID, rootPath, worktreePath, branch string) {
	m.domain.AddProject(id, rootPath, "")
	m.domain.ReconcileWorktrees(id, []model.WorktreeSeed{{Path: worktreePath, BranchName: branch, IsMain: true}})
}

// seedSession adds a session to a worktree, re-reconciling against every
// session already present so earlier seedSession calls for the same
// worktree don't get marked Gone by a discovered list that omits them.
func seedSession(m *Model, id model.ProjectID, worktreePath string, sessionID model.SessionID, alias string) {
	seeds := []model.SessionSeed{{ID: sessionID, Alias: alias}}
	if p, ok := m.domain.Project(id); ok {
		if wt, ok := p.Worktree(worktreePath); ok {
			for _, sess := range wt.Sessions {
				if sess.ID == sessionID {
					continue
				}
				seeds = append(seeds, model.SessionSeed{ID: sess.ID, Alias: sess.Alias, CreationCommand: sess.CreationCommand})
			}
		}
	}
	m.domain.ReconcileSessions(id, worktreePath, seeds, nil)
}

// runCmd executes a tea.Cmd synchronously and feeds its result back into
// Update, unwrapping tea.BatchMsg and ignoring tea.Quit, so prompt
// submissions that return a follow-up command can run to completion inside
// a test without a real bubbletea event loop.
func runCmd(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	msg := cmd()
	if msg == nil {
		return
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			runCmd(t, m, c)
		}
		return
	}
	if _, ok := msg.(tea.QuitMsg); ok {
		return
	}
	_, next := m.Update(msg)
	runCmd(t, m, next)
}

// key builds the tea.KeyMsg a literal keypress produces.
func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

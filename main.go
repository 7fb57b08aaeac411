// pattern: Imperative Shell
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"devagent/internal/activity"
	"devagent/internal/cli"
	"devagent/internal/config"
	"devagent/internal/dispatch"
	"devagent/internal/execx"
	"devagent/internal/gitprobe"
	"devagent/internal/instance"
	"devagent/internal/logging"
	"devagent/internal/model"
	"devagent/internal/muxprobe"
	"devagent/internal/tui"
)

var version = "dev"

func main() {
	flag.CommandLine.SetInterspersed(false)
	configDir := flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/wsx)")

	flag.Usage = func() {
		cli.BuildApp(version, *configDir).PrintHelp(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	app := cli.BuildApp(version, *configDir)
	if app.Execute(flag.Args()) {
		runTUI(*configDir)
	}
}

// runTUI loads the global config, acquires the single-instance lock, seeds
// the domain Model from every tracked project, and hands control to the
// bubbletea Program until the user quits.
func runTUI(configDir string) {
	if !muxprobe.IsInsideTmux() {
		fmt.Fprintln(os.Stderr, "wsx: must be run from inside a tmux client session (attach/create with `tmux` first)")
		os.Exit(2)
	}

	dataDir := cli.ResolveDataDir(configDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fl, err := instance.Lock(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer instance.Cleanup(dataDir, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath:       filepath.Join(dataDir, "wsx.log"),
		MaxSizeMB:      10,
		MaxBackups:     3,
		MaxAgeDays:     7,
		ChannelBufSize: 1000,
		Level:          "info",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logManager.Close() }()

	appLogger := logManager.For("app")
	appLogger.Info("wsx starting")

	cfgStore, err := config.Open(filepath.Join(dataDir, "config.toml"), logManager.For("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = cfgStore.Close() }()

	ex := execx.New(16, 64, logManager.For("exec"))
	git := gitprobe.New(ex)
	mux := muxprobe.New(ex)

	domain := model.NewModel()
	ctx := context.Background()
	for _, entry := range cfgStore.Get().Projects {
		seedTrackedProject(ctx, domain, git, entry, appLogger)
	}

	disp := dispatch.New(domain, git, mux, cfgStore, logManager.For("dispatch"))
	classifier := activity.New()
	act := cfgStore.Get().Activity
	classifier.Windows = activity.Windows{
		Active:       time.Duration(act.ActiveMillis) * time.Millisecond,
		Pending:      time.Duration(act.PendingMillis) * time.Millisecond,
		DismissGrace: time.Duration(act.DismissGraceMillis) * time.Millisecond,
	}
	rootModel := tui.New(domain, disp, cfgStore, git, mux, classifier, cfgStore.Get().Theme, logManager.Entries())

	p := tea.NewProgram(rootModel, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		appLogger.Error("wsx exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("wsx stopped")
}

// seedTrackedProject loads one config-tracked project's worktrees into the
// domain Model. It deliberately bypasses dispatch.AddProject, which would
// re-derive the project's display name from its path and clobber the
// custom name/alias the entry already carries.
func seedTrackedProject(ctx context.Context, domain *model.Model, git *gitprobe.Probe, entry config.ProjectEntry, logger *logging.ScopedLogger) {
	id := model.NewProjectID(entry.Path)
	domain.AddProject(id, entry.Path, entry.Name)

	seeds, err := git.ListWorktrees(ctx, entry.Path)
	if err != nil {
		logger.Warn("skipping unreadable tracked project", "path", entry.Path, "error", err)
		return
	}
	domain.ReconcileWorktrees(id, seeds)
	domain.SetProjectConfig(id, git.LoadProjectConfig(ctx, entry.Path))
}

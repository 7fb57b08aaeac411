// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"devagent/internal/config"
	"devagent/internal/execx"
	"devagent/internal/gitprobe"
	"devagent/internal/instance"
	"devagent/internal/logging"
)

// ResolveDataDir returns the data directory for the lock file and the
// global config. If configDir is specified, uses that; otherwise uses
// config.Dir() ($XDG_CONFIG_HOME/wsx when set, else ~/.config/wsx).
func ResolveDataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	return config.Dir()
}

// BuildApp creates and configures the CLI application with all commands.
// wsx is a single-process TUI with no background daemon, so every command
// here reads and writes the global config directly rather than talking to
// a running instance over a socket.
func BuildApp(version string, configDir string) *App {
	app := NewApp(version)

	app.AddCommand(&Command{
		Name:    "add",
		Summary: "Track a git repository as a project",
		Usage:   "Usage: wsx add <path> [--alias NAME]",
		Run: func(args []string) error {
			return runAddCommand(configDir, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "list",
		Summary: "Print tracked projects as JSON",
		Usage:   "Usage: wsx list",
		Run: func(args []string) error {
			return runListCommand(configDir)
		},
	})

	app.AddCommand(&Command{
		Name:    "clean",
		Summary: "Remove worktrees whose branch has merged into the default branch",
		Usage:   "Usage: wsx clean <project-path> [--into BRANCH]",
		Run: func(args []string) error {
			return runCleanCommand(args)
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove a stale lock file left by a crashed instance",
		Usage:   "Usage: wsx cleanup",
		Run: func(args []string) error {
			return runCleanupCommand(configDir)
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: wsx version",
		Run: func(args []string) error {
			fmt.Println(version)
			return nil
		},
	})

	return app
}

func runAddCommand(configDir string, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	alias := fs.String("alias", "", "display alias for the project")
	// Flags may follow the path, as in the usage line.
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: wsx add <path> [--alias NAME]")
		os.Exit(1)
	}
	path, err := filepath.Abs(positional[0])
	if err != nil {
		return err
	}

	exec := execx.New(4, 16, logging.NopLogger())
	if _, err := gitprobe.New(exec).ListWorktrees(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s is not a git repository: %v\n", path, err)
		os.Exit(1)
	}

	dataDir := ResolveDataDir(configDir)
	cfgPath := filepath.Join(dataDir, "config.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	if *alias != "" {
		name = *alias
	}
	cfg.AddProject(name, path)
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("added %s as %s\n", path, name)
	return nil
}

func runListCommand(configDir string) error {
	dataDir := ResolveDataDir(configDir)
	cfg, err := config.Load(filepath.Join(dataDir, "config.toml"))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg.Projects, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(append(data, '\n'))
	return nil
}

func runCleanCommand(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	into := fs.String("into", "main", "default branch to check merges against")
	// Flags may follow the path, as in the usage line.
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: wsx clean <project-path> [--into BRANCH]")
		os.Exit(1)
	}
	repoPath, err := filepath.Abs(positional[0])
	if err != nil {
		return err
	}

	exec := execx.New(4, 16, logging.NopLogger())
	removed, err := gitprobe.New(exec).CleanMerged(context.Background(), repoPath, *into)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, branch := range removed {
		fmt.Println("removed", branch)
	}
	if len(removed) == 0 {
		fmt.Println("nothing to clean")
	}
	return nil
}

// runCleanupCommand removes a stale lock file left by a crashed instance.
func runCleanupCommand(configDir string) error {
	dataDir := ResolveDataDir(configDir)

	// Try to acquire the lock to verify no instance is actually running.
	fl, err := instance.Lock(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: a wsx instance appears to be running. Stop it first.\n")
		os.Exit(1)
	}
	// We got the lock — no instance is running. Clean up and release.
	instance.Cleanup(dataDir, fl)
	fmt.Println("Cleaned up stale lock file.")
	return nil
}

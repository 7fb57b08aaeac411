// pattern: Imperative Shell

// Package config loads and persists wsx's two configuration stores: the
// global TOML preferences file and, per project, the gitconfig-INI
// .gtrconfig (parsed in internal/gitprobe, since it goes through git
// itself).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"devagent/internal/logging"
)

// ProjectEntry is one persisted project in the global config.
type ProjectEntry struct {
	Name    string            `toml:"name"`
	Path    string            `toml:"path"`
	Order   int               `toml:"order"`
	Aliases map[string]string `toml:"aliases,omitempty"` // branch -> alias
	Mutes   map[string]bool   `toml:"mutes,omitempty"`   // SessionId -> muted
}

// ActivityConfig exposes the classifier's tunable windows (§9 open
// question: "expose them as config keys").
type ActivityConfig struct {
	ActiveMillis       int64 `toml:"active_ms"`
	PendingMillis      int64 `toml:"pending_ms"`
	DismissGraceMillis int64 `toml:"dismiss_grace_ms"`
}

// Config is the root of ~/.config/wsx/config.toml.
type Config struct {
	Theme     string         `toml:"theme"`
	ScanPaths []string       `toml:"scan_paths,omitempty"`
	Activity  ActivityConfig `toml:"activity"`
	Projects  []ProjectEntry `toml:"projects,omitempty"`
}

// Default returns the config loaded when no file exists yet.
func Default() Config {
	return Config{
		Theme: "mocha",
		Activity: ActivityConfig{
			ActiveMillis:       2000,
			PendingMillis:      2000,
			DismissGraceMillis: 10000,
		},
	}
}

// Path returns the default config file location, honoring XDG_CONFIG_HOME.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Dir returns the default config directory, honoring XDG_CONFIG_HOME.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wsx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "wsx")
	}
	return filepath.Join(home, ".config", "wsx")
}

// Load reads the config file at path, returning Default() if it does not
// exist yet.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Theme == "" {
		cfg.Theme = "mocha"
	}
	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename), creating parent
// directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AddProject inserts or replaces a project entry by path.
func (c *Config) AddProject(name, path string) {
	for i, p := range c.Projects {
		if p.Path == path {
			c.Projects[i].Name = name
			return
		}
	}
	c.Projects = append(c.Projects, ProjectEntry{Name: name, Path: path, Order: len(c.Projects)})
}

// RemoveProject deletes a project entry by path.
func (c *Config) RemoveProject(path string) {
	kept := c.Projects[:0]
	for _, p := range c.Projects {
		if p.Path != path {
			kept = append(kept, p)
		}
	}
	c.Projects = kept
}

// SetProjectAlias renames a project entry's display name.
func (c *Config) SetProjectAlias(path, alias string) {
	for i := range c.Projects {
		if c.Projects[i].Path == path {
			c.Projects[i].Name = alias
			return
		}
	}
}

// SetAlias sets or clears (alias == "") a branch alias on a project.
func (c *Config) SetAlias(projectPath, branch, alias string) {
	for i := range c.Projects {
		if c.Projects[i].Path != projectPath {
			continue
		}
		if c.Projects[i].Aliases == nil {
			c.Projects[i].Aliases = make(map[string]string)
		}
		if alias == "" {
			delete(c.Projects[i].Aliases, branch)
		} else {
			c.Projects[i].Aliases[branch] = alias
		}
		return
	}
}

// SetMuted records a session's mute state for persistence across restarts.
// Dismiss states are intentionally not persisted (§4.9).
func (c *Config) SetMuted(projectPath, sessionID string, muted bool) {
	for i := range c.Projects {
		if c.Projects[i].Path != projectPath {
			continue
		}
		if c.Projects[i].Mutes == nil {
			c.Projects[i].Mutes = make(map[string]bool)
		}
		if muted {
			c.Projects[i].Mutes[sessionID] = true
		} else {
			delete(c.Projects[i].Mutes, sessionID)
		}
		return
	}
}

// debounceDelay matches the spec's 500ms write coalescing window (§4.9).
const debounceDelay = 500 * time.Millisecond

// Store owns the in-memory Config, debounces writes to disk and watches
// the file for external edits.
type Store struct {
	path    string
	logger  *logging.ScopedLogger
	cfg     Config
	dirty   chan struct{}
	changed chan Config
	done    chan struct{}
}

// Open loads path and starts the debounced writer and fsnotify watcher.
// Callers receive external edits on Changed().
func Open(path string, logger *logging.ScopedLogger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Store{
		path:    path,
		logger:  logger,
		cfg:     cfg,
		dirty:   make(chan struct{}, 1),
		changed: make(chan Config, 1),
		done:    make(chan struct{}),
	}
	go s.writeLoop()
	go s.watchLoop()
	return s, nil
}

// Get returns the current in-memory config.
func (s *Store) Get() Config { return s.cfg }

// Update replaces the in-memory config and schedules a debounced write.
func (s *Store) Update(cfg Config) {
	s.cfg = cfg
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Changed delivers configs reloaded because the file changed on disk
// outside this process.
func (s *Store) Changed() <-chan Config { return s.changed }

// Close stops the background goroutines, flushing any pending write.
func (s *Store) Close() error {
	close(s.done)
	return Save(s.path, s.cfg)
}

func (s *Store) writeLoop() {
	var timer *time.Timer
	for {
		select {
		case <-s.dirty:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				if err := Save(s.path, s.cfg); err != nil {
					s.logger.Error("config save failed", "err", err)
				}
			})
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (s *Store) watchLoop() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("config watch disabled", "err", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		s.logger.Warn("config watch disabled", "err", err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(s.path)
			if err != nil {
				s.logger.Warn("config reload failed", "err", err)
				continue
			}
			s.cfg = cfg
			select {
			case s.changed <- cfg:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watch error", "err", err)
		case <-s.done:
			return
		}
	}
}

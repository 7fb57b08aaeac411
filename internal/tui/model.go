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
	"devagent/internal/discovery"
	"devagent/internal/dispatch"
	"devagent/internal/gitprobe"
	"devagent/internal/logging"
	"devagent/internal/model"
	"devagent/internal/muxprobe"
	"devagent/internal/observer"
	"devagent/internal/selection"
)

// logViewCap bounds how many recent log entries the `L` popup keeps
// around; older entries are dropped as new ones arrive.
const logViewCap = 200

// statusLineDuration is how long a transient status message stays visible
// before the bottom status line reverts to the default key hints.
const statusLineDuration = 4 * time.Second

// Model is the bubbletea root model: it owns the domain Model, the
// selection Engine that flattens it for rendering, and the Dispatcher that
// sequences every mutation the user triggers from the tree (§4.8, §6).
type Model struct {
	width, height int
	styles        *Styles

	domain     *model.Model
	sel        *selection.Engine
	disp       *dispatch.Dispatcher
	cfg        *config.Store
	git        *gitprobe.Probe
	mux        *muxprobe.Probe
	classifier *activity.Classifier

	searching   bool
	searchInput textinput.Model
	promptInput textinput.Model
	spin        spinner.Model

	statusMessage string
	statusExpiry  time.Time

	prevPaneLen         map[model.SessionID]int
	prevForegroundComm  map[model.SessionID]string
	prevProducing       map[model.SessionID]bool
	anyActive           bool

	lastWorktreeSelect map[string]time.Time

	showHelp bool
	pending  pendingFields

	scanner     *discovery.Scanner
	discovered  []discovery.DiscoveredProject
	discoverIdx int

	logCh      <-chan logging.LogEntry
	logEntries []logging.LogEntry

	quitting bool
	err      error
}

// New wires a Model against the already-constructed domain objects; main.go
// owns their lifetime and closes cfg/git/mux's underlying Executor on exit.
// logs, when non-nil, feeds the `L` log-tail popup from the log manager's
// in-memory channel sink.
func New(domain *model.Model, disp *dispatch.Dispatcher, cfg *config.Store, git *gitprobe.Probe, mux *muxprobe.Probe, classifier *activity.Classifier, themeName string, logs <-chan logging.LogEntry) *Model {
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "filter"

	prompt := textinput.New()
	prompt.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return &Model{
		styles:             NewStyles(themeName),
		domain:             domain,
		sel:                selection.NewEngine(),
		disp:               disp,
		cfg:                cfg,
		git:                git,
		mux:                mux,
		classifier:         classifier,
		searchInput:        search,
		promptInput:        prompt,
		spin:               sp,
		scanner:            discovery.NewScanner(),
		logCh:              logs,
		prevPaneLen:        make(map[model.SessionID]int),
		prevForegroundComm: make(map[model.SessionID]string),
		prevProducing:      make(map[model.SessionID]bool),
		lastWorktreeSelect: make(map[string]time.Time),
	}
}

// Init kicks off the first probe of every ticker (§4.6: every ticker fires
// once immediately on startup rather than waiting out its first interval).
// It also folds the config snapshot main.go loaded before construction into
// the already-seeded domain Model, since watchConfigChanges only delivers
// edits made *after* startup.
func (m *Model) Init() tea.Cmd {
	m.applyConfigAliases(m.cfg.Get())
	m.refreshDiscovered()
	return tea.Batch(
		m.spin.Tick,
		m.runGitStatus(),
		m.runGitFetch(),
		m.runSessionList(),
		m.scheduleGitStatusTick(),
		m.scheduleGitFetchTick(),
		m.scheduleSessionTick(),
		m.watchConfigChanges(),
		m.watchLogs(),
	)
}

// watchLogs blocks on the log manager's channel sink and feeds each entry
// into the `L` popup's ring buffer, one tea.Msg per log line (§9's
// promised log-tail popup over the ambient logging stack's ChannelSink).
func (m *Model) watchLogs() tea.Cmd {
	if m.logCh == nil {
		return nil
	}
	ch := m.logCh
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logEntryMsg(entry)
	}
}

// watchConfigChanges blocks on the config Store's fsnotify-backed reload
// channel, so an edit to config.toml made outside wsx (or by another wsx
// instance, though C10 normally prevents that) is picked up live rather
// than only on next launch.
func (m *Model) watchConfigChanges() tea.Cmd {
	cfg := m.cfg
	return func() tea.Msg {
		reloaded, ok := <-cfg.Changed()
		if !ok {
			return nil
		}
		return configChangedMsg(reloaded)
	}
}

// refreshDiscovered re-walks the configured scan_paths for untracked git
// repositories, so the `p` prompt can offer them instead of a bare path
// input (§9 Discovery supplement). A no-op when scan_paths is unset.
func (m *Model) refreshDiscovered() {
	cfg := m.cfg.Get()
	if len(cfg.ScanPaths) == 0 {
		m.discovered = nil
		m.discoverIdx = 0
		return
	}
	tracked := make(map[string]bool, len(cfg.Projects))
	for _, p := range cfg.Projects {
		tracked[p.Path] = true
	}
	m.discovered = m.scanner.ScanAll(cfg.ScanPaths, tracked)
	m.discoverIdx = 0
}

func (m *Model) worktreeTargets() []observer.WorktreeTarget {
	var out []observer.WorktreeTarget
	for _, p := range m.domain.Projects() {
		for _, wt := range p.Worktrees {
			out = append(out, observer.WorktreeTarget{ProjectID: p.ID, Path: wt.Path, RequestEpoch: wt.DirtyEpoch})
		}
	}
	return out
}

// recentSelectWindow bounds how long a worktree stays eligible for
// GitFetchTicker after the cursor last visited it (§4.6).
const recentSelectWindow = 5 * time.Minute

// touchSelection stamps the cursor's current worktree as recently
// selected, so a network-bound git fetch on an otherwise-collapsed
// project still covers whatever the user is actively looking at.
func (m *Model) touchSelection() {
	cursor, ok := m.sel.Cursor()
	if !ok || cursor.WorktreePath == "" {
		return
	}
	m.lastWorktreeSelect[cursor.WorktreePath] = time.Now()
}

// gitFetchTargets narrows worktreeTargets to the worktrees GitFetchTicker
// is allowed to touch: belonging to an expanded project, or themselves
// selected within recentSelectWindow (§4.6), so fetching many tracked
// projects at once doesn't fan out a network call per worktree on every
// tick.
func (m *Model) gitFetchTargets() []observer.WorktreeTarget {
	now := time.Now()
	var out []observer.WorktreeTarget
	for _, p := range m.domain.Projects() {
		expanded := m.sel.ProjectExpanded(p.ID)
		for _, wt := range p.Worktrees {
			if !expanded {
				last, ok := m.lastWorktreeSelect[wt.Path]
				if !ok || now.Sub(last) > recentSelectWindow {
					continue
				}
			}
			out = append(out, observer.WorktreeTarget{ProjectID: p.ID, Path: wt.Path, RequestEpoch: wt.DirtyEpoch})
		}
	}
	return out
}

func (m *Model) sessionTargets(now time.Time) []observer.SessionTarget {
	var out []observer.SessionTarget
	for _, p := range m.domain.Projects() {
		for _, wt := range p.Worktrees {
			for _, sess := range wt.Sessions {
				if sess.Status == model.Gone {
					continue
				}
				out = append(out, observer.SessionTarget{
					ProjectID:          p.ID,
					WorktreePath:       wt.Path,
					SessionID:          sess.ID,
					RequestEpoch:       sess.DirtyEpoch,
					Muted:              sess.Muted,
					DismissedAt:        sess.DismissedAt,
					PrevPaneLen:        m.prevPaneLen[sess.ID],
					PrevForegroundComm: m.prevForegroundComm[sess.ID],
					PrevProducing:      m.prevProducing[sess.ID],
				})
			}
		}
	}
	return out
}

func (m *Model) runGitStatus() tea.Cmd {
	targets := m.worktreeTargets()
	if len(targets) == 0 {
		return nil
	}
	git := m.git
	return func() tea.Msg {
		return gitStatusResultMsg(observer.RunGitStatus(context.Background(), git, targets))
	}
}

func (m *Model) runGitFetch() tea.Cmd {
	targets := m.gitFetchTargets()
	if len(targets) == 0 {
		return nil
	}
	git := m.git
	return func() tea.Msg {
		return gitFetchResultMsg(observer.RunGitFetch(context.Background(), git, targets))
	}
}

func (m *Model) runSessionList() tea.Cmd {
	targets := m.worktreeTargets()
	if len(targets) == 0 {
		return nil
	}
	mux := m.mux
	return func() tea.Msg {
		return sessionListResultMsg(observer.RunSessionList(context.Background(), mux, targets))
	}
}

func (m *Model) runActivityProbe() tea.Cmd {
	targets := m.sessionTargets(time.Now())
	if len(targets) == 0 {
		return nil
	}
	mux := m.mux
	classifier := m.classifier
	now := time.Now()
	return func() tea.Msg {
		return activityResultMsg(observer.RunActivityProbe(context.Background(), mux, classifier, targets, now))
	}
}

func (m *Model) scheduleGitStatusTick() tea.Cmd {
	return tea.Tick(observer.GitStatusInterval, func(t time.Time) tea.Msg { return gitStatusTickMsg(t) })
}

func (m *Model) scheduleGitFetchTick() tea.Cmd {
	return tea.Tick(observer.GitFetchInterval, func(t time.Time) tea.Msg { return gitFetchTickMsg(t) })
}

func (m *Model) scheduleSessionTick() tea.Cmd {
	return tea.Tick(observer.SessionTickInterval(m.anyActive), func(t time.Time) tea.Msg { return sessionTickMsg(t) })
}

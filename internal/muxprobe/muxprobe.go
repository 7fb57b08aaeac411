// pattern: Imperative Shell

// Package muxprobe wraps tmux queries and mutations on top of execx. Every
// call targets the host tmux server directly — wsx runs on the same
// terminal it manages, never inside a container (§4.3).
package muxprobe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"devagent/internal/execx"
)

// Session is one multiplexer session as reported by list-sessions.
type Session struct {
	Name           string
	CreatedAt      time.Time
	Attached       bool
	HasBell        bool
	LastActivityAt time.Time
}

// ForegroundProcess describes the pane's foreground process group leader.
type ForegroundProcess struct {
	PID    int
	Comm   string
	Argv0  string
}

// Probe wraps the tmux CLI via the shared Executor.
type Probe struct {
	exec *execx.Executor

	mu    sync.Mutex
	cache map[string]paneCacheEntry
}

// New creates a Probe backed by exec.
func New(exec *execx.Executor) *Probe {
	return &Probe{exec: exec}
}

func (p *Probe) tmux(ctx context.Context, args ...string) (*execx.Result, error) {
	return p.exec.Run(ctx, execx.Request{Argv: append([]string{"tmux"}, args...)})
}

// IsAvailable reports whether the tmux binary responds to `-V`.
func (p *Probe) IsAvailable(ctx context.Context) bool {
	_, err := p.tmux(ctx, "-V")
	return err == nil
}

// IsInsideTmux reports whether wsx itself is running inside a tmux client,
// which determines whether attach uses switch-client or attach-session.
func IsInsideTmux() bool {
	_, ok := os.LookupEnv("TMUX")
	return ok
}

// ListSessions runs `tmux list-sessions -F '#{session_name}:#{session_created}:#{session_attached}:#{session_alerts}:#{session_activity}'`
// and parses each line into a Session (§4.3).
func (p *Probe) ListSessions(ctx context.Context) ([]Session, error) {
	res, err := p.tmux(ctx, "list-sessions", "-F",
		"#{session_name}:#{session_created}:#{session_attached}:#{session_alerts}:#{session_activity}")
	if err != nil {
		// No server running yet means no sessions, not an error.
		return nil, nil
	}
	return parseSessionList(string(res.Stdout)), nil
}

func parseSessionList(output string) []Session {
	var sessions []Session
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 5)
		if len(parts) != 5 {
			continue
		}
		created, _ := strconv.ParseInt(parts[1], 10, 64)
		activity, _ := strconv.ParseInt(parts[4], 10, 64)
		alerts := strings.TrimSpace(parts[3])
		sessions = append(sessions, Session{
			Name:           parts[0],
			CreatedAt:      time.Unix(created, 0),
			Attached:       parts[2] != "0",
			HasBell:        alerts != "" && alerts != "0",
			LastActivityAt: time.Unix(activity, 0),
		})
	}
	return sessions
}

// SessionExists reports whether a named session is live.
func (p *Probe) SessionExists(ctx context.Context, name string) bool {
	_, err := p.tmux(ctx, "has-session", "-t", name)
	return err == nil
}

var paneCacheTTL = 250 * time.Millisecond

type paneCacheEntry struct {
	at   time.Time
	data []byte
}

// CapturePane returns the tail of a session's active pane, caching results
// per session for 250ms (§4.3) so repeated classifier/render reads within
// one tick don't re-invoke tmux.
func (p *Probe) CapturePane(ctx context.Context, session string, lines int) ([]byte, error) {
	if cached, ok := p.paneCache(session); ok {
		return cached, nil
	}
	res, err := p.tmux(ctx, "capture-pane", "-t", session, "-p", "-S", fmt.Sprintf("-%d", lines))
	if err != nil {
		return nil, err
	}
	p.storePaneCache(session, res.Stdout)
	return res.Stdout, nil
}

func (p *Probe) paneCache(session string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.cache[session]
	if !ok || time.Since(e.at) > paneCacheTTL {
		return nil, false
	}
	return e.data, true
}

func (p *Probe) storePaneCache(session string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache == nil {
		p.cache = make(map[string]paneCacheEntry)
	}
	p.cache[session] = paneCacheEntry{at: time.Now(), data: data}
}

// ForegroundProcess resolves the pane's TTY foreground process group
// leader by reading the pane PID from tmux and walking /proc — there is no
// portable process-table library in the dependency pack, so this one query
// falls back to direct procfs reads (see DESIGN.md).
func (p *Probe) ForegroundProcess(ctx context.Context, session string) (ForegroundProcess, error) {
	res, err := p.tmux(ctx, "display-message", "-p", "-t", session, "#{pane_pid}")
	if err != nil {
		return ForegroundProcess{}, err
	}
	panePID, err := strconv.Atoi(strings.TrimSpace(string(res.Stdout)))
	if err != nil {
		return ForegroundProcess{}, err
	}
	return foregroundProcessOf(panePID)
}

// NewSession creates a detached session with the given starting directory,
// optionally running command as its shell's initial command.
func (p *Probe) NewSession(ctx context.Context, name, cwd, command string, env []string) error {
	args := []string{"new-session", "-d", "-s", name, "-c", cwd}
	if command != "" {
		args = append(args, command)
	}
	req := execx.Request{Argv: append([]string{"tmux"}, args...), Env: env}
	_, err := p.exec.Run(ctx, req)
	return err
}

// SendKeys sends a payload to a session's active pane, followed by Enter
// when enter is true.
func (p *Probe) SendKeys(ctx context.Context, session, payload string, enter bool) error {
	args := []string{"send-keys", "-t", session, payload}
	if enter {
		args = append(args, "Enter")
	}
	_, err := p.tmux(ctx, args...)
	return err
}

// SendSignal delivers a named signal (e.g. "SIGINT") to the pane's
// foreground process: SIGINT as a C-c keypress through tmux send-keys,
// other signals to the resolved foreground process's PID.
func (p *Probe) SendSignal(ctx context.Context, session, signal string) error {
	if signal == "SIGINT" {
		_, err := p.tmux(ctx, "send-keys", "-t", session, "C-c")
		return err
	}
	fg, err := p.ForegroundProcess(ctx, session)
	if err != nil {
		return err
	}
	return sendSignalToPID(fg.PID, signal)
}

// KillSession destroys a session.
func (p *Probe) KillSession(ctx context.Context, name string) error {
	_, err := p.tmux(ctx, "kill-session", "-t", name)
	p.clearPaneCache(name)
	return err
}

func (p *Probe) clearPaneCache(session string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, session)
}

// SetOption sets a per-session tmux option.
func (p *Probe) SetOption(ctx context.Context, session, key, value string) error {
	_, err := p.tmux(ctx, "set-option", "-t", session, key, value)
	return err
}

// GetOption reads a per-session tmux option; PrepareAttach uses it to
// record status-right before attach.
func (p *Probe) GetOption(ctx context.Context, session, key string) (string, error) {
	res, err := p.tmux(ctx, "show-options", "-v", "-t", session, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// ClearBell clears the sticky bell flag once a session leaves Pending.
func (p *Probe) ClearBell(ctx context.Context, session string) error {
	_, err := p.tmux(ctx, "set-option", "-t", session, "monitor-bell", "off")
	if err != nil {
		return err
	}
	_, err = p.tmux(ctx, "set-option", "-t", session, "monitor-bell", "on")
	return err
}

// AttachCommand builds the *exec.Cmd that hands the terminal to tmux, using
// switch-client when wsx itself runs inside a tmux client and
// attach-session otherwise. It deliberately leaves Stdin/Stdout/Stderr
// unset: the tui package runs it via tea.ExecProcess, which wires the
// real terminal in after suspending bubbletea's raw-mode renderer (§4.3:
// "attach is synchronous from wsx's perspective").
func AttachCommand(session string) *exec.Cmd {
	if IsInsideTmux() {
		return exec.Command("tmux", "switch-client", "-t", session)
	}
	return exec.Command("tmux", "attach-session", "-t", session)
}

// Attach runs AttachCommand with the current process's stdio inherited,
// blocking until the multiplexer client returns. Used outside the tui
// package, where there is no bubbletea renderer to suspend.
func Attach(session string) error {
	cmd := AttachCommand(session)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// UniqueSessionName appends a numeric suffix to base until it no longer
// collides with a live session.
func (p *Probe) UniqueSessionName(ctx context.Context, base string) string {
	if !p.SessionExists(ctx, base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !p.SessionExists(ctx, candidate) {
			return candidate
		}
	}
}

// pattern: Functional Core

// Package activity classifies a session's liveness from raw multiplexer
// and process-table signals. Classify is pure: no probing, no I/O, no
// mutable state, so it can be exercised directly without a tmux server.
package activity

import "time"

// Windows holds the classifier's tunable time thresholds; main.go fills
// them from the [activity] config keys at startup (§9 open question
// resolution).
type Windows struct {
	Active        time.Duration
	Pending       time.Duration
	DismissGrace  time.Duration
}

// DefaultWindows returns the spec's defaults: 2s active, 2s pending, 10s
// dismiss grace. Classify does not read Pending: went-quiet is derived by
// the observer from two consecutive probe ticks.
func DefaultWindows() Windows {
	return Windows{
		Active:       2 * time.Second,
		Pending:      2 * time.Second,
		DismissGrace: 10 * time.Second,
	}
}

// Signals is everything Classify needs to decide a session's status. All
// fields are observed by MuxProbe or carried on the Model's Session.
type Signals struct {
	PaneBytesDelta uint64
	LastOutputAt   time.Time
	HasBellFlag    bool
	ForegroundComm string
	WentQuiet      bool
	Muted          bool
	DismissedAt    *time.Time
	Now            time.Time
}

// Classifier evaluates Signals against a configured PassiveSet/ShellSet
// and Windows.
type Classifier struct {
	Windows    Windows
	PassiveSet map[string]bool
	ShellSet   map[string]bool
}

// DefaultPassiveSet names processes whose going-quiet does not demand user
// attention: dev servers and file watchers (§ Glossary "Passive process").
func DefaultPassiveSet() map[string]bool {
	return boolSet("vite", "webpack", "webpack-dev-server", "next", "nodemon",
		"esbuild", "tsc", "jest", "watchexec", "cargo-watch", "air", "entr")
}

// DefaultShellSet names the common login-shell family, which should never
// itself register as a foreground command worth a Pending notification.
func DefaultShellSet() map[string]bool {
	return boolSet("bash", "zsh", "sh", "fish", "dash", "ksh", "tcsh")
}

func boolSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// New builds a Classifier with the spec's default windows and sets,
// overridable per field.
func New() *Classifier {
	return &Classifier{
		Windows:    DefaultWindows(),
		PassiveSet: DefaultPassiveSet(),
		ShellSet:   DefaultShellSet(),
	}
}

// SessionStatus mirrors model.SessionStatus without importing the model
// package, keeping the classifier free of any dependency beyond this
// package's own types (§4.4: "pure function").
type SessionStatus int

const (
	Idle SessionStatus = iota
	Active
	Pending
	Muted
)

func (s SessionStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Pending:
		return "pending"
	case Muted:
		return "muted"
	default:
		return "idle"
	}
}

// Classify implements the six ordered rules of §4.4, first match wins.
func (c *Classifier) Classify(s Signals) SessionStatus {
	if s.Muted {
		return Muted
	}
	if s.PaneBytesDelta > 0 && s.Now.Sub(s.LastOutputAt) < c.Windows.Active {
		return Active
	}
	if s.DismissedAt != nil && s.Now.Sub(*s.DismissedAt) < c.Windows.DismissGrace {
		return Idle
	}
	if s.HasBellFlag {
		return Pending
	}
	if s.WentQuiet && !c.PassiveSet[s.ForegroundComm] && !c.ShellSet[s.ForegroundComm] {
		return Pending
	}
	return Idle
}

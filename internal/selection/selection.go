// pattern: Functional Core

// Package selection maintains cursor position, filter text and the
// expansion set over the Project → Worktree → Session tree, and flattens
// that tree into the order the view renders. Every reference a caller
// holds across ticks is an identifier (ProjectID, worktree path,
// SessionID), never a slice index or pointer into the Model, so a
// worktree or session reconciled away by the observer leaves the
// selection able to fall back to the nearest surviving entry instead of
// reading stale memory (grounded in original_source/src/model/workspace.rs's
// FlatEntry/Selection, generalized from index to identifier addressing).
package selection

import (
	"strings"

	"devagent/internal/model"
)

// Kind identifies which tree level an Entry names.
type Kind int

const (
	ProjectKind Kind = iota
	WorktreeKind
	SessionKind
)

// Entry addresses one node of the flattened tree by identifier.
type Entry struct {
	Kind         Kind
	ProjectID    model.ProjectID
	WorktreePath string
	SessionID    model.SessionID
}

func projectEntry(id model.ProjectID) Entry { return Entry{Kind: ProjectKind, ProjectID: id} }
func worktreeEntry(id model.ProjectID, path string) Entry {
	return Entry{Kind: WorktreeKind, ProjectID: id, WorktreePath: path}
}
func sessionEntry(id model.ProjectID, path string, sid model.SessionID) Entry {
	return Entry{Kind: SessionKind, ProjectID: id, WorktreePath: path, SessionID: sid}
}

type expansionKey struct {
	projectID model.ProjectID
	path      string
}

// Engine owns cursor, filter and expansion state. It holds no reference
// into Model; Flatten is called fresh against whatever Model snapshot the
// caller currently has.
type Engine struct {
	cursor   Entry
	hasCursor bool
	filter   string

	collapsedProjects  map[model.ProjectID]bool
	collapsedWorktrees map[expansionKey]bool

	scrollOffset int
}

// NewEngine creates an Engine with nothing collapsed and no filter.
func NewEngine() *Engine {
	return &Engine{
		collapsedProjects:  make(map[model.ProjectID]bool),
		collapsedWorktrees: make(map[expansionKey]bool),
	}
}

// SetFilter updates the substring filter. Filtering keeps a project or
// worktree visible if it or any descendant matches.
func (e *Engine) SetFilter(s string) { e.filter = s }

// Filter returns the current filter text.
func (e *Engine) Filter() string { return e.filter }

// ToggleProjectExpanded flips a project's collapsed state.
func (e *Engine) ToggleProjectExpanded(id model.ProjectID) {
	e.collapsedProjects[id] = !e.collapsedProjects[id]
}

// ToggleWorktreeExpanded flips a worktree's collapsed state.
func (e *Engine) ToggleWorktreeExpanded(id model.ProjectID, path string) {
	k := expansionKey{id, path}
	e.collapsedWorktrees[k] = !e.collapsedWorktrees[k]
}

// ProjectExpanded reports whether a project's children are currently shown.
func (e *Engine) ProjectExpanded(id model.ProjectID) bool {
	return !e.collapsedProjects[id]
}

// Flatten computes the current visible, filtered, expansion-aware order
// (§4.5's "flattened visible order" derived index, owned here rather than
// on Model — see DESIGN.md).
func (e *Engine) Flatten(m *model.Model) []Entry {
	var out []Entry
	for _, p := range m.Projects() {
		pMatch, anyDescendant := e.matchProject(p)
		if !pMatch && !anyDescendant {
			continue
		}
		out = append(out, projectEntry(p.ID))
		if e.collapsedProjects[p.ID] {
			continue
		}
		for _, wt := range p.Worktrees {
			wMatch, wAnyDescendant := e.matchWorktree(pMatch, wt)
			if !wMatch && !wAnyDescendant {
				continue
			}
			out = append(out, worktreeEntry(p.ID, wt.Path))
			if e.collapsedWorktrees[expansionKey{p.ID, wt.Path}] {
				continue
			}
			for _, sess := range wt.Sessions {
				if !wMatch && !e.matchSession(sess) {
					continue
				}
				out = append(out, sessionEntry(p.ID, wt.Path, sess.ID))
			}
		}
	}
	return out
}

func (e *Engine) matchProject(p *model.Project) (selfMatch, anyDescendant bool) {
	if e.filter == "" {
		return true, true
	}
	if containsFold(p.DisplayName(), e.filter) {
		return true, true
	}
	for _, wt := range p.Worktrees {
		if wMatch, wAny := e.matchWorktree(false, wt); wMatch || wAny {
			return false, true
		}
	}
	return false, false
}

func (e *Engine) matchWorktree(parentMatched bool, wt *model.Worktree) (selfMatch, anyDescendant bool) {
	if e.filter == "" || parentMatched {
		return true, true
	}
	if containsFold(wt.DisplayName(), e.filter) {
		return true, true
	}
	for _, sess := range wt.Sessions {
		if e.matchSession(sess) {
			return false, true
		}
	}
	return false, false
}

func (e *Engine) matchSession(sess *model.Session) bool {
	if e.filter == "" {
		return true
	}
	name := sess.Alias
	if name == "" {
		name = string(sess.ID)
	}
	return containsFold(name, e.filter)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Cursor returns the currently selected entry and whether one is set.
func (e *Engine) Cursor() (Entry, bool) { return e.cursor, e.hasCursor }

// SetCursor directly assigns the cursor, used after creating a new entry
// the dispatcher wants to immediately select.
func (e *Engine) SetCursor(entry Entry) {
	e.cursor = entry
	e.hasCursor = true
}

// indexOf finds entry's position in flat, or -1.
func indexOf(flat []Entry, entry Entry) int {
	for i, f := range flat {
		if f == entry {
			return i
		}
	}
	return -1
}

// Reconcile clamps the cursor to the nearest surviving entry after a
// Model mutation removed whatever the cursor pointed at. Call this with
// a freshly computed flat list before rendering.
func (e *Engine) Reconcile(flat []Entry) {
	if len(flat) == 0 {
		e.hasCursor = false
		return
	}
	if !e.hasCursor {
		e.cursor = flat[0]
		e.hasCursor = true
		return
	}
	if indexOf(flat, e.cursor) >= 0 {
		return
	}
	e.cursor = flat[0]
}

// MoveDown advances the cursor one entry, clamping at the end.
func (e *Engine) MoveDown(flat []Entry) {
	e.move(flat, 1)
}

// MoveUp retreats the cursor one entry, clamping at the start.
func (e *Engine) MoveUp(flat []Entry) {
	e.move(flat, -1)
}

func (e *Engine) move(flat []Entry, delta int) {
	if len(flat) == 0 {
		e.hasCursor = false
		return
	}
	i := indexOf(flat, e.cursor)
	if i < 0 {
		i = 0
	} else {
		i += delta
		if i < 0 {
			i = 0
		}
		if i >= len(flat) {
			i = len(flat) - 1
		}
	}
	e.cursor = flat[i]
	e.hasCursor = true
}

// JumpNextProject moves the cursor to the next project entry after the
// current position, wrapping around.
func (e *Engine) JumpNextProject(flat []Entry) { e.jumpKind(flat, ProjectKind, 1) }

// JumpPrevProject moves the cursor to the previous project entry, wrapping.
func (e *Engine) JumpPrevProject(flat []Entry) { e.jumpKind(flat, ProjectKind, -1) }

func (e *Engine) jumpKind(flat []Entry, kind Kind, dir int) {
	if len(flat) == 0 {
		return
	}
	start := indexOf(flat, e.cursor)
	if start < 0 {
		start = 0
	}
	n := len(flat)
	for step := 1; step <= n; step++ {
		i := ((start+dir*step)%n + n) % n
		if flat[i].Kind == kind {
			e.cursor = flat[i]
			e.hasCursor = true
			return
		}
	}
}

// JumpNextMatching moves the cursor to the next session entry for which
// pred returns true, searching forward from the current position and
// wrapping exactly once around the tree — the `next_active_cursor` /
// `next_pending_cursor` circular cursors of §4.5, addressed by identifier
// rather than stored as a running index so they stay correct across
// Model mutations between jumps.
func (e *Engine) JumpNextMatching(flat []Entry, pred func(Entry) bool) bool {
	if len(flat) == 0 {
		return false
	}
	start := indexOf(flat, e.cursor)
	if start < 0 {
		start = -1
	}
	n := len(flat)
	for step := 1; step <= n; step++ {
		i := (start + step) % n
		if flat[i].Kind == SessionKind && pred(flat[i]) {
			e.cursor = flat[i]
			e.hasCursor = true
			return true
		}
	}
	return false
}

// ScrollOffset returns the first visible row index.
func (e *Engine) ScrollOffset() int { return e.scrollOffset }

// EnsureVisible adjusts the scroll offset so the cursor stays within the
// asymmetric 1/4–3/4 band of a viewport of height rows: scrolling down
// keeps the cursor from passing the 3/4 line, scrolling up keeps it from
// passing the 1/4 line, so the view doesn't visibly jump on every single
// step once the cursor is mid-viewport (§6).
func (e *Engine) EnsureVisible(flat []Entry, height int) {
	if height <= 0 || len(flat) == 0 {
		return
	}
	i := indexOf(flat, e.cursor)
	if i < 0 {
		i = 0
	}

	lowerBand := e.scrollOffset + height/4
	upperBand := e.scrollOffset + (3*height)/4

	if i > upperBand {
		e.scrollOffset = i - (3*height)/4
	} else if i < lowerBand {
		e.scrollOffset = i - height/4
	}
	if e.scrollOffset < 0 {
		e.scrollOffset = 0
	}
	if maxOffset := len(flat) - height; maxOffset > 0 && e.scrollOffset > maxOffset {
		e.scrollOffset = maxOffset
	}
	if e.scrollOffset < 0 {
		e.scrollOffset = 0
	}
}

// pattern: Functional Core

package tui

// Region defines a rectangular area within the terminal.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Layout holds the computed regions for the four chrome elements described
// in §6: a top search line, a left sidebar tree, a right preview pane, and
// a bottom status line.
type Layout struct {
	Search    Region
	Sidebar   Region
	Preview   Region
	StatusBar Region
}

const (
	searchHeight    = 1
	statusBarHeight = 1
)

// ComputeLayout splits the terminal into the four regions, giving the
// sidebar 40% of the width and the preview pane the remainder.
func ComputeLayout(width, height int) Layout {
	contentHeight := height - searchHeight - statusBarHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	sidebarWidth := width * 2 / 5
	if sidebarWidth < 20 {
		sidebarWidth = width
	}
	previewWidth := width - sidebarWidth

	return Layout{
		Search:    Region{X: 0, Y: 0, Width: width, Height: searchHeight},
		Sidebar:   Region{X: 0, Y: searchHeight, Width: sidebarWidth, Height: contentHeight},
		Preview:   Region{X: sidebarWidth, Y: searchHeight, Width: previewWidth, Height: contentHeight},
		StatusBar: Region{X: 0, Y: searchHeight + contentHeight, Width: width, Height: statusBarHeight},
	}
}

package tui

import "testing"

func TestComputeLayout_SplitsRegions(t *testing.T) {
	layout := ComputeLayout(100, 24)

	if layout.Search.Height != 1 || layout.Search.Width != 100 {
		t.Errorf("Search = %+v, want height 1 width 100", layout.Search)
	}
	if layout.StatusBar.Height != 1 || layout.StatusBar.Width != 100 {
		t.Errorf("StatusBar = %+v, want height 1 width 100", layout.StatusBar)
	}
	if layout.Sidebar.Width != 40 {
		t.Errorf("Sidebar.Width = %d, want 40 (2/5 of 100)", layout.Sidebar.Width)
	}
	if layout.Preview.Width != 60 {
		t.Errorf("Preview.Width = %d, want 60", layout.Preview.Width)
	}
	if layout.Sidebar.Height != layout.Preview.Height {
		t.Errorf("Sidebar.Height %d != Preview.Height %d", layout.Sidebar.Height, layout.Preview.Height)
	}
	wantContent := 24 - searchHeight - statusBarHeight
	if layout.Sidebar.Height != wantContent {
		t.Errorf("Sidebar.Height = %d, want %d", layout.Sidebar.Height, wantContent)
	}
	if layout.Preview.X != layout.Sidebar.Width {
		t.Errorf("Preview.X = %d, want %d", layout.Preview.X, layout.Sidebar.Width)
	}
	if layout.StatusBar.Y != layout.Sidebar.Y+layout.Sidebar.Height {
		t.Errorf("StatusBar.Y = %d, want below sidebar", layout.StatusBar.Y)
	}
}

func TestComputeLayout_NarrowTerminalFallsBackToFullWidthSidebar(t *testing.T) {
	layout := ComputeLayout(30, 24)

	if layout.Sidebar.Width != 30 {
		t.Errorf("Sidebar.Width = %d, want 30 (fallback below the 20-col floor)", layout.Sidebar.Width)
	}
	if layout.Preview.Width != 0 {
		t.Errorf("Preview.Width = %d, want 0", layout.Preview.Width)
	}
}

func TestComputeLayout_MinimumHeightNeverGoesNegative(t *testing.T) {
	layout := ComputeLayout(80, 1)

	if layout.Sidebar.Height < 1 {
		t.Errorf("Sidebar.Height = %d, want >= 1", layout.Sidebar.Height)
	}
}

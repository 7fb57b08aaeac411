package tui

import "testing"

func TestStyles_AllFlavors(t *testing.T) {
	for _, flavor := range []string{"latte", "frappe", "macchiato", "mocha", "unknown"} {
		t.Run(flavor, func(t *testing.T) {
			styles := NewStyles(flavor)
			_ = styles.TitleStyle()
			_ = styles.CursorStyle()
			_ = styles.DimStyle()
			_ = styles.StatusStyle("active")
			_ = styles.GitIndicatorStyle(false, false)
		})
	}
}

func TestCursorStyle_IsBold(t *testing.T) {
	styles := NewStyles("mocha")
	if !styles.CursorStyle().GetBold() {
		t.Error("CursorStyle should be bold")
	}
}

func TestStatusStyle_GoneIsStruckThrough(t *testing.T) {
	styles := NewStyles("mocha")
	if !styles.StatusStyle("gone").GetStrikethrough() {
		t.Error("StatusStyle(\"gone\") should be struck through")
	}
	if styles.StatusStyle("active").GetStrikethrough() {
		t.Error("StatusStyle(\"active\") should not be struck through")
	}
}

func TestStatusStyle_ActiveIsBoldAndDistinctFromPending(t *testing.T) {
	styles := NewStyles("mocha")
	active := styles.StatusStyle("active")
	pending := styles.StatusStyle("pending")
	if !active.GetBold() {
		t.Error("StatusStyle(\"active\") should be bold")
	}
	if active.GetForeground() == pending.GetForeground() {
		t.Error("active and pending should render in different colors")
	}
}

func TestGitIndicatorStyle_DivergedOutranksDirty(t *testing.T) {
	styles := NewStyles("mocha")
	diverged := styles.GitIndicatorStyle(true, true)
	dirty := styles.GitIndicatorStyle(true, false)
	clean := styles.GitIndicatorStyle(false, false)
	if diverged.GetForeground() == dirty.GetForeground() {
		t.Error("diverged and merely-dirty should render in different colors")
	}
	if dirty.GetForeground() == clean.GetForeground() {
		t.Error("dirty and clean should render in different colors")
	}
}

package tui

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

type Styles struct {
	flavor catppuccin.Flavor
}

func NewStyles(themeName string) *Styles {
	flavor := flavorFromName(themeName)
	return &Styles{flavor: flavor}
}

func flavorFromName(name string) catppuccin.Flavor {
	switch name {
	case "latte":
		return catppuccin.Latte
	case "frappe":
		return catppuccin.Frappe
	case "macchiato":
		return catppuccin.Macchiato
	case "mocha":
		return catppuccin.Mocha
	default:
		return catppuccin.Mocha
	}
}

func (s *Styles) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(s.flavor.Mauve().Hex)).
		MarginBottom(1)
}

func (s *Styles) SubtitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Subtext0().Hex)).
		MarginBottom(1)
}

func (s *Styles) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Overlay0().Hex)).
		MarginTop(1)
}

func (s *Styles) BoxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(s.flavor.Surface1().Hex)).
		Padding(1, 2)
}

func (s *Styles) InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Text().Hex))
}

func (s *Styles) AccentStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Teal().Hex))
}

func (s *Styles) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Red().Hex)).
		Bold(true)
}

func (s *Styles) CursorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(s.flavor.Surface1().Hex)).
		Foreground(lipgloss.Color(s.flavor.Text().Hex)).
		Bold(true)
}

func (s *Styles) DimStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.flavor.Overlay1().Hex))
}

// StatusStyle colors a session's status indicator per §6: active green,
// pending yellow, muted overlay, idle dim, gone struck through.
func (s *Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "active":
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Green().Hex)).Bold(true)
	case "pending":
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Yellow().Hex))
	case "muted":
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Overlay0().Hex))
	case "gone":
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Overlay0().Hex)).Strikethrough(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Subtext1().Hex))
	}
}

// GitIndicatorStyle colors a worktree's git-state indicator (dirty yellow,
// diverged red, clean dim).
func (s *Styles) GitIndicatorStyle(dirty, diverged bool) lipgloss.Style {
	switch {
	case diverged:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Red().Hex))
	case dirty:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Yellow().Hex))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(s.flavor.Overlay1().Hex))
	}
}

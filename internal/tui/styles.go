package tui

import (
	"github.com/charmbracelet/lipgloss"

	"ferrousowl/internal/config"
	"ferrousowl/internal/lsp"
)

var (
	// HeaderStyle styles column headers and titles.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	faintStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		statusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"ok":          lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"valid":       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"finished":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"analyzing":   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		statusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"warning":     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"outdated":    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		statusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"error":       lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"invalid":     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		statusPending: faintStyle,
		"missing":     faintStyle,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// DecorationStyles maps each styled decoration set to its underline style.
type DecorationStyles map[lsp.SetKind]lipgloss.Style

// NewDecorationStyles builds underline styles from the configured colors.
// A thickness of zero draws color without underline; three or more adds bold,
// the closest a terminal gets to a heavier line.
func NewDecorationStyles(cfg config.DecorationsConfig) DecorationStyles {
	colors := map[lsp.SetKind]string{
		lsp.SetLifetime:        cfg.LifetimeColor,
		lsp.SetMoveCall:        cfg.MoveCallColor,
		lsp.SetImmutableBorrow: cfg.ImmutableBorrowColor,
		lsp.SetMutableBorrow:   cfg.MutableBorrowColor,
		lsp.SetOutlive:         cfg.OutliveColor,
	}
	styles := make(DecorationStyles, len(colors))
	for kind, color := range colors {
		st := lipgloss.NewStyle().Underline(cfg.UnderlineThickness > 0)
		if color != "" {
			st = st.Foreground(lipgloss.Color(color))
		}
		if cfg.UnderlineThickness >= 3 {
			st = st.Bold(true)
		}
		styles[kind] = st
	}
	return styles
}

func (s DecorationStyles) style(kind lsp.SetKind) lipgloss.Style {
	if st, ok := s[kind]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

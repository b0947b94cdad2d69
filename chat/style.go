package chat

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dkozel/graphchat/config"
)

// Styles maps the named style roles to their terminal presentation. A Styles
// value is passed in at construction; nothing in this package mutates
// process-wide style state.
type Styles struct {
	Human    lipgloss.Style
	Thinking lipgloss.Style
	Bot      lipgloss.Style
	Code     lipgloss.Style
	Info     lipgloss.Style
	Multi    lipgloss.Style
	System   lipgloss.Style
}

// DefaultStyles returns the stock palette.
func DefaultStyles() Styles {
	return Styles{
		Human:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff00")).Bold(true),
		Thinking: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff00ff")).Italic(true),
		Bot:      lipgloss.NewStyle().Bold(true),
		Code:     lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")),
		Info:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),
		Multi:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ff8800")).Bold(true),
		System:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// PlainStyles returns styles that render text unchanged. Used by tests and
// non-terminal front-ends.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Human:    plain,
		Thinking: plain,
		Bot:      plain,
		Code:     plain,
		Info:     plain,
		Multi:    plain,
		System:   plain,
	}
}

// StylesFromConfig starts from the default palette and applies per-role
// overrides from the configuration.
func StylesFromConfig(specs map[string]config.StyleSpec) Styles {
	styles := DefaultStyles()
	for role, spec := range specs {
		st := lipgloss.NewStyle()
		if spec.Color != "" {
			st = st.Foreground(lipgloss.Color(spec.Color))
		}
		st = st.Bold(spec.Bold).Italic(spec.Italic)
		switch role {
		case "human":
			styles.Human = st
		case "thinking":
			styles.Thinking = st
		case "bot":
			styles.Bot = st
		case "code":
			styles.Code = st
		case "info":
			styles.Info = st
		case "multi":
			styles.Multi = st
		case "system":
			styles.System = st
		}
	}
	return styles
}

// forMode selects the style applied to streamed output lines.
func (s Styles) forMode(m Mode) lipgloss.Style {
	switch m {
	case ModeThinking:
		return s.Thinking
	case ModeCode:
		return s.Code
	default:
		return s.Bot
	}
}

// Package styles holds the colours shared by the CLI output, the markdown
// reports and the interactive UI.
package styles

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

var (
	Title     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	Signature = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Guac.Hex()))
	Address   = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	Muted     = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Squid.Hex()))
	Warning   = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Tang.Hex()))
	Error     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Cherry.Hex()))
	Selected  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)

// NoColor reports whether SIGGA_NO_COLOR asks for plain output.
func NoColor() bool {
	return os.Getenv("SIGGA_NO_COLOR") != ""
}

// Render applies style unless colour is disabled.
func Render(style lipgloss.Style, text string) string {
	if NoColor() {
		return text
	}
	return style.Render(text)
}

// GetMarkdownRenderer returns a glamour TermRenderer for signature reports.
func GetMarkdownRenderer(width int) *glamour.TermRenderer {
	style := glamour.WithStyles(GetMarkdownStyle())
	if NoColor() {
		style = glamour.WithStandardStyle("notty")
	}
	r, _ := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	return r
}

// GetMarkdownStyle returns the markdown style configuration
func GetMarkdownStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Smoke.Hex()),
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(charmtone.Malibu.Hex()),
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix:          " ",
				Suffix:          " ",
				Color:           stringPtr(charmtone.Zest.Hex()),
				BackgroundColor: stringPtr(charmtone.Charple.Hex()),
				Bold:            boolPtr(true),
			},
		},
		H2: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{Prefix: "## "},
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		Emph: ansi.StylePrimitive{
			Italic: boolPtr(true),
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Tang.Hex()),
			},
			Indent:      uintPtr(1),
			IndentToken: stringPtr("│ "),
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Guac.Hex()),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Guac.Hex()),
				},
				Margin: uintPtr(2),
			},
		},
		Table: ansi.StyleTable{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{},
			},
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  stringPtr(charmtone.Charcoal.Hex()),
			Format: "\n--------\n",
		},
		Text: ansi.StylePrimitive{},
	}
}

package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette holds the styles used for all console output.
type Palette struct {
	Prefix      lipgloss.Style
	Text        lipgloss.Style
	Target      lipgloss.Style
	Dependency  lipgloss.Style
	Input       lipgloss.Style
	Tree        lipgloss.Style
	Succeeded   lipgloss.Style
	Failed      lipgloss.Style
	Warning     lipgloss.Style
	Verbose     lipgloss.Style
	Timing      lipgloss.Style
	Label       lipgloss.Style
	Option      lipgloss.Style
	CommandLine lipgloss.Style
}

// NewPalette builds a palette rendering for w. With noColor every style
// renders plain text.
func NewPalette(w io.Writer, noColor bool, host Host) Palette {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	// AppVeyor and TeamCity logs render bright colours poorly on their
	// light backgrounds.
	bright := host != HostAppveyor && host != HostTeamCity

	pick := func(normal, brightColor string) lipgloss.Color {
		if bright {
			return lipgloss.Color(brightColor)
		}
		return lipgloss.Color(normal)
	}

	style := r.NewStyle
	return Palette{
		Prefix:      style().Foreground(pick("5", "13")),
		Text:        style(),
		Target:      style().Foreground(pick("6", "14")),
		Dependency:  style().Foreground(pick("4", "12")),
		Input:       style().Foreground(pick("3", "11")),
		Tree:        style().Foreground(lipgloss.Color("240")),
		Succeeded:   style().Foreground(pick("2", "10")).Bold(true),
		Failed:      style().Foreground(pick("1", "9")).Bold(true),
		Warning:     style().Foreground(pick("3", "11")),
		Verbose:     style().Foreground(lipgloss.Color("241")),
		Timing:      style().Foreground(pick("5", "13")),
		Label:       style().Foreground(pick("7", "15")).Bold(true),
		Option:      style().Foreground(pick("3", "11")),
		CommandLine: style().Foreground(pick("2", "10")),
	}
}

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/iksnae/devtrail/internal"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

var sourceStyles = map[internal.Source]lipgloss.Style{
	internal.SourceClaude: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	internal.SourceCursor: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	internal.SourceCLI:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	internal.SourceGit:    lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
}

// printEvent writes one timeline line plus an indented, truncated text body.
func printEvent(w io.Writer, ev internal.Event, now time.Time, width int) {
	label := fmt.Sprintf("%-6s %-12s", ev.Source, ev.Kind)
	if style, ok := sourceStyles[ev.Source]; ok {
		label = style.Render(label)
	}
	when := humanize.RelTime(time.UnixMilli(ev.TS), now, "ago", "from now")

	header := fmt.Sprintf("%s %s", dimStyle.Render(fmt.Sprintf("%-16s", when)), label)
	if ev.Actor != "" {
		header += " " + string(ev.Actor)
	}
	if ev.File != "" {
		header += " " + infoStyle.Render(ev.File)
	}
	fmt.Fprintln(w, header)

	text := strings.Join(strings.Fields(ev.Text), " ")
	if r := []rune(text); width > 0 && len(r) > width {
		text = string(r[:width]) + "…"
	}
	fmt.Fprintf(w, "    %s\n", text)
}

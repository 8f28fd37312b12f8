package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/devtrail/internal"
)

// MarkdownExporter renders events as a day-grouped timeline.
type MarkdownExporter struct {
	// Location for displayed times; nil means local time.
	Location *time.Location
}

// Export exports events to Markdown format
func (e *MarkdownExporter) Export(events []internal.Event, w io.Writer) error {
	loc := e.Location
	if loc == nil {
		loc = time.Local
	}

	if _, err := fmt.Fprintf(w, "# Timeline\n\n**Events:** %d\n", len(events)); err != nil {
		return err
	}
	if len(events) > 0 {
		first := time.UnixMilli(events[0].TS).In(loc)
		last := time.UnixMilli(events[len(events)-1].TS).In(loc)
		_, _ = fmt.Fprintf(w, "**Range:** %s to %s\n", first.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	day := ""
	for _, ev := range events {
		ts := time.UnixMilli(ev.TS).In(loc)
		if d := ts.Format("2006-01-02"); d != day {
			day = d
			_, _ = fmt.Fprintf(w, "\n## %s\n", day)
		}

		heading := fmt.Sprintf("%s %s/%s", ts.Format("15:04:05"), ev.Source, ev.Kind)
		if ev.Actor != "" {
			heading += " (" + string(ev.Actor) + ")"
		}
		if ev.File != "" {
			heading += " `" + ev.File + "`"
		}
		_, _ = fmt.Fprintf(w, "\n### %s\n\n%s\n", heading, escapeMarkdown(ev.Text))
	}
	return nil
}

// escapeMarkdown escapes emphasis markers outside code fences.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			if strings.HasPrefix(line, "#") {
				line = "\\" + line
			}
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

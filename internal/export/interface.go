package export

import (
	"errors"
	"io"

	"github.com/iksnae/devtrail/internal"
)

// Exporter writes a list of events in one format.
type Exporter interface {
	Export(events []internal.Event, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, &internal.ExportError{Format: format, Err: errors.New("unsupported format (supported: jsonl, md, yaml, json)")}
	}
}

// nonNil keeps empty exports encoding as [] rather than null.
func nonNil(events []internal.Event) []internal.Event {
	if events == nil {
		return []internal.Event{}
	}
	return events
}

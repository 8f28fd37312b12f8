package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/devtrail/internal"
)

// JSONLExporter exports events in JSONL format (one event per line)
type JSONLExporter struct{}

// Export exports events to JSONL format
func (e *JSONLExporter) Export(events []internal.Event, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}

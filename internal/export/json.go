package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/devtrail/internal"
)

// JSONExporter exports events as one pretty-printed JSON array.
type JSONExporter struct{}

// Export exports events to JSON format
func (e *JSONExporter) Export(events []internal.Event, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(nonNil(events))
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

package export

import (
	"io"

	"github.com/iksnae/devtrail/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports events as a YAML sequence.
type YAMLExporter struct{}

// Export exports events to YAML format
func (e *YAMLExporter) Export(events []internal.Event, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(nonNil(events))
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

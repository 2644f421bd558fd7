// Package export writes the local transcript in portable formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

// Transcript wraps the exported record list with basic provenance.
type Transcript struct {
	ExportedAt  string          `json:"exported_at" yaml:"exported_at"`
	RecordCount int             `json:"record_count" yaml:"record_count"`
	Records     []record.Record `json:"records" yaml:"records"`
}

func newTranscript(records []record.Record) Transcript {
	record.SortByTimestamp(records)
	return Transcript{
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		RecordCount: len(records),
		Records:     records,
	}
}

// WriteJSON writes the transcript as pretty-printed JSON.
func WriteJSON(w io.Writer, records []record.Record) error {
	data, err := json.MarshalIndent(newTranscript(records), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// WriteYAML writes the transcript as YAML.
func WriteYAML(w io.Writer, records []record.Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newTranscript(records)); err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return enc.Close()
}

package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

func sampleRecords() []record.Record {
	return []record.Record{
		{ID: "b", Text: "second", Speaker: record.SpeakerBot, Timestamp: 2000, SyncState: record.StateSynced},
		{ID: "a", Text: "first", Speaker: record.SpeakerUser, Timestamp: 1000, SyncState: record.StateLocal},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var tr Transcript
	if err := json.Unmarshal(buf.Bytes(), &tr); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if tr.RecordCount != 2 || len(tr.Records) != 2 {
		t.Fatalf("transcript = %+v", tr)
	}
	// Export is in display order regardless of input order.
	if tr.Records[0].ID != "a" || tr.Records[1].ID != "b" {
		t.Errorf("records not sorted: %s, %s", tr.Records[0].ID, tr.Records[1].ID)
	}
	if tr.ExportedAt == "" {
		t.Error("exported_at missing")
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteYAML(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	var tr Transcript
	if err := yaml.Unmarshal(buf.Bytes(), &tr); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if tr.RecordCount != 2 || tr.Records[0].ID != "a" {
		t.Errorf("transcript = %+v", tr)
	}
	if !strings.Contains(buf.String(), "record_count: 2") {
		t.Errorf("unexpected YAML:\n%s", buf.String())
	}
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var tr Transcript
	if err := json.Unmarshal(buf.Bytes(), &tr); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if tr.RecordCount != 0 {
		t.Errorf("record_count = %d, want 0", tr.RecordCount)
	}
}

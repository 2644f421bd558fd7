package record

import (
	"testing"
)

func TestValidate(t *testing.T) {
	valid := Record{
		ID:        "r-1",
		Text:      "hello",
		Speaker:   SpeakerUser,
		Timestamp: 1700000000000,
		SyncState: StateLocal,
	}

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(r *Record) {}, false},
		{"valid bot", func(r *Record) { r.Speaker = SpeakerBot }, false},
		{"missing id", func(r *Record) { r.ID = "" }, true},
		{"empty text", func(r *Record) { r.Text = "" }, true},
		{"whitespace text", func(r *Record) { r.Text = "   \t\n" }, true},
		{"unknown speaker", func(r *Record) { r.Speaker = "narrator" }, true},
		{"zero timestamp", func(r *Record) { r.Timestamp = 0 }, true},
		{"negative timestamp", func(r *Record) { r.Timestamp = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeMillis(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"seconds converted", 1700000000, 1700000000000},
		{"millis unchanged", 1700000000000, 1700000000000},
		{"zero unchanged", 0, 0},
		{"negative unchanged", -1, -1},
		{"boundary is seconds", 999999999999, 999999999999000},
		{"just above boundary is millis", 1000000000000, 1000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMillis(tt.in); got != tt.want {
				t.Errorf("NormalizeMillis(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSortByTimestamp(t *testing.T) {
	records := []Record{
		{ID: "c", Timestamp: 3000},
		{ID: "a", Timestamp: 1000},
		{ID: "b", Timestamp: 2000},
		{ID: "b2", Timestamp: 2000},
	}

	SortByTimestamp(records)

	wantOrder := []string{"a", "b", "b2", "c"}
	for i, want := range wantOrder {
		if records[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, records[i].ID, want)
		}
	}
}

// Package record defines the canonical chat record and its sync state.
package record

import (
	"fmt"
	"sort"
	"strings"
)

// Speaker identifies which side of the conversation produced a record.
type Speaker string

const (
	// SpeakerUser marks a record authored by the person using the app.
	SpeakerUser Speaker = "user"
	// SpeakerBot marks a record authored by the imotara assistant.
	SpeakerBot Speaker = "bot"
)

// SyncState tracks whether a record is known to exist on the remote.
//
// The state is monotonic: a record moves local -> synced and never back,
// except through a full store reset.
type SyncState string

const (
	// StateLocal means the record exists only in the local store.
	StateLocal SyncState = "local"
	// StateSynced means the remote has acknowledged the record.
	StateSynced SyncState = "synced"
)

// millisThreshold separates epoch seconds from epoch milliseconds.
// Any timestamp below it is assumed to be seconds.
const millisThreshold = int64(1e12)

// Record is one chat turn held by the local store.
//
// ID is globally unique and stable across local and remote copies.
// Timestamp is epoch milliseconds. Text and Speaker are immutable after
// creation; only SyncState mutates.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	Speaker   Speaker   `json:"speaker" yaml:"speaker"`
	Timestamp int64     `json:"timestamp" yaml:"timestamp"`
	SyncState SyncState `json:"syncState" yaml:"syncState"`
}

// Validate checks that the record is storable.
//
// Corrupt persisted data and malformed remote payloads are filtered with
// this check rather than crashing the loader.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if r.Speaker != SpeakerUser && r.Speaker != SpeakerBot {
		return fmt.Errorf("unknown speaker %q", r.Speaker)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive (got %d)", r.Timestamp)
	}
	return nil
}

// NormalizeMillis converts epoch seconds to epoch milliseconds.
//
// Sources disagree on timestamp resolution; values below 1e12 are treated
// as seconds (1e12 ms is roughly the year 2001, 1e12 s is tens of
// thousands of years out, so the ranges do not overlap in practice).
func NormalizeMillis(ts int64) int64 {
	if ts > 0 && ts < millisThreshold {
		return ts * 1000
	}
	return ts
}

// SortByTimestamp orders records ascending by timestamp for display.
// Equal timestamps keep their relative order.
func SortByTimestamp(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
}

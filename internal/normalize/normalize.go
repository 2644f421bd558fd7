// Package normalize converts arbitrary remote payloads into canonical records.
//
// The remote endpoint has no fixed schema: historical clients used different
// field names for the same logical data, and analysis-style payloads nest
// text under reflections or summary objects. Rather than strict typed
// parsing, each logical field is resolved through an ordered alias chain.
//
// Normalize is total. It never panics and never returns an error; a payload
// that yields no usable text is rejected with ok=false, which callers count
// but do not surface.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

// textKeys is the resolution order for the record body.
var textKeys = []string{"text", "message", "content", "body", "prompt"}

// lastResortTextKeys are tried only after the reflection/summary fallbacks.
var lastResortTextKeys = []string{"description", "title"}

// speakerKeys is the resolution order for the speaker label.
var speakerKeys = []string{"from", "role", "author", "speaker", "source"}

// timestampKeys is the resolution order for the record timestamp.
// reflections[0].createdAt is handled separately between computedAt and
// createdAt.
var timestampKeys = []string{"timestamp", "computedAt"}

var userAliases = map[string]bool{
	"user":  true,
	"human": true,
	"you":   true,
}

var botAliases = map[string]bool{
	"assistant": true,
	"bot":       true,
	"ai":        true,
	"imotara":   true,
}

// Normalize maps a raw remote payload to a canonical record.
//
// Returns ok=false when the payload carries no non-empty text under any
// known alias; that outcome is a silent drop, not an error. Records that
// survive normalization are always in the synced state because they were
// observed on the remote.
func Normalize(raw any) (record.Record, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return record.Record{}, false
	}

	text := extractText(obj)
	if text == "" {
		return record.Record{}, false
	}

	ts := extractTimestamp(obj)

	r := record.Record{
		ID:        extractID(obj, ts),
		Text:      text,
		Speaker:   extractSpeaker(obj),
		Timestamp: ts,
		SyncState: record.StateSynced,
	}
	if err := r.Validate(); err != nil {
		return record.Record{}, false
	}
	return r, true
}

// NormalizeAll runs Normalize over a raw list, dropping rejects.
func NormalizeAll(raws []any) []record.Record {
	records := make([]record.Record, 0, len(raws))
	for _, raw := range raws {
		if r, ok := Normalize(raw); ok {
			records = append(records, r)
		}
	}
	return records
}

// extractText resolves the record body: direct aliases first, then the
// reflection and summary fallbacks, then description/title.
func extractText(obj map[string]any) string {
	if s := firstString(obj, textKeys...); s != "" {
		return s
	}
	if s := reflectionText(obj); s != "" {
		return s
	}
	if s := summaryText(obj); s != "" {
		return s
	}
	return firstString(obj, lastResortTextKeys...)
}

// reflectionText pulls reflections[0].text from analysis-shaped payloads.
func reflectionText(obj map[string]any) string {
	first, ok := firstListElement(obj["reflections"])
	if !ok {
		return ""
	}
	return firstString(first, "text")
}

// summaryText joins summary.headline and summary.details with an em-dash.
// Either half alone is still usable.
func summaryText(obj map[string]any) string {
	summary, ok := asObject(obj["summary"])
	if !ok {
		return ""
	}
	headline := firstString(summary, "headline")
	details := firstString(summary, "details")
	switch {
	case headline != "" && details != "":
		return headline + " — " + details
	case headline != "":
		return headline
	default:
		return details
	}
}

// extractSpeaker resolves the speaker with the bot as the safe fallback.
//
// An unknown speaker must never silently become the user: the UI pairs
// turns by speaker, and misattributing remote records corrupts that
// pairing. An explicit isUser boolean wins over any string alias.
func extractSpeaker(obj map[string]any) record.Speaker {
	if isUser, ok := obj["isUser"].(bool); ok {
		if isUser {
			return record.SpeakerUser
		}
		return record.SpeakerBot
	}

	label := strings.ToLower(firstString(obj, speakerKeys...))
	if userAliases[label] {
		return record.SpeakerUser
	}
	if botAliases[label] {
		return record.SpeakerBot
	}

	// Analysis-shaped payloads (summary, snapshot, reflections) are
	// produced by the assistant side.
	return record.SpeakerBot
}

// extractTimestamp resolves the timestamp in epoch milliseconds.
//
// Resolution order: timestamp, computedAt, reflections[0].createdAt,
// createdAt. The first present value is parsed; an unparseable value falls
// back to now rather than dropping the record.
func extractTimestamp(obj map[string]any) int64 {
	for _, key := range timestampKeys {
		if v, present := obj[key]; present && v != nil {
			return parseTimestamp(v)
		}
	}
	if first, ok := firstListElement(obj["reflections"]); ok {
		if v, present := first["createdAt"]; present && v != nil {
			return parseTimestamp(v)
		}
	}
	if v, present := obj["createdAt"]; present && v != nil {
		return parseTimestamp(v)
	}
	return nowMillis()
}

// parseTimestamp accepts numeric epoch values (seconds or milliseconds)
// and ISO 8601 strings. Anything else resolves to now.
func parseTimestamp(v any) int64 {
	if ts, ok := asInt64(v); ok && ts > 0 {
		return record.NormalizeMillis(ts)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli()
			}
		}
	}
	return nowMillis()
}

// extractID resolves the stable id, synthesizing one when the source
// provides none.
//
// A synthetic id is not stable across repeated fetches of the same raw
// record; a source that never sends ids will duplicate on re-merge. That
// is an accepted limitation of the remote contract.
func extractID(obj map[string]any, ts int64) string {
	if id := firstString(obj, "id", "_id"); id != "" {
		return id
	}
	return fmt.Sprintf("remote-%d-%s", ts, uuid.NewString()[:8])
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// asObject narrows a raw value to a string-keyed object.
func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstListElement returns the first element of a raw list when that
// element is itself an object.
func firstListElement(v any) (map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	return asObject(list[0])
}

// firstString returns the first key that holds a non-empty trimmed string.
func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// asInt64 coerces the numeric types a JSON decode (or a caller-built map)
// can produce.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

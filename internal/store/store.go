// Package store provides the persisted local record collection.
//
// Records live in memory as the source of truth for the running process and
// are serialized as a JSON list into a single scoped key-value slot in an
// embedded SQLite database (WAL mode for concurrent readers). Persistence
// writes are asynchronous and best-effort: a failed write is logged, never
// escalated, and never rolls back the in-memory mutation.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
)

// recordsKey is the slot holding the serialized record list.
const recordsKey = "chat_records"

// Store owns the record collection and its persisted encoding.
//
// All exported methods are safe for concurrent use. The caller MUST call
// Close() when done so the final state is flushed and the WAL checkpointed.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	mu      sync.Mutex
	records []record.Record

	saveCh chan struct{}
	done   chan struct{}
	saveWG sync.WaitGroup
}

// Open creates the database at path, initializes the schema, and loads any
// previously persisted records.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	st, err := store.Open(".imotara/store.db", nil)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS app_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
		saveCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.saveWG.Add(1)
	go s.saveLoop()

	return s, nil
}

// Close flushes pending state, checkpoints the WAL, and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	close(s.done)
	s.saveWG.Wait()

	if err := s.Flush(); err != nil {
		s.logger.Printf("WARNING: final flush failed: %v", err)
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("WARNING: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Add appends a record. A record with no sync state defaults to local.
// Inserting a duplicate id is a no-op; the existing record wins.
func (s *Store) Add(r record.Record) error {
	if r.SyncState == "" {
		r.SyncState = record.StateLocal
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("cannot add invalid record: %w", err)
	}

	s.mu.Lock()
	if s.hasIDLocked(r.ID) {
		s.mu.Unlock()
		return nil
	}
	s.records = append(s.records, r)
	s.mu.Unlock()

	s.scheduleSave()
	return nil
}

// AddAll appends every record whose id is not already present and re-sorts
// the collection by ascending timestamp. Returns the number actually added.
// Duplicate ids are silently skipped: the local copy wins over a remote
// re-delivery, because it may carry sync metadata the remote copy lacks.
//
// When nothing is added the store is untouched and no persistence write is
// scheduled.
func (s *Store) AddAll(records []record.Record) int {
	s.mu.Lock()
	added := 0
	for _, r := range records {
		if r.SyncState == "" {
			r.SyncState = record.StateLocal
		}
		if err := r.Validate(); err != nil {
			continue
		}
		if s.hasIDLocked(r.ID) {
			continue
		}
		s.records = append(s.records, r)
		added++
	}
	if added > 0 {
		record.SortByTimestamp(s.records)
	}
	s.mu.Unlock()

	if added > 0 {
		s.scheduleSave()
	}
	return added
}

// Delete removes a record by id. Returns false if the id is absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	found := false
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.scheduleSave()
	}
	return found
}

// Clear empties the store and synchronously resets the persisted slot.
// An empty store has nothing pending, so callers should also reset any
// sync session state they hold.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()

	if _, err := s.conn.Exec("DELETE FROM app_state WHERE key = ?", recordsKey); err != nil {
		return fmt.Errorf("failed to reset persisted records: %w", err)
	}
	return nil
}

// Records returns a sorted copy of the collection (ascending timestamp).
func (s *Store) Records() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	record.SortByTimestamp(out)
	return out
}

// Unsynced returns all records still in the local state.
func (s *Store) Unsynced() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []record.Record
	for _, r := range s.records {
		if r.SyncState == record.StateLocal {
			out = append(out, r)
		}
	}
	return out
}

// HasUnsyncedChanges reports whether any record is still local-only.
func (s *Store) HasUnsyncedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.SyncState == record.StateLocal {
			return true
		}
	}
	return false
}

// IDs returns the set of record ids currently in the store.
func (s *Store) IDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]bool, len(s.records))
	for _, r := range s.records {
		ids[r.ID] = true
	}
	return ids
}

// MarkSynced transitions the given ids to the synced state.
// Returns the number of records that actually transitioned.
func (s *Store) MarkSynced(ids []string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	marked := 0
	for i := range s.records {
		if want[s.records[i].ID] && s.records[i].SyncState == record.StateLocal {
			s.records[i].SyncState = record.StateSynced
			marked++
		}
	}
	s.mu.Unlock()

	if marked > 0 {
		s.scheduleSave()
	}
	return marked
}

// Len returns the number of records in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush persists the current collection synchronously.
// Tests and Close use this; normal mutations go through the async path.
func (s *Store) Flush() error {
	return s.persist()
}

// load reads the persisted slot and repairs whatever it finds.
//
// Corruption policy: a non-array payload yields an empty store; a corrupt
// element is repaired field-by-field with safe defaults and dropped only if
// it still fails validation. Load never fails the open because of bad data,
// only because of database errors.
func (s *Store) load() error {
	var payload string
	err := s.conn.QueryRow("SELECT value FROM app_state WHERE key = ?", recordsKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read persisted records: %w", err)
	}

	var rawList []map[string]any
	if err := json.Unmarshal([]byte(payload), &rawList); err != nil {
		s.logger.Printf("WARNING: persisted records are not a list, starting empty: %v", err)
		return nil
	}

	records := make([]record.Record, 0, len(rawList))
	dropped := 0
	for _, raw := range rawList {
		r := repairRecord(raw)
		if err := r.Validate(); err != nil {
			dropped++
			continue
		}
		records = append(records, r)
	}
	if dropped > 0 {
		s.logger.Printf("WARNING: dropped %d corrupt persisted records", dropped)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// repairRecord coerces a loosely typed persisted element back into a
// Record, substituting safe defaults for fields of the wrong type.
func repairRecord(raw map[string]any) record.Record {
	r := record.Record{
		SyncState: record.StateLocal,
		Speaker:   record.SpeakerBot,
	}
	if id, ok := raw["id"].(string); ok {
		r.ID = strings.TrimSpace(id)
	}
	if text, ok := raw["text"].(string); ok {
		r.Text = text
	}
	if speaker, ok := raw["speaker"].(string); ok {
		if sp := record.Speaker(strings.ToLower(speaker)); sp == record.SpeakerUser || sp == record.SpeakerBot {
			r.Speaker = sp
		}
	}
	if ts, ok := raw["timestamp"].(float64); ok {
		r.Timestamp = record.NormalizeMillis(int64(ts))
	}
	if state, ok := raw["syncState"].(string); ok {
		if st := record.SyncState(strings.ToLower(state)); st == record.StateSynced {
			r.SyncState = st
		}
	}
	return r
}

// scheduleSave requests an asynchronous persistence write. Requests
// coalesce: the writer always persists the latest snapshot, so in-memory
// state and the slot never reorder within the process.
func (s *Store) scheduleSave() {
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop is the single persistence writer.
func (s *Store) saveLoop() {
	defer s.saveWG.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.saveCh:
			if err := s.persist(); err != nil {
				s.logger.Printf("WARNING: persistence write failed: %v", err)
			}
		}
	}
}

// persist serializes the collection into the slot.
func (s *Store) persist() error {
	s.mu.Lock()
	records := s.records
	if records == nil {
		records = []record.Record{}
	}
	data, err := json.Marshal(records)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		recordsKey, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write records slot: %w", err)
	}
	return nil
}

// hasIDLocked reports id presence; caller must hold mu.
func (s *Store) hasIDLocked(id string) bool {
	for _, r := range s.records {
		if r.ID == id {
			return true
		}
	}
	return false
}

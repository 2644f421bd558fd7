// Package inbox ingests record files dropped by the surrounding application.
//
// The UI layer writes one JSON file per new chat turn into a drop
// directory. The watcher picks files up with fsnotify, debounces rapid
// writes, validates each record, adds it to the store in the local state,
// and notifies the scheduler so the auto-sync timer gets armed. Malformed
// files are logged and skipped; a bad file never stops ingestion.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
	"github.com/soumenroys/imotara-mobile-sub000/internal/scheduler"
	"github.com/soumenroys/imotara-mobile-sub000/internal/store"
)

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long to wait before processing file changes.
	// This batches rapid writes of the same file together.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher ingests dropped record files into the store.
type Watcher struct {
	dir   string
	store *store.Store
	sched *scheduler.Scheduler
	cfg   *Config

	watcher *fsnotify.Watcher
	queue   map[string]time.Time // filepath -> queued time
	queueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for the given drop directory.
func New(dir string, st *store.Store, sched *scheduler.Scheduler, cfg *Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox dir cannot be empty")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:     dir,
		store:   st,
		sched:   sched,
		cfg:     cfg,
		watcher: fw,
		queue:   make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start ingests any files already present, then watches for new ones.
// This blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	w.sweep()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}
	w.cfg.Logger.Printf("Watching inbox: %s", w.dir)

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processQueue()

	select {
	case <-ctx.Done():
		return w.Stop()
	case <-w.ctx.Done():
		return nil
	}
}

// Stop shuts the watcher down and waits for its goroutines.
func (w *Watcher) Stop() error {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		w.cfg.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	return nil
}

// sweep ingests every record file already sitting in the inbox.
// Called once on startup so files dropped while the daemon was down are
// not lost.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.cfg.Logger.Printf("Error reading inbox: %v", err)
		}
		return
	}

	ingested := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if w.ingestFile(filepath.Join(w.dir, entry.Name())) {
			ingested++
		}
	}
	if ingested > 0 {
		w.cfg.Logger.Printf("Ingested %d records from startup sweep", ingested)
		if w.sched != nil {
			w.sched.NotifyChanged()
		}
	}
}

// watchFileEvents queues create/write events for .json files.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file in the debounce queue.
func (w *Watcher) queueChange(path string) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	w.queue[path] = time.Now()
}

// processQueue periodically ingests files whose writes have settled.
func (w *Watcher) processQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processSettled()
		}
	}
}

// processSettled ingests queued files older than the debounce interval.
func (w *Watcher) processSettled() {
	w.queueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.cfg.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(w.queue, path)
	}
	w.queueMu.Unlock()

	ingested := false
	for _, path := range ready {
		if w.ingestFile(path) {
			ingested = true
		}
	}
	if ingested && w.sched != nil {
		w.sched.NotifyChanged()
	}
}

// ingestFile parses one dropped record file, adds it to the store, and
// removes the file on success.
func (w *Watcher) ingestFile(path string) bool {
	r, err := readRecordFile(path)
	if err != nil {
		w.cfg.Logger.Printf("WARNING: skipping %s: %v", filepath.Base(path), err)
		return false
	}

	if err := w.store.Add(r); err != nil {
		w.cfg.Logger.Printf("WARNING: failed to add record from %s: %v", filepath.Base(path), err)
		return false
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.cfg.Logger.Printf("WARNING: failed to remove ingested file %s: %v", path, err)
	}

	w.cfg.Logger.Printf("Ingested record %s (%s)", r.ID, r.Speaker)
	return true
}

// readRecordFile reads a dropped record, applying defaults for fields the
// UI layer omits: a fresh id, the user speaker, and the current time.
func readRecordFile(path string) (record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record.Record{}, fmt.Errorf("failed to read file: %w", err)
	}

	var r record.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return record.Record{}, fmt.Errorf("failed to parse record: %w", err)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Speaker == "" {
		r.Speaker = record.SpeakerUser
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	r.Timestamp = record.NormalizeMillis(r.Timestamp)
	r.SyncState = record.StateLocal

	if err := r.Validate(); err != nil {
		return record.Record{}, fmt.Errorf("invalid record: %w", err)
	}
	return r, nil
}

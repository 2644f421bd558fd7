// Package engine implements the push and merge operations of the sync core.
//
// Push selects unsynced records, sends them as one batch, and marks them
// synced on acknowledgement. Merge unions normalized remote records into
// the local store, deduplicating by id. Both operations resolve to result
// values at the engine boundary; no failure escapes as an error or panic.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/soumenroys/imotara-mobile-sub000/internal/normalize"
	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
	"github.com/soumenroys/imotara-mobile-sub000/internal/remote"
	"github.com/soumenroys/imotara-mobile-sub000/internal/store"
)

// PushStatus classifies the outcome of a push attempt. Concurrency
// conflicts are deliberately distinct from transport failures so the UI can
// phrase them differently.
type PushStatus string

const (
	// StatusSynced means the batch was sent and acknowledged.
	StatusSynced PushStatus = "synced"
	// StatusNothingToSync means there were no unsynced records. This is a
	// successful no-op, not an error.
	StatusNothingToSync PushStatus = "nothing-to-sync"
	// StatusAlreadyInProgress means another push held the in-flight flag.
	StatusAlreadyInProgress PushStatus = "already-in-progress"
	// StatusFailed means the transport failed; local state is untouched.
	StatusFailed PushStatus = "failed"
)

// PushResult reports a settled push attempt.
type PushResult struct {
	OK          bool
	PushedCount int
	Status      PushStatus
	Err         error
}

// MergeResult reports a merge of a raw remote list.
type MergeResult struct {
	TotalRemote int // length of the raw input
	Normalized  int // elements that survived normalization
	Added       int // genuinely new records inserted
}

// RemoteClient is the transport surface the engine needs.
type RemoteClient interface {
	PushBatch(ctx context.Context, records []record.Record) (*remote.PushAck, error)
	FetchAll(ctx context.Context) ([]any, error)
}

// Engine coordinates the local store and the remote service.
type Engine struct {
	store  *store.Store
	client RemoteClient
	logger *log.Logger

	inFlight atomic.Bool
}

// New creates an engine over the given store and remote client.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, client RemoteClient, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:  st,
		client: client,
		logger: logger,
	}
}

// Push sends the full unsynced batch in one request.
//
// An empty batch returns immediately with OK and no network call. If a push
// is already in flight the call fails fast with StatusAlreadyInProgress
// rather than queuing; retrying is the caller's responsibility.
//
// On transport success the acknowledged records transition to synced: the
// accepted-id subset when the ack carries one, otherwise the whole
// attempted batch. On transport failure no record changes state and the
// error is captured in the result, never thrown.
func (e *Engine) Push(ctx context.Context) PushResult {
	if !e.inFlight.CompareAndSwap(false, true) {
		return PushResult{OK: false, Status: StatusAlreadyInProgress}
	}
	defer e.inFlight.Store(false)

	batch := e.store.Unsynced()
	if len(batch) == 0 {
		return PushResult{OK: true, PushedCount: 0, Status: StatusNothingToSync}
	}

	ack, err := e.client.PushBatch(ctx, batch)
	if err != nil {
		e.logger.Printf("push of %d records failed: %v", len(batch), err)
		return PushResult{OK: false, Status: StatusFailed, Err: err}
	}

	ids := make([]string, 0, len(batch))
	if len(ack.AcceptedIDs) > 0 {
		ids = append(ids, ack.AcceptedIDs...)
	} else {
		for _, r := range batch {
			ids = append(ids, r.ID)
		}
	}

	marked := e.store.MarkSynced(ids)
	e.logger.Printf("pushed %d records, marked %d synced", len(batch), marked)
	return PushResult{OK: true, PushedCount: marked, Status: StatusSynced}
}

// Merge unions a raw remote list into the local store.
//
// Every element runs through the normalizer; rejects are counted, not
// surfaced. Duplicate ids are skipped so the local copy, which may carry
// different sync metadata, never regresses. When nothing is new the store
// is not touched and no persistence write happens.
func (e *Engine) Merge(raws []any) MergeResult {
	normalized := normalize.NormalizeAll(raws)
	added := e.store.AddAll(normalized)

	result := MergeResult{
		TotalRemote: len(raws),
		Normalized:  len(normalized),
		Added:       added,
	}
	if result.TotalRemote > 0 {
		e.logger.Printf("merge: %d remote, %d normalized, %d added", result.TotalRemote, result.Normalized, result.Added)
	}
	return result
}

// Sync performs one full reconciliation: push, then fetch and merge.
//
// A fetch failure is recoverable: the push result stands and the merge
// reports zero remote records alongside the returned error.
func (e *Engine) Sync(ctx context.Context) (PushResult, MergeResult, error) {
	pr := e.Push(ctx)

	raws, err := e.client.FetchAll(ctx)
	if err != nil {
		e.logger.Printf("fetch failed: %v", err)
		return pr, MergeResult{}, fmt.Errorf("fetch failed: %w", err)
	}
	return pr, e.Merge(raws), nil
}

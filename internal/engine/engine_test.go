package engine

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soumenroys/imotara-mobile-sub000/internal/record"
	"github.com/soumenroys/imotara-mobile-sub000/internal/remote"
	"github.com/soumenroys/imotara-mobile-sub000/internal/store"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestEngine wires an engine against an httptest server.
func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *store.Store) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := setupTestStore(t)
	client := remote.NewClient(srv.URL, time.Second, log.New(os.Stderr, "[test] ", 0))
	return New(st, client, log.New(os.Stderr, "[test] ", 0)), st
}

func localRecord(id string, ts int64) record.Record {
	return record.Record{
		ID:        id,
		Text:      "text " + id,
		Speaker:   record.SpeakerUser,
		Timestamp: ts,
		SyncState: record.StateLocal,
	}
}

func TestPushEmptyStoreIsNoOpWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	eng, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	result := eng.Push(context.Background())

	if !result.OK || result.PushedCount != 0 || result.Status != StatusNothingToSync {
		t.Errorf("result = %+v, want ok no-op", result)
	}
	if calls.Load() != 0 {
		t.Errorf("network was called %d times for an empty push", calls.Load())
	}
}

func TestPushMarksBatchSynced(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_ = st.Add(localRecord("a", 1000))
	_ = st.Add(localRecord("b", 2000))

	result := eng.Push(context.Background())

	if !result.OK || result.Status != StatusSynced {
		t.Fatalf("result = %+v", result)
	}
	if result.PushedCount != 2 {
		t.Errorf("pushedCount = %d, want 2", result.PushedCount)
	}
	if st.HasUnsyncedChanges() {
		t.Error("records left unsynced after successful push")
	}
}

func TestPushPrefersAcceptedIDs(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accepted_count": 1,
			"accepted_ids":   []string{"a"},
		})
	})

	_ = st.Add(localRecord("a", 1000))
	_ = st.Add(localRecord("b", 2000))

	result := eng.Push(context.Background())

	if !result.OK || result.PushedCount != 1 {
		t.Fatalf("result = %+v, want 1 accepted", result)
	}
	unsynced := st.Unsynced()
	if len(unsynced) != 1 || unsynced[0].ID != "b" {
		t.Errorf("unsynced = %+v, want just b", unsynced)
	}
}

func TestPushTransportFailureLeavesStateUntouched(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_ = st.Add(localRecord("a", 1000))

	result := eng.Push(context.Background())

	if result.OK || result.Status != StatusFailed || result.Err == nil {
		t.Fatalf("result = %+v, want captured failure", result)
	}
	if !st.HasUnsyncedChanges() {
		t.Error("failed push must not mark records synced")
	}
}

func TestPushMutualExclusion(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	_ = st.Add(localRecord("a", 1000))

	results := make([]PushResult, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = eng.Push(context.Background())
		}(i)
	}

	// Let the loser settle, then release the winner.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 network send, got %d", calls.Load())
	}

	var synced, rejected int
	for _, r := range results {
		switch r.Status {
		case StatusSynced:
			synced++
		case StatusAlreadyInProgress:
			rejected++
		}
	}
	if synced != 1 || rejected != 1 {
		t.Errorf("results = %+v, want one synced and one already-in-progress", results)
	}
}

func TestMergeIdempotent(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})

	raws := []any{
		map[string]any{"id": "x", "text": "one", "role": "user", "timestamp": float64(1000)},
		map[string]any{"id": "y", "text": "two", "role": "assistant", "timestamp": float64(2000)},
	}

	first := eng.Merge(raws)
	if first.TotalRemote != 2 || first.Normalized != 2 || first.Added != 2 {
		t.Fatalf("first merge = %+v", first)
	}

	second := eng.Merge(raws)
	if second.Added != 0 {
		t.Errorf("second merge added %d, want 0", second.Added)
	}
	if st.Len() != 2 {
		t.Errorf("store has %d records, want 2", st.Len())
	}
}

func TestMergeSkipsExistingLocalRecord(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})

	_ = st.Add(record.Record{
		ID: "a", Text: "hi", Speaker: record.SpeakerUser, Timestamp: 1000, SyncState: record.StateLocal,
	})

	raws := []any{
		map[string]any{"id": "a", "message": "hi", "role": "user", "createdAt": float64(1000)},
		map[string]any{"id": "b", "content": "hey", "source": "assistant", "createdAt": float64(2000)},
	}

	result := eng.Merge(raws)

	if result.TotalRemote != 2 || result.Normalized != 2 || result.Added != 1 {
		t.Fatalf("result = %+v, want totalRemote:2 normalized:2 added:1", result)
	}

	// The local copy keeps its unsynced state so the next push sends it.
	for _, r := range st.Records() {
		if r.ID == "a" && r.SyncState != record.StateLocal {
			t.Errorf("merge regressed local copy to %q", r.SyncState)
		}
	}
}

func TestMergeAllJunk(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})

	raws := []any{
		map[string]any{},
		map[string]any{"text": ""},
		map[string]any{"foo": "bar"},
	}
	result := eng.Merge(raws)

	if result.TotalRemote != 3 || result.Normalized != 0 || result.Added != 0 {
		t.Errorf("result = %+v, want totalRemote:3 normalized:0 added:0", result)
	}
	if st.Len() != 0 {
		t.Errorf("junk merge mutated the store")
	}
}

func TestMergeNilInput(t *testing.T) {
	eng, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {})

	result := eng.Merge(nil)
	if result.TotalRemote != 0 || result.Normalized != 0 || result.Added != 0 {
		t.Errorf("result = %+v, want all zero", result)
	}
}

func TestSyncPushThenMerge(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/records/batch":
			w.WriteHeader(http.StatusOK)
		case "/v1/records":
			_ = json.NewEncoder(w).Encode([]any{
				map[string]any{"id": "remote-1", "text": "from remote", "role": "assistant", "timestamp": float64(3000)},
			})
		}
	})

	_ = st.Add(localRecord("a", 1000))

	pr, mr, err := eng.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !pr.OK || pr.PushedCount != 1 {
		t.Errorf("push result = %+v", pr)
	}
	if mr.Added != 1 {
		t.Errorf("merge result = %+v, want 1 added", mr)
	}
	if st.Len() != 2 {
		t.Errorf("store has %d records, want 2", st.Len())
	}
}

func TestSyncFetchFailureKeepsPushResult(t *testing.T) {
	eng, st := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/records/batch":
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "down", http.StatusBadGateway)
		}
	})

	_ = st.Add(localRecord("a", 1000))

	pr, mr, err := eng.Sync(context.Background())
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if !pr.OK || pr.PushedCount != 1 {
		t.Errorf("push result = %+v, want success despite fetch failure", pr)
	}
	if mr.TotalRemote != 0 {
		t.Errorf("merge result = %+v, want zero", mr)
	}
}

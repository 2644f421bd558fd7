// Package scheduler decides when push and merge run.
//
// Reconciliation can be requested from several places at once: a manual
// button, an app-foreground callback, and a debounced background timer.
// The scheduler serializes those requests through an explicit state
// machine, throttles near-duplicate triggers, and guarantees at most one
// scheduled future sync at any time.
//
// States and transitions:
//
//	Idle         --(trigger | timer fires)--> PushInFlight   armed timer cancelled first
//	PushInFlight --(attempt settles)--------> Idle
//	Idle         --(unsynced changes)-------> TimerArmed     delay clamped to [3s, 60s]
//	TimerArmed   --(store fully synced)-----> Idle           timer cancelled
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/soumenroys/imotara-mobile-sub000/internal/engine"
	"github.com/soumenroys/imotara-mobile-sub000/internal/store"
)

// State names the scheduler's position in its transition table.
type State string

const (
	// StateIdle means no sync is running and none is scheduled.
	StateIdle State = "idle"
	// StatePushInFlight means a sync attempt is currently running.
	StatePushInFlight State = "push-in-flight"
	// StateTimerArmed means a future automatic sync is scheduled.
	StateTimerArmed State = "timer-armed"
)

// Outcome classifies a settled trigger call. Throttled and already-running
// are distinct from failure so callers can phrase them as "please wait"
// rather than "check your connection".
type Outcome string

const (
	// OutcomeSynced means the attempt ran and moved records.
	OutcomeSynced Outcome = "synced"
	// OutcomeNothingToSync means the attempt ran but had nothing to do.
	OutcomeNothingToSync Outcome = "nothing-to-sync"
	// OutcomeFailed means the attempt ran and the transport failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeThrottled means the trigger landed inside the dedup window.
	OutcomeThrottled Outcome = "throttled"
	// OutcomeAlreadyRunning means another attempt held the in-flight state.
	OutcomeAlreadyRunning Outcome = "already-running"
)

const (
	// DefaultThrottleWindow absorbs duplicate trigger events (rapid
	// double app-resume notifications) while staying far below any
	// human re-tap interval.
	DefaultThrottleWindow = 900 * time.Millisecond

	// MinAutoSyncDelay and MaxAutoSyncDelay bound the debounce timer.
	MinAutoSyncDelay = 3 * time.Second
	MaxAutoSyncDelay = 60 * time.Second
)

// ClampDelay converts a configured delay in seconds to a duration inside
// [MinAutoSyncDelay, MaxAutoSyncDelay].
func ClampDelay(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < MinAutoSyncDelay {
		return MinAutoSyncDelay
	}
	if d > MaxAutoSyncDelay {
		return MaxAutoSyncDelay
	}
	return d
}

// Snapshot is the entire status surface the rest of the application reads.
// The UI never touches the store directly during sync.
type Snapshot struct {
	State              State
	IsSyncing          bool
	LastSyncStatus     string
	LastSyncAt         *time.Time
	HasUnsyncedChanges bool
}

// Config holds scheduler tuning.
type Config struct {
	// ThrottleWindow deduplicates manual/foreground triggers.
	ThrottleWindow time.Duration
	// AutoSyncDelay is the debounce delay before an automatic sync.
	// Callers should produce it with ClampDelay.
	AutoSyncDelay time.Duration
	// Logger for scheduler activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ThrottleWindow: DefaultThrottleWindow,
		AutoSyncDelay:  ClampDelay(10),
		Logger:         log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
}

// Scheduler owns the sync session state and the pending-timer handle.
type Scheduler struct {
	engine *engine.Engine
	store  *store.Store
	config *Config

	mu            sync.Mutex
	state         State
	timer         *time.Timer
	lastTriggerAt time.Time
	lastStatus    string
	lastSyncAt    time.Time
	closed        bool

	wg sync.WaitGroup
}

// New creates a scheduler over the given engine and store.
// A nil config gets DefaultConfig.
func New(eng *engine.Engine, st *store.Store, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ThrottleWindow <= 0 {
		config.ThrottleWindow = DefaultThrottleWindow
	}
	if config.AutoSyncDelay <= 0 {
		config.AutoSyncDelay = ClampDelay(10)
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		engine: eng,
		store:  st,
		config: config,
		state:  StateIdle,
	}
}

// Trigger runs one synchronous reconciliation attempt.
//
// The reason label ("manual", "foreground", ...) is for logs only. A second
// trigger inside the throttle window returns OutcomeThrottled without
// starting work; a trigger while an attempt is in flight returns
// OutcomeAlreadyRunning without queuing. Retries are the caller's
// responsibility.
func (s *Scheduler) Trigger(ctx context.Context, reason string) Outcome {
	return s.trigger(ctx, reason, false)
}

func (s *Scheduler) trigger(ctx context.Context, reason string, fromTimer bool) Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OutcomeFailed
	}
	if s.state == StatePushInFlight {
		s.lastStatus = "sync already in progress"
		s.mu.Unlock()
		return OutcomeAlreadyRunning
	}
	now := time.Now()
	if !fromTimer && !s.lastTriggerAt.IsZero() && now.Sub(s.lastTriggerAt) < s.config.ThrottleWindow {
		s.lastStatus = "sync requested too soon, please wait"
		s.mu.Unlock()
		return OutcomeThrottled
	}

	// A real attempt supersedes any scheduled one.
	s.cancelTimerLocked()
	s.lastTriggerAt = now
	s.state = StatePushInFlight
	s.mu.Unlock()

	s.config.Logger.Printf("sync triggered (%s)", reason)
	pr, mr, fetchErr := s.engine.Sync(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.lastSyncAt = time.Now()

	var outcome Outcome
	switch {
	case pr.Status == engine.StatusAlreadyInProgress:
		// A caller bypassed the scheduler and holds the engine flag.
		outcome = OutcomeAlreadyRunning
		s.lastStatus = "sync already in progress"
	case !pr.OK:
		outcome = OutcomeFailed
		s.lastStatus = fmt.Sprintf("sync failed: %v", pr.Err)
	case fetchErr != nil:
		outcome = OutcomeFailed
		s.lastStatus = fmt.Sprintf("pushed %d, fetch failed", pr.PushedCount)
	case pr.Status == engine.StatusNothingToSync && mr.Added == 0:
		outcome = OutcomeNothingToSync
		s.lastStatus = "already up to date"
	default:
		outcome = OutcomeSynced
		s.lastStatus = fmt.Sprintf("synced %d up, %d down", pr.PushedCount, mr.Added)
	}

	// A failed push leaves unsynced records behind; schedule a retry.
	s.maybeArmLocked()
	return outcome
}

// NotifyChanged tells the scheduler the store's unsynced set may have
// changed. Unsynced changes arm the debounce timer; a fully synced store
// cancels it.
func (s *Scheduler) NotifyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == StatePushInFlight {
		return
	}
	if s.store.HasUnsyncedChanges() {
		s.maybeArmLocked()
	} else {
		s.cancelTimerLocked()
	}
}

// Reset clears the session state after a store reset. An empty store has
// nothing pending and no sync history.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.lastStatus = ""
	s.lastSyncAt = time.Time{}
	s.lastTriggerAt = time.Time{}
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current snapshot for UI consumption.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:              s.state,
		IsSyncing:          s.state == StatePushInFlight,
		LastSyncStatus:     s.lastStatus,
		HasUnsyncedChanges: s.store.HasUnsyncedChanges(),
	}
	if !s.lastSyncAt.IsZero() {
		at := s.lastSyncAt
		snap.LastSyncAt = &at
	}
	return snap
}

// Close cancels any armed timer and waits for a timer-initiated attempt to
// settle. An in-flight network push runs to completion; only the scheduled
// timer is cancellable.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelTimerLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// maybeArmLocked arms the debounce timer if the store has unsynced changes
// and nothing is running or already scheduled. Caller must hold mu.
func (s *Scheduler) maybeArmLocked() {
	if s.closed || s.state == StatePushInFlight || s.timer != nil {
		return
	}
	if !s.store.HasUnsyncedChanges() {
		return
	}
	s.timer = time.AfterFunc(s.config.AutoSyncDelay, s.timerFired)
	s.state = StateTimerArmed
	s.config.Logger.Printf("auto-sync armed in %s", s.config.AutoSyncDelay)
}

// cancelTimerLocked cancels the pending timer, if any. Caller must hold mu.
func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateTimerArmed {
		s.state = StateIdle
	}
}

// timerFired runs when the debounce timer elapses.
func (s *Scheduler) timerFired() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.state == StateTimerArmed {
		s.state = StateIdle
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.trigger(context.Background(), "auto", true)
}

// Package countdown owns a single wall-clock countdown: remaining time,
// active/expired flags, and the persisted start instant needed to recompute
// remaining time after an arbitrary suspension. It knows nothing about
// sessions or routing.
package countdown

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playhall/arcadepass/internal/kv"
)

var ErrInvalidDuration = errors.New("countdown: duration must be positive")

// TimerState is a snapshot; it is derived from the wall clock and never the
// source of truth for elapsed time.
type TimerState struct {
	DurationSeconds  int   `json:"durationSeconds"`
	StartedAtEpochMs int64 `json:"startedAtEpochMs"`
	RemainingSeconds int   `json:"remainingSeconds"`
	Active           bool  `json:"isActive"`
	Expired          bool  `json:"isExpired"`
}

// timerRecord is the persisted form. Remaining time is intentionally not
// stored: it is recomputed from the current wall clock on load, which is
// what makes the countdown survive arbitrarily long suspensions.
type timerRecord struct {
	DurationSeconds  int   `json:"durationSeconds"`
	StartedAtEpochMs int64 `json:"startedAtEpochMs"`
}

type subscriber struct {
	id int
	fn func(TimerState)
}

// Engine is an explicitly constructed countdown instance. Lifecycle:
// New → Initialize (or LoadFromStorage) → Start → Expire/Reset → Close.
type Engine struct {
	clock  clockwork.Clock
	store  kv.Store
	key    string
	logger *slog.Logger

	mu        sync.Mutex
	duration  time.Duration
	startedAt time.Time
	armed     bool
	active    bool
	expired   bool
	nextSubID int
	subs      []subscriber
	stopTick  chan struct{}
}

func New(clock clockwork.Clock, store kv.Store, key string, logger *slog.Logger) *Engine {
	return &Engine{
		clock:  clock,
		store:  store,
		key:    key,
		logger: logger,
	}
}

// Initialize arms a fresh countdown of length d and persists its parameters.
// A persistence failure degrades resume-after-restart but never fails the
// countdown itself.
func (e *Engine) Initialize(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}

	e.mu.Lock()
	e.stopTickLocked()
	e.duration = d
	e.startedAt = e.clock.Now()
	e.armed = true
	e.active = false
	e.expired = false
	rec := timerRecord{
		DurationSeconds:  int(d / time.Second),
		StartedAtEpochMs: e.startedAt.UnixMilli(),
	}
	e.mu.Unlock()

	data, _ := json.Marshal(rec)
	if err := e.store.Set(ctx, e.key, data); err != nil {
		e.logger.Warn("timer state not persisted; countdown will not survive a restart", "error", err)
	}
	return nil
}

// Start transitions the countdown to active and begins the one-second tick
// schedule. Idempotent while already active; a no-op once expired.
func (e *Engine) Start() {
	e.mu.Lock()
	if !e.armed || e.expired || e.active {
		e.mu.Unlock()
		return
	}
	e.active = true
	stop := make(chan struct{})
	e.stopTick = stop
	st := e.stateLocked()
	subs := e.subsLocked()
	e.mu.Unlock()

	go e.tickLoop(stop)
	fanOut(subs, st)
}

func (e *Engine) tickLoop(stop chan struct{}) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if e.tick() {
				return
			}
		}
	}
}

// tick recomputes remaining time from the wall clock. Remaining time is
// never decremented directly, so a process frozen for any interval lands on
// the correct value at the next tick. Returns true once the countdown has
// reached its terminal expired state.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return true
	}
	st := e.stateLocked()
	if st.RemainingSeconds <= 0 {
		e.active = false
		e.expired = true
		e.stopTick = nil
		st = e.stateLocked()
		subs := e.subsLocked()
		e.mu.Unlock()
		fanOut(subs, st)
		return true
	}
	subs := e.subsLocked()
	e.mu.Unlock()
	fanOut(subs, st)
	return false
}

// Expire forces immediate terminal expiry regardless of remaining time.
// Subscribers are notified exactly once per expiry.
func (e *Engine) Expire() {
	e.mu.Lock()
	if e.expired || !e.armed {
		e.mu.Unlock()
		return
	}
	e.stopTickLocked()
	e.active = false
	e.expired = true
	st := e.stateLocked()
	subs := e.subsLocked()
	e.mu.Unlock()

	fanOut(subs, st)
}

// LoadFromStorage restores a persisted countdown, recomputing remaining time
// against the current wall clock. Without a persisted record the engine
// stays idle. Storage errors are logged, not returned; the engine keeps
// functioning for the current process.
func (e *Engine) LoadFromStorage(ctx context.Context) error {
	data, err := e.store.Get(ctx, e.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.logger.Warn("timer state unavailable; starting idle", "error", err)
		return nil
	}

	var rec timerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		e.logger.Warn("timer state corrupt; starting idle", "error", err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTickLocked()
	e.duration = time.Duration(rec.DurationSeconds) * time.Second
	e.startedAt = time.UnixMilli(rec.StartedAtEpochMs)
	e.armed = true
	e.active = false
	e.expired = e.remainingLocked() <= 0
	return nil
}

// State returns a synchronous snapshot.
func (e *Engine) State() TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Subscribe registers fn for every state transition (tick, start, expire).
// Subscribers are notified in registration order. The returned function
// removes the subscription.
func (e *Engine) Subscribe(fn func(TimerState)) func() {
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Reset clears the countdown, including the terminal expired flag and the
// persisted record.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	e.stopTickLocked()
	e.duration = 0
	e.startedAt = time.Time{}
	e.armed = false
	e.active = false
	e.expired = false
	e.mu.Unlock()

	if err := e.store.Delete(ctx, e.key); err != nil {
		e.logger.Warn("persisted timer state not removed", "error", err)
	}
}

// Close stops the tick goroutine. The engine is not reusable afterwards
// except through Initialize.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopTickLocked()
	e.mu.Unlock()
}

func (e *Engine) stateLocked() TimerState {
	st := TimerState{
		DurationSeconds: int(e.duration / time.Second),
		Active:          e.active,
		Expired:         e.expired,
	}
	if e.armed {
		st.StartedAtEpochMs = e.startedAt.UnixMilli()
		st.RemainingSeconds = e.remainingLocked()
	}
	if e.expired {
		st.RemainingSeconds = 0
	}
	return st
}

func (e *Engine) remainingLocked() int {
	elapsed := int(e.clock.Now().Sub(e.startedAt) / time.Second)
	remaining := int(e.duration/time.Second) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (e *Engine) subsLocked() []subscriber {
	out := make([]subscriber, len(e.subs))
	copy(out, e.subs)
	return out
}

func (e *Engine) stopTickLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

// fanOut runs outside the engine lock so subscribers may call back in.
func fanOut(subs []subscriber, st TimerState) {
	for _, s := range subs {
		s.fn(st)
	}
}

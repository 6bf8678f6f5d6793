// Package session orchestrates the business session around a countdown
// engine: who plays, which experience, accumulated score, and the
// exactly-once finalize-and-report on expiry.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playhall/arcadepass/internal/countdown"
	"github.com/playhall/arcadepass/internal/kv"
)

var ErrSessionActive = errors.New("session: a session is already active")

// cleanupDelay is how long the persisted session survives after ending, so
// result screens can read the terminal state once more.
const cleanupDelay = 5 * time.Second

// reportTimeout bounds the fire-and-forget score report.
const reportTimeout = 10 * time.Second

// Reporter delivers the final score to the remote scoring service.
type Reporter interface {
	Report(ctx context.Context, res Result) error
}

// Manager owns one GameSession around one countdown engine. It subscribes
// to the engine at construction time, so it is always the first subscriber
// and the only one that triggers finalization — however many other
// observers see the same expiry notification, the report goes out once.
type Manager struct {
	engine   *countdown.Engine
	store    kv.Store
	key      string
	reporter Reporter
	clock    clockwork.Clock
	logger   *slog.Logger
	unsub    func()

	mu      sync.Mutex
	sess    *GameSession
	cleanup clockwork.Timer
}

func NewManager(engine *countdown.Engine, store kv.Store, key string, reporter Reporter, clock clockwork.Clock, logger *slog.Logger) *Manager {
	m := &Manager{
		engine:   engine,
		store:    store,
		key:      key,
		reporter: reporter,
		clock:    clock,
		logger:   logger,
	}
	m.unsub = engine.Subscribe(m.onTimer)
	return m
}

// onTimer finalizes the session when the countdown reports expiry. End is
// idempotent, so concurrent observers of the same expiry cannot double-end.
func (m *Manager) onTimer(st countdown.TimerState) {
	if !st.Expired {
		return
	}
	m.End(context.Background(), nil)
}

// Start begins a new session. Fails with ErrSessionActive while one is
// live; a previous session that already ended (but has not been cleaned up
// yet) is replaced.
func (m *Manager) Start(ctx context.Context, gameTypeID, playerName string, d time.Duration) (Snapshot, error) {
	if d <= 0 {
		return Snapshot{Status: StatusNone}, countdown.ErrInvalidDuration
	}

	m.mu.Lock()
	if m.sess != nil && m.sess.IsActive {
		m.mu.Unlock()
		return Snapshot{Status: StatusNone}, ErrSessionActive
	}
	m.cancelCleanupLocked()
	sess := &GameSession{
		ID:              uuid.NewString(),
		PlayerID:        uuid.NewString(),
		PlayerName:      playerName,
		GameTypeID:      gameTypeID,
		StartTime:       m.clock.Now(),
		DurationSeconds: int(d / time.Second),
		IsActive:        true,
		Stage:           1,
	}
	m.sess = sess
	m.mu.Unlock()

	if err := m.engine.Initialize(ctx, d); err != nil {
		m.mu.Lock()
		m.sess = nil
		m.mu.Unlock()
		return Snapshot{Status: StatusNone}, err
	}
	m.persist(ctx)
	m.engine.Start()

	m.logger.Info("session started",
		"session_id", sess.ID,
		"game_type", gameTypeID,
		"duration", countdown.Format(sess.DurationSeconds),
	)
	snap, _ := m.Snapshot()
	return snap, nil
}

// UpdateScore merges score fields into the active session. Without an
// active session it is a silent no-op: scoring updates arriving after
// expiry are expected and swallowed.
func (m *Manager) UpdateScore(ctx context.Context, score int, stage, streak *int) {
	m.mu.Lock()
	if m.sess == nil || !m.sess.IsActive {
		m.mu.Unlock()
		return
	}
	if score >= 0 {
		m.sess.Score = score
	}
	if stage != nil && *stage >= 1 {
		m.sess.Stage = *stage
	}
	if streak != nil && *streak >= 0 {
		m.sess.Streak = *streak
	}
	m.mu.Unlock()

	m.persist(ctx)
}

// End finalizes the session. Idempotent: a second call returns the same
// terminal snapshot without re-reporting. The persisted state is written
// synchronously before the report is dispatched, so a restart mid-report
// still sees a consistent, finalized session. Report failures are logged,
// never propagated — the session ends cleanly regardless.
func (m *Manager) End(ctx context.Context, finalScore *int) Snapshot {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return Snapshot{Status: StatusNone}
	}
	if m.sess.EndTime != nil {
		m.mu.Unlock()
		snap, _ := m.Snapshot()
		return snap
	}
	now := m.clock.Now()
	m.sess.EndTime = &now
	m.sess.IsActive = false
	if finalScore != nil && *finalScore >= 0 {
		m.sess.Score = *finalScore
	}
	res := Result{
		PlayerName: m.sess.PlayerName,
		PlayerID:   m.sess.PlayerID,
		Score:      m.sess.Score,
		Stage:      m.sess.Stage,
		SessionID:  m.sess.ID,
		Streak:     m.sess.Streak,
		GameTypeID: m.sess.GameTypeID,
	}
	m.mu.Unlock()

	m.engine.Expire()
	m.persist(ctx)
	m.dispatchReport(res)
	m.scheduleCleanup()

	m.logger.Info("session ended", "session_id", res.SessionID, "score", res.Score)
	snap, _ := m.Snapshot()
	return snap
}

func (m *Manager) dispatchReport(res Result) {
	if m.reporter == nil {
		m.logger.Debug("score reporting disabled", "session_id", res.SessionID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if err := m.reporter.Report(ctx, res); err != nil {
			m.logger.Warn("score report failed",
				"session_id", res.SessionID,
				"score", res.Score,
				"error", err,
			)
			return
		}
		m.logger.Debug("score reported", "session_id", res.SessionID, "score", res.Score)
	}()
}

func (m *Manager) scheduleCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCleanupLocked()
	m.cleanup = m.clock.AfterFunc(cleanupDelay, func() {
		m.Clear(context.Background())
	})
}

func (m *Manager) cancelCleanupLocked() {
	if m.cleanup != nil {
		m.cleanup.Stop()
		m.cleanup = nil
	}
}

// Load restores state after a restart: the engine first, so remaining time
// is recomputed from the wall clock, then the session record. A live
// countdown resumes ticking; an expired one leaves the session readable but
// inactive (the reload-after-expiry case).
func (m *Manager) Load(ctx context.Context) error {
	if err := m.engine.LoadFromStorage(ctx); err != nil {
		return err
	}

	data, err := m.store.Get(ctx, m.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Warn("session state unavailable; starting without a session", "error", err)
		return nil
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		m.logger.Warn("session state corrupt; starting without a session", "error", err)
		return nil
	}

	ts := m.engine.State()
	resume := ts.StartedAtEpochMs != 0 && !ts.Expired && ts.RemainingSeconds > 0

	m.mu.Lock()
	sess := rec.Session
	sess.IsActive = resume && sess.EndTime == nil
	m.sess = &sess
	m.mu.Unlock()

	if m.sess.IsActive {
		m.engine.Start()
		m.logger.Info("session resumed",
			"session_id", sess.ID,
			"remaining", countdown.Format(ts.RemainingSeconds),
		)
	}
	return nil
}

// Clear wipes in-memory and persisted session state unconditionally. Safe
// to call at any time, including before the deferred cleanup fires.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.cancelCleanupLocked()
	m.sess = nil
	m.mu.Unlock()

	m.engine.Reset(ctx)
	if err := m.store.Delete(ctx, m.key); err != nil {
		m.logger.Warn("persisted session state not removed", "error", err)
	}
}

// Snapshot returns a read-only copy of the current session and timer state.
// The second return is false when no session exists.
func (m *Manager) Snapshot() (Snapshot, bool) {
	ts := m.engine.State()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return Snapshot{Status: StatusNone, Timer: ts}, false
	}
	return Snapshot{
		Session: *m.sess,
		Status:  deriveStatus(m.sess, ts),
		Timer:   ts,
	}, true
}

// SubscribeTimer registers an observer for timer transitions. Observers
// registered here always run after the manager's own finalizer, which was
// registered at construction time.
func (m *Manager) SubscribeTimer(fn func(countdown.TimerState)) func() {
	return m.engine.Subscribe(fn)
}

// Close detaches from the engine and stops its ticker.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancelCleanupLocked()
	m.mu.Unlock()

	m.unsub()
	m.engine.Close()
}

func deriveStatus(sess *GameSession, ts countdown.TimerState) Status {
	switch {
	case sess == nil:
		return StatusNone
	case sess.EndTime != nil:
		return StatusEnded
	case sess.IsActive && !ts.Expired:
		return StatusActive
	default:
		// Timer expired (or session deactivated) but not yet finalized.
		return StatusExpiring
	}
}

// persist writes the session record synchronously. Failures are logged
// only: persistence is best-effort durability, not a precondition for the
// session lifecycle.
func (m *Manager) persist(ctx context.Context) {
	ts := m.engine.State()

	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return
	}
	rec := sessionRecord{
		Session:       *m.sess,
		RemainingTime: ts.RemainingSeconds,
		IsTimerActive: ts.Active,
		IsExpired:     ts.Expired,
		Timestamp:     m.clock.Now().UnixMilli(),
	}
	m.mu.Unlock()

	data, _ := json.Marshal(rec)
	if err := m.store.Set(ctx, m.key, data); err != nil {
		m.logger.Warn("session not persisted; continuing in degraded mode", "error", err)
	}
}

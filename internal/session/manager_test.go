package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playhall/arcadepass/internal/countdown"
	"github.com/playhall/arcadepass/internal/kv"
)

type fakeReporter struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (f *fakeReporter) Report(_ context.Context, res Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return f.err
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func (f *fakeReporter) last() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[len(f.results)-1]
}

type fixture struct {
	mgr      *Manager
	clock    *clockwork.FakeClock
	store    kv.Store
	reporter *fakeReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory()
	reporter := &fakeReporter{}
	engine := countdown.New(clock, store, "dev:timer", slog.Default())
	mgr := NewManager(engine, store, "dev:session", reporter, clock, slog.Default())
	t.Cleanup(mgr.Close)
	return &fixture{mgr: mgr, clock: clock, store: store, reporter: reporter}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func intPtr(v int) *int { return &v }

func TestStartCreatesSession(t *testing.T) {
	f := newFixture(t)

	snap, err := f.mgr.Start(context.Background(), "TRIVIA", "Abel", 2*time.Minute)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if snap.Status != StatusActive {
		t.Errorf("status = %q, want active", snap.Status)
	}
	if snap.Session.ID == "" || snap.Session.PlayerID == "" {
		t.Error("expected generated session and player IDs")
	}
	if snap.Session.GameTypeID != "TRIVIA" || snap.Session.PlayerName != "Abel" {
		t.Errorf("session = %+v", snap.Session)
	}
	if snap.Session.DurationSeconds != 120 {
		t.Errorf("duration = %d, want 120", snap.Session.DurationSeconds)
	}
	if snap.Session.Stage != 1 {
		t.Errorf("stage = %d, want 1", snap.Session.Stage)
	}
	if !snap.Timer.Active {
		t.Error("timer should be ticking after start")
	}
}

func TestStartRejectsWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := f.mgr.Start(ctx, "EMOJI", "Bea", time.Minute); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second start = %v, want ErrSessionActive", err)
	}

	// The rejected start must not have touched the live session.
	snap, ok := f.mgr.Snapshot()
	if !ok || snap.Session.GameTypeID != "TRIVIA" {
		t.Errorf("session after rejected start: %+v", snap.Session)
	}
}

func TestStartRejectsInvalidDuration(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Start(context.Background(), "TRIVIA", "Abel", 0)
	if !errors.Is(err, countdown.ErrInvalidDuration) {
		t.Errorf("err = %v, want ErrInvalidDuration", err)
	}
	if _, ok := f.mgr.Snapshot(); ok {
		t.Error("rejected start must not create a session")
	}
}

func TestUpdateScoreMergesFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	f.mgr.UpdateScore(ctx, 50, nil, nil)
	f.mgr.UpdateScore(ctx, 80, intPtr(3), intPtr(2))

	snap, _ := f.mgr.Snapshot()
	if snap.Session.Score != 80 || snap.Session.Stage != 3 || snap.Session.Streak != 2 {
		t.Errorf("session = %+v", snap.Session)
	}
}

func TestUpdateScoreWithoutSessionIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No session at all.
	f.mgr.UpdateScore(ctx, 99, nil, nil)
	if _, ok := f.mgr.Snapshot(); ok {
		t.Fatal("no session expected")
	}

	// Late update after end: swallowed, not an error.
	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	f.mgr.End(ctx, intPtr(42))
	f.mgr.UpdateScore(ctx, 99, nil, nil)

	snap, _ := f.mgr.Snapshot()
	if snap.Session.Score != 42 {
		t.Errorf("score after late update = %d, want 42", snap.Session.Score)
	}
}

// Idempotent end: a second End returns the same terminal session and the
// report goes out only once.
func TestEndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)

	first := f.mgr.End(ctx, intPtr(42))
	second := f.mgr.End(ctx, intPtr(999))

	if first.Status != StatusEnded || second.Status != StatusEnded {
		t.Errorf("statuses = %q, %q, want ended", first.Status, second.Status)
	}
	if first.Session.Score != 42 || second.Session.Score != 42 {
		t.Errorf("scores = %d, %d, want 42", first.Session.Score, second.Session.Score)
	}
	if second.Session.IsActive {
		t.Error("ended session must be inactive")
	}

	waitFor(t, "score report", func() bool { return f.reporter.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := f.reporter.count(); n != 1 {
		t.Errorf("reports = %d, want 1", n)
	}
}

func TestEndKeepsLastScoreWithoutFinalScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	f.mgr.UpdateScore(ctx, 73, nil, nil)
	snap := f.mgr.End(ctx, nil)

	if snap.Session.Score != 73 {
		t.Errorf("score = %d, want 73", snap.Session.Score)
	}
	waitFor(t, "score report", func() bool { return f.reporter.count() == 1 })
	if got := f.reporter.last().Score; got != 73 {
		t.Errorf("reported score = %d, want 73", got)
	}
}

func TestEndSurvivesReportFailure(t *testing.T) {
	f := newFixture(t)
	f.reporter.err = errors.New("scoring service down")
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	snap := f.mgr.End(ctx, intPtr(10))

	if snap.Status != StatusEnded {
		t.Errorf("status = %q, want ended despite report failure", snap.Status)
	}
	waitFor(t, "report attempt", func() bool { return f.reporter.count() == 1 })
}

// Exactly-once finalize: the manager is the engine's first subscriber, so
// even with several other observers reacting to the same expiry (some of
// them calling End themselves), one report goes out.
func TestExpiryFinalizesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.mgr.SubscribeTimer(func(st countdown.TimerState) {
			if st.Expired {
				f.mgr.End(ctx, nil)
			}
		})
	}

	f.mgr.Start(ctx, "TRIVIA", "Abel", 2*time.Second)
	f.clock.BlockUntil(1)
	f.clock.Advance(3 * time.Second)

	waitFor(t, "session end", func() bool {
		snap, ok := f.mgr.Snapshot()
		return ok && snap.Status == StatusEnded
	})
	waitFor(t, "score report", func() bool { return f.reporter.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := f.reporter.count(); n != 1 {
		t.Errorf("reports = %d, want 1", n)
	}
}

// The spec's end-to-end scenario: a 120-second TRIVIA session scores 50,
// expires 125 seconds in, and the automatic finalize reports exactly that
// score.
func TestExpiryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "TRIVIA", "Abel", 120*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.mgr.UpdateScore(ctx, 50, nil, nil)

	f.clock.BlockUntil(1)
	f.clock.Advance(125 * time.Second)

	waitFor(t, "automatic end", func() bool {
		snap, ok := f.mgr.Snapshot()
		return ok && snap.Status == StatusEnded
	})

	snap, _ := f.mgr.Snapshot()
	if snap.Session.Score != 50 {
		t.Errorf("final score = %d, want 50", snap.Session.Score)
	}
	if snap.Session.IsActive || !snap.Timer.Expired {
		t.Errorf("terminal state: session=%+v timer=%+v", snap.Session, snap.Timer)
	}

	waitFor(t, "score report", func() bool { return f.reporter.count() == 1 })
	res := f.reporter.last()
	if res.Score != 50 || res.GameTypeID != "TRIVIA" || res.PlayerName != "Abel" {
		t.Errorf("report = %+v", res)
	}
	if res.SessionID != snap.Session.ID || res.PlayerID != snap.Session.PlayerID {
		t.Errorf("report identity mismatch: %+v vs %+v", res, snap.Session)
	}
}

func TestCleanupClearsAfterGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	f.mgr.End(ctx, intPtr(5))

	// Terminal state remains readable during the grace period.
	if snap, ok := f.mgr.Snapshot(); !ok || snap.Status != StatusEnded {
		t.Fatalf("expected readable ended session, got ok=%v", ok)
	}

	f.clock.Advance(cleanupDelay + time.Second)
	waitFor(t, "cleanup", func() bool {
		_, ok := f.mgr.Snapshot()
		return !ok
	})

	if _, err := f.store.Get(ctx, "dev:session"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("persisted session still present: %v", err)
	}
	if _, err := f.store.Get(ctx, "dev:timer"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("persisted timer still present: %v", err)
	}
}

func TestClearBeforeCleanupIsSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mgr.Start(ctx, "TRIVIA", "Abel", time.Minute)
	f.mgr.End(ctx, nil)
	f.mgr.Clear(ctx)
	f.mgr.Clear(ctx) // idempotent

	if _, ok := f.mgr.Snapshot(); ok {
		t.Error("session should be gone after Clear")
	}

	// A new session can start immediately.
	if _, err := f.mgr.Start(ctx, "EMOJI", "Bea", time.Minute); err != nil {
		t.Errorf("start after clear: %v", err)
	}
}

func TestLoadResumesLiveSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory()
	logger := slog.Default()

	engine1 := countdown.New(clock, store, "dev:timer", logger)
	mgr1 := NewManager(engine1, store, "dev:session", &fakeReporter{}, clock, logger)
	ctx := context.Background()

	started, err := mgr1.Start(ctx, "TRIVIA", "Abel", 10*time.Minute)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	mgr1.UpdateScore(ctx, 30, intPtr(2), nil)
	mgr1.Close()

	// Restart 185 seconds later.
	clock.Advance(185 * time.Second)
	engine2 := countdown.New(clock, store, "dev:timer", logger)
	mgr2 := NewManager(engine2, store, "dev:session", &fakeReporter{}, clock, logger)
	t.Cleanup(mgr2.Close)

	if err := mgr2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	snap, ok := mgr2.Snapshot()
	if !ok {
		t.Fatal("expected a restored session")
	}
	if snap.Status != StatusActive {
		t.Errorf("status = %q, want active", snap.Status)
	}
	if snap.Session.ID != started.Session.ID {
		t.Errorf("session ID changed across restart: %q vs %q", snap.Session.ID, started.Session.ID)
	}
	if snap.Session.Score != 30 || snap.Session.Stage != 2 {
		t.Errorf("restored session = %+v", snap.Session)
	}
	if snap.Timer.RemainingSeconds != 415 {
		t.Errorf("remaining = %d, want 415", snap.Timer.RemainingSeconds)
	}
}

func TestLoadAfterExpiryMarksInactive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory()
	logger := slog.Default()

	engine1 := countdown.New(clock, store, "dev:timer", logger)
	mgr1 := NewManager(engine1, store, "dev:session", &fakeReporter{}, clock, logger)
	ctx := context.Background()

	mgr1.Start(ctx, "TRIVIA", "Abel", time.Minute)
	mgr1.Close()

	// Restart well past the deadline: reload happened after expiry but
	// before any page observed it.
	clock.Advance(10 * time.Minute)
	engine2 := countdown.New(clock, store, "dev:timer", logger)
	mgr2 := NewManager(engine2, store, "dev:session", &fakeReporter{}, clock, logger)
	t.Cleanup(mgr2.Close)

	if err := mgr2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	snap, ok := mgr2.Snapshot()
	if !ok {
		t.Fatal("expected the session to be reconstructed")
	}
	if snap.Session.IsActive {
		t.Error("session must be inactive after loading an expired timer")
	}
	if !snap.Timer.Expired {
		t.Error("timer must report expired")
	}
	if snap.Status != StatusExpiring {
		t.Errorf("status = %q, want expiring", snap.Status)
	}
}

func TestLoadWithoutRecords(t *testing.T) {
	f := newFixture(t)

	if err := f.mgr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := f.mgr.Snapshot(); ok {
		t.Error("no session expected")
	}
}

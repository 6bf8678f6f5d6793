package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/playhall/arcadepass/internal/countdown"
	"github.com/playhall/arcadepass/internal/kv"
	"github.com/playhall/arcadepass/internal/session"
)

// Registry holds one session manager per kiosk device, created lazily on
// first use. Each device runs its own independent countdown; there is no
// shared server clock.
type Registry struct {
	store    kv.Store
	reporter session.Reporter
	clock    clockwork.Clock
	logger   *slog.Logger

	mu       sync.RWMutex
	managers map[string]*session.Manager
}

func NewRegistry(store kv.Store, reporter session.Reporter, clock clockwork.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		reporter: reporter,
		clock:    clock,
		logger:   logger,
		managers: make(map[string]*session.Manager),
	}
}

func (r *Registry) Get(ctx context.Context, device string) *session.Manager {
	r.mu.RLock()
	m, ok := r.managers[device]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if m, ok := r.managers[device]; ok {
		return m
	}

	m = r.open(ctx, device)
	r.managers[device] = m
	return m
}

func (r *Registry) open(ctx context.Context, device string) *session.Manager {
	logger := r.logger.With("device", device)
	engine := countdown.New(r.clock, r.store, deviceKey(device, "timer"), logger)
	m := session.NewManager(engine, r.store, deviceKey(device, "session"), r.reporter, r.clock, logger)

	// Restore whatever the device had before a restart; a live countdown
	// resumes ticking immediately.
	if err := m.Load(ctx); err != nil {
		logger.Warn("restoring device session failed", "error", err)
	}
	return m
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for device, m := range r.managers {
		m.Close()
		delete(r.managers, device)
	}
}

func deviceKey(device, kind string) string {
	return fmt.Sprintf("device:%s:%s", device, kind)
}

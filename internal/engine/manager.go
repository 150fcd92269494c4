package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawmart/cart-engine/internal/domain/cart"
	"github.com/pawmart/cart-engine/internal/domain/order"
	"github.com/pawmart/cart-engine/internal/domain/payment"
	"github.com/pawmart/cart-engine/internal/domain/product"
)

// Deps are the shared collaborators every engine instance uses.
type Deps struct {
	Products        product.Repository
	RemoteCarts     cart.RemoteCart
	Orders          order.Service
	PaymentProvider payment.Provider
}

// ManagerConfig tunes session lifetime handling.
type ManagerConfig struct {
	// SessionTTL is how long an idle session survives before eviction.
	SessionTTL time.Duration
	// WatchdogTimeout overrides the payment watchdog for all sessions.
	// Zero keeps the default.
	WatchdogTimeout time.Duration
}

// entry tracks one live session and when it was last touched.
type entry struct {
	engine   *Engine
	lastSeen time.Time
}

// Manager hands out per-session Engine instances keyed by the UI's
// session identifier, evicting sessions that have gone idle.
type Manager struct {
	deps Deps
	cfg  ManagerConfig
	lg   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a session manager. Call StartCleanup to enable
// idle eviction.
func NewManager(deps Deps, cfg ManagerConfig, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return &Manager{
		deps:    deps,
		cfg:     cfg,
		lg:      lg,
		entries: make(map[string]*entry),
	}
}

// Get returns the engine for sessionID, creating it on first use.
func (m *Manager) Get(sessionID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	if !ok {
		var opts []payment.Option
		if m.cfg.WatchdogTimeout > 0 {
			opts = append(opts, payment.WithWatchdogTimeout(m.cfg.WatchdogTimeout))
		}
		e = &entry{engine: newEngine(m.deps, m.lg.With(zap.String("session_id", sessionID)), opts)}
		m.entries[sessionID] = e
	}
	e.lastSeen = time.Now()
	return e.engine
}

// StartCleanup launches a background goroutine that evicts idle
// sessions every half TTL. It stops when ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context) {
	interval := m.cfg.SessionTTL / 2
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.cleanup(now)
			}
		}
	}()
}

// cleanup evicts sessions idle for longer than the TTL. An evicted
// session's in-flight sync is cancelled so it cannot write afterwards.
func (m *Manager) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		if now.Sub(e.lastSeen) >= m.cfg.SessionTTL {
			e.engine.syncer.Cancel()
			delete(m.entries, id)
			m.lg.Debug("Evicted idle session", zap.String("session_id", id))
		}
	}
}

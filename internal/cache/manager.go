package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerConfig configures the cache manager.
type ManagerConfig struct {
	// SweepInterval is the cadence of the background sweep pass over all
	// collections; zero disables the sweeper.
	SweepInterval time.Duration

	Logger *zap.Logger
}

// Manager owns the set of collections, one per entity type, and runs the
// periodic sweeper over them. Collections are independent: no
// cross-collection locking, and mutating one never touches another.
type Manager struct {
	interval time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager builds a manager with no collections registered.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		interval:    cfg.SweepInterval,
		logger:      cfg.Logger,
		collections: make(map[string]*Collection),
	}
}

// Register creates the collection for an entity type, or returns the
// existing one: registration is idempotent and the first configuration
// wins.
func (m *Manager) Register(name string, cfg CollectionConfig) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		return c
	}
	c := NewCollection(name, cfg)
	m.collections[name] = c
	return c
}

// Collection returns the registered collection for an entity type.
func (m *Manager) Collection(name string) (*Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	return c, ok
}

// Start launches the background sweeper. It is a no-op when the sweep
// interval is zero or the sweeper already runs.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.sweepLoop(runCtx, m.done)
}

// Stop halts the background sweeper.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Manager) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.SweepAll()
			if removed > 0 {
				m.logger.Debug("cache sweep completed", zap.Int("removed", removed))
			}
		}
	}
}

// SweepAll runs one sweep pass over every collection and returns the total
// number of entries removed.
func (m *Manager) SweepAll() int {
	m.mu.RLock()
	collections := make([]*Collection, 0, len(m.collections))
	for _, c := range m.collections {
		collections = append(collections, c)
	}
	m.mu.RUnlock()

	total := 0
	for _, c := range collections {
		total += c.Sweep()
	}
	return total
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/gatewire"
	"github.com/luciancaetano/gatewire/internal/protocol"
)

// ManagerConfig configures the shard set.
type ManagerConfig struct {
	Token      string
	GatewayURL string

	// ShardCount is the total shard topology; ShardIDs optionally limits
	// this manager to a subset of it (empty means all shards).
	ShardCount int
	ShardIDs   []int

	Intents    int
	Properties protocol.IdentifyProperties

	// MaxConcurrency is the number of identify handshakes the remote
	// service permits at once; IdentifySpacing is the delay before an
	// identify slot is handed to the next shard.
	MaxConcurrency  int
	IdentifySpacing time.Duration

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Manager owns the full set of shard sessions. It shares one identify pacer
// across them and merges their dispatch payloads and lifecycle transitions
// into single subscribable streams. Shard failures are isolated: each
// session recovers on its own without affecting its siblings.
type Manager struct {
	cfg       ManagerConfig
	logger    *zap.Logger
	pacer     *Pacer
	events    *Hub[gatewire.Event]
	lifecycle *Hub[gatewire.LifecycleEvent]

	mu       sync.Mutex
	sessions map[int]*Session
	opened   bool
}

// NewManager validates the configuration and builds the shard sessions.
// Nothing connects until Open is called.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway url is required")
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 1
	}
	if cfg.IdentifySpacing <= 0 {
		cfg.IdentifySpacing = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	for _, id := range cfg.ShardIDs {
		if id < 0 || id >= cfg.ShardCount {
			return nil, fmt.Errorf("%w: shard %d outside total %d",
				gatewire.ErrInvalidShardCount, id, cfg.ShardCount)
		}
	}

	m := &Manager{
		cfg:       cfg,
		logger:    cfg.Logger,
		pacer:     NewPacer(cfg.MaxConcurrency, cfg.IdentifySpacing),
		events:    NewHub[gatewire.Event](),
		lifecycle: NewHub[gatewire.LifecycleEvent](),
	}
	m.buildSessionsLocked()
	return m, nil
}

// buildSessionsLocked rebuilds the session set from the current config.
// Callers hold m.mu (or own the manager exclusively, as in NewManager).
func (m *Manager) buildSessionsLocked() {
	ids := m.cfg.ShardIDs
	if len(ids) == 0 {
		ids = make([]int, m.cfg.ShardCount)
		for i := range ids {
			ids[i] = i
		}
	}

	m.sessions = make(map[int]*Session, len(ids))
	for _, id := range ids {
		m.sessions[id] = NewSession(Config{
			Token:      m.cfg.Token,
			ShardID:    id,
			ShardCount: m.cfg.ShardCount,
			Intents:    m.cfg.Intents,
			GatewayURL: m.cfg.GatewayURL,
			Properties: m.cfg.Properties,
			Dialer:     m.cfg.Dialer,
			Pacer:      m.pacer,
			Logger:     m.logger,
			Events:     m.events,
			Lifecycle:  m.lifecycle,
		})
	}
}

// Open connects every shard concurrently; the shared pacer spaces their
// identify handshakes apart. The first handshake failure aborts the whole
// startup and closes any shard that already connected.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.opened {
		m.mu.Unlock()
		return gatewire.ErrAlreadyOpen
	}
	m.opened = true
	sessions := m.sessionsLocked()
	m.mu.Unlock()

	m.logger.Info("opening shards", zap.Int("count", len(sessions)))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			return s.Open(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.closeSessions(closeCtx)

		m.mu.Lock()
		m.opened = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// Close shuts every shard down and closes the event streams. The manager
// cannot be reopened afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.opened = false
	m.mu.Unlock()

	err := m.closeSessions(ctx)
	m.events.Close()
	m.lifecycle.Close()
	return err
}

// Reshard tears down all sessions, rebuilds them for the new total shard
// count and, if the manager was open, reconnects. Saved resume state is
// discarded with the old sessions: a topology change always re-identifies.
func (m *Manager) Reshard(ctx context.Context, totalShards int) error {
	if totalShards <= 0 {
		return fmt.Errorf("%w: %d", gatewire.ErrInvalidShardCount, totalShards)
	}

	m.mu.Lock()
	wasOpen := m.opened
	m.opened = false
	m.mu.Unlock()

	m.logger.Info("resharding", zap.Int("total_shards", totalShards))
	if err := m.closeSessions(ctx); err != nil {
		m.logger.Warn("shard shutdown during reshard", zap.Error(err))
	}

	m.mu.Lock()
	m.cfg.ShardCount = totalShards
	m.cfg.ShardIDs = nil
	m.buildSessionsLocked()
	m.mu.Unlock()

	if !wasOpen {
		return nil
	}
	return m.Open(ctx)
}

func (m *Manager) closeSessions(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessionsLocked()
	m.mu.Unlock()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, s := range sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (m *Manager) sessionsLocked() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Shard returns the session for the given shard index.
func (m *Manager) Shard(id int) (gatewire.Shard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Shards returns all sessions ordered by shard index.
func (m *Manager) Shards() []gatewire.Shard {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]gatewire.Shard, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Subscribe returns a subscription on the merged dispatch stream.
func (m *Manager) Subscribe(buffer int) *Subscription[gatewire.Event] {
	return m.events.Subscribe(buffer)
}

// SubscribeLifecycle returns a subscription on shard lifecycle transitions.
func (m *Manager) SubscribeLifecycle(buffer int) *Subscription[gatewire.LifecycleEvent] {
	return m.lifecycle.Subscribe(buffer)
}

// ShardID returns the shard owning an entity: (id >> 22) % total.
func ShardID(entityID uint64, totalShards int) int {
	if totalShards <= 0 {
		return 0
	}
	return int((entityID >> 22) % uint64(totalShards))
}

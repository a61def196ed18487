package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/cache"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
	"github.com/Ayushsunny/Budgease/internal/store"
)

var ErrManagerClosed = errors.New("session manager closed")

type ManagerConfig struct {
	// MaxSessions bounds the number of open stores; the least recently used
	// one is evicted first.
	MaxSessions int
	// TTL closes stores nobody acquired for this long. Zero disables expiry.
	TTL time.Duration
	// OpenTimeout bounds loading a store. Zero means DefaultOpenTimeout.
	OpenTimeout time.Duration
	// StoreOptions are applied to every store the manager creates.
	StoreOptions []store.Option
}

const DefaultOpenTimeout = 30 * time.Second

type entry struct {
	key   string
	store *store.Store
	ready chan struct{}
	err   error

	mu       sync.Mutex
	refs     int
	evicted  bool
	disposed bool
}

// Manager keeps one open store per identity for multi-user surfaces.
// Evicted stores are closed once the last holder releases them.
type Manager struct {
	adapter persistence.Adapter
	cfg     ManagerConfig
	logger  *log.Logger
	cleanup *cache.Manager

	mu     sync.Mutex
	closed bool
	lru    *cache.LRUCache[*entry]

	drainMu  sync.Mutex
	draining map[string]*entry

	wg sync.WaitGroup
}

func NewManager(adapter persistence.Adapter, cfg ManagerConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	m := &Manager{
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentSession),
		draining: make(map[string]*entry),
	}
	m.lru = cache.NewLRUCache[*entry](cfg.MaxSessions, cfg.TTL).OnEvict(m.evicted)
	m.cleanup = cache.NewManager(logger)
	m.cleanup.Register(m.lru)
	if cfg.TTL > 0 {
		m.cleanup.StartCleanup(cleanupInterval(cfg.TTL))
	}
	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Acquire returns the open store for identity, creating and loading it on
// first use. The caller must call release when done with it. ctx only bounds
// this caller's wait; the load itself outlives it.
func (m *Manager) Acquire(ctx context.Context, identity core.Identity) (*store.Store, func(), error) {
	key := identity.Key()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrManagerClosed
	}
	e, ok := m.lru.Get(key)
	if ok {
		e.mu.Lock()
		e.refs++
		e.mu.Unlock()
	} else if e = m.revive(key); e != nil {
		m.lru.Set(key, e)
	} else {
		e = &entry{
			key:   key,
			store: store.New(m.adapter, m.storeOptions()...),
			ready: make(chan struct{}),
			refs:  1,
		}
		m.lru.Set(key, e)
		m.wg.Add(1)
		go m.load(ctx, e, identity)
	}
	m.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		m.release(e)
		return nil, nil, ctx.Err()
	}
	if e.err != nil {
		m.release(e)
		return nil, nil, e.err
	}
	return e.store, m.releaser(e), nil
}

// load opens e's store detached from the caller that created it, so a
// caller giving up does not fail the others waiting on the same identity.
func (m *Manager) load(ctx context.Context, e *entry, identity core.Identity) {
	defer m.wg.Done()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.OpenTimeout)
	defer cancel()

	err := e.store.Open(ctx, identity)
	var lerr *store.LoadError
	if err != nil && !errors.As(err, &lerr) {
		m.logger.Warn("Failed to open session", log.FieldIdentity, e.key, log.FieldError, err)
		e.err = err
		m.mu.Lock()
		if cur, ok := m.lru.Get(e.key); ok && cur == e {
			m.lru.Delete(e.key)
		}
		m.mu.Unlock()
		close(e.ready)
		return
	}
	if lerr != nil {
		m.logger.Warn("Session opened with default budget", log.FieldIdentity, e.key, log.FieldError, err)
	}
	close(e.ready)
	m.logger.Debug("Session opened", log.FieldIdentity, e.key)
}

// revive takes back an evicted entry that is still held by someone, so two
// stores never serve the same identity. Caller holds mu.
func (m *Manager) revive(key string) *entry {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	e, ok := m.draining[key]
	if !ok {
		return nil
	}
	delete(m.draining, key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}
	e.evicted = false
	e.refs++
	return e
}

func (m *Manager) releaser(e *entry) func() {
	var once sync.Once
	return func() { once.Do(func() { m.release(e) }) }
}

func (m *Manager) release(e *entry) {
	m.drainMu.Lock()
	e.mu.Lock()
	e.refs--
	dispose := e.evicted && e.refs <= 0 && !e.disposed
	if dispose {
		e.disposed = true
		if m.draining[e.key] == e {
			delete(m.draining, e.key)
		}
	}
	e.mu.Unlock()
	m.drainMu.Unlock()

	if dispose {
		m.dispose(e)
	}
}

// evicted runs for entries leaving the LRU. It may be called while mu is
// held, so it only takes drainMu.
func (m *Manager) evicted(key string, e *entry) {
	m.drainMu.Lock()
	e.mu.Lock()
	e.evicted = true
	dispose := e.refs <= 0 && !e.disposed
	if dispose {
		e.disposed = true
	} else if !e.disposed {
		m.draining[key] = e
	}
	e.mu.Unlock()
	m.drainMu.Unlock()

	if dispose {
		m.dispose(e)
	}
}

func (m *Manager) dispose(e *entry) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := e.store.Close(); err != nil {
			m.logger.Error("Failed to close session", log.FieldIdentity, e.key, log.FieldError, err)
			return
		}
		m.logger.Debug("Session closed", log.FieldIdentity, e.key)
	}()
}

// Len reports the number of stores in the registry.
func (m *Manager) Len() int {
	return m.lru.Size()
}

// Close closes every store, including ones still held, and waits for pending
// saves to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cleanup.Stop()
	m.lru.Purge()

	m.drainMu.Lock()
	var held []*entry
	for key, e := range m.draining {
		delete(m.draining, key)
		held = append(held, e)
	}
	m.drainMu.Unlock()
	for _, e := range held {
		e.mu.Lock()
		already := e.disposed
		e.disposed = true
		e.mu.Unlock()
		if !already {
			m.dispose(e)
		}
	}

	m.wg.Wait()
	return nil
}

func (m *Manager) storeOptions() []store.Option {
	return append([]store.Option{store.WithLogger(m.logger)}, m.cfg.StoreOptions...)
}

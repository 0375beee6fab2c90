package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Invalidator is the collaborator contract the engine's services call
// after a transaction commits. It is best-effort: a false return means
// the projection may be stale, never that the business outcome failed.
type Invalidator interface {
	InvalidatePattern(ctx context.Context, pattern string) bool
}

// Store adds the read-through surface for projection caching.
type Store interface {
	Invalidator
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// Backend is a key/value store with pattern deletion. Patterns match a
// literal prefix followed by a trailing '*'.
type Backend interface {
	Get(ctx context.Context, key string) (interface{}, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Cache wraps a backend with a circuit breaker so a misbehaving backend
// degrades to a no-op instead of slowing every caller down.
type Cache struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func New(backend Backend, log *slog.Logger) *Cache {
	settings := gobreaker.Settings{
		Name:        "projection-cache",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip once the failure rate passes 50% over at least 10 calls
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &Cache{
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// Get returns the cached value for key, or false on miss or when the
// breaker is open.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		value, ok, err := c.backend.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return value, nil
	})
	if err != nil || result == nil {
		return nil, false
	}
	return result, true
}

// Set stores value under key. Failures are swallowed; the cache is a
// disposable projection, never the source of truth.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.backend.Set(ctx, key, value, ttl)
	})
	if err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// InvalidatePattern implements Invalidator.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) bool {
	_, err := c.cb.Execute(func() (interface{}, error) {
		_, err := c.backend.DeletePattern(ctx, pattern)
		return nil, err
	})
	if err != nil {
		c.log.Warn("cache invalidation skipped", "pattern", pattern, "error", err)
		return false
	}
	return true
}

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryBackend is the in-process default backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (interface{}, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeletePattern(ctx context.Context, pattern string) (int, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	exact := prefix == pattern

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key := range m.entries {
		if (exact && key == pattern) || (!exact && strings.HasPrefix(key, prefix)) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

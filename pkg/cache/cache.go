// Package cache memoizes leaderboard computations keyed by roster content hash.
//
// Entries live in memory only and expire after a fixed TTL. The cache never
// changes results, only whether they are recomputed.
package cache

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/leaderboard"
)

// DefaultTTL is how long a computed leaderboard is served from memory.
const DefaultTTL = 45 * time.Minute

// Stats holds cache hit/miss statistics.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Entry is one memoized leaderboard. Callers must not modify Rows.
type Entry struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Rows      []leaderboard.Row
	Stats     leaderboard.TotalStats
}

// Manager is a TTL map safe for concurrent use.
type Manager struct {
	now     func() time.Time
	logger  *slog.Logger
	entries map[string]*Entry
	stats   Stats
	ttl     time.Duration
	mu      sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[string]*Entry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured entry lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the live entry for key. Expired entries are reported absent.
func (m *Manager) Get(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.ExpiresAt) {
		m.stats.Misses++
		return nil, false
	}
	m.stats.Hits++
	return e, true
}

// Put stores rows and stats under key, replacing any previous entry.
func (m *Manager) Put(key string, rows []leaderboard.Row, stats leaderboard.TotalStats) *Entry {
	now := m.now()
	e := &Entry{
		Rows:      slices.Clone(rows),
		Stats:     stats,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	m.logger.Debug("leaderboard cached", "key", shortKey(key), "rows", len(rows), "expires", e.ExpiresAt)
	return e
}

// EvictExpired removes every expired entry and returns how many were removed.
func (m *Manager) EvictExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("evicted expired leaderboards", "count", n, "remaining", len(m.entries))
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns lookup statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

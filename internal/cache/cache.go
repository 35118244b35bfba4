package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Namespace partitions cached results by type so each gets its own TTL and
// entry cap.
type Namespace string

const (
	NamespaceRawSeries     Namespace = "rawseries"
	NamespaceDecomposition Namespace = "decomposition"
	NamespaceForecast      Namespace = "forecast"
	NamespaceAnalysis      Namespace = "analysis"
)

// Namespaces lists every cache namespace.
var Namespaces = []Namespace{
	NamespaceRawSeries,
	NamespaceDecomposition,
	NamespaceForecast,
	NamespaceAnalysis,
}

// DefaultTTLs returns the per-namespace expiry defaults.
func DefaultTTLs() map[Namespace]time.Duration {
	return map[Namespace]time.Duration{
		NamespaceRawSeries:     5 * time.Minute,
		NamespaceDecomposition: 15 * time.Minute,
		NamespaceForecast:      30 * time.Minute,
		NamespaceAnalysis:      5 * time.Minute,
	}
}

// DefaultMaxEntries is the per-namespace LRU cap when none is configured.
const DefaultMaxEntries = 1024

// Store is a byte-value cache backend. Implementations must be safe for
// concurrent use. Backend failures are absorbed as misses, never surfaced to
// computations.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeletePattern(ctx context.Context, pattern string) int
	Clear(ctx context.Context)
}

// Stats reports hit/miss counts per namespace.
type Stats struct {
	Hits   map[Namespace]int64 `json:"hits"`
	Misses map[Namespace]int64 `json:"misses"`
}

// Memoizer caches expensive computation results keyed by canonical request
// parameters. Concurrent requests for the same uncached key coalesce onto a
// single in-flight computation. Entries are immutable; a parameter change is
// a different key.
type Memoizer struct {
	stores map[Namespace]Store
	ttls   map[Namespace]time.Duration
	group  singleflight.Group
	logger *logrus.Logger

	hits   map[Namespace]*int64
	misses map[Namespace]*int64
}

// NewMemoizer wraps one store per namespace.
func NewMemoizer(stores map[Namespace]Store, ttls map[Namespace]time.Duration, logger *logrus.Logger) *Memoizer {
	if logger == nil {
		logger = logrus.New()
	}
	if ttls == nil {
		ttls = DefaultTTLs()
	}

	hits := make(map[Namespace]*int64, len(Namespaces))
	misses := make(map[Namespace]*int64, len(Namespaces))
	for _, ns := range Namespaces {
		hits[ns] = new(int64)
		misses[ns] = new(int64)
	}

	return &Memoizer{
		stores: stores,
		ttls:   ttls,
		logger: logger,
		hits:   hits,
		misses: misses,
	}
}

// NewMemoryMemoizer builds a memoizer backed by in-process LRU stores.
func NewMemoryMemoizer(maxEntries int, ttls map[Namespace]time.Duration, logger *logrus.Logger) *Memoizer {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	stores := make(map[Namespace]Store, len(Namespaces))
	for _, ns := range Namespaces {
		stores[ns] = NewMemoryStore(maxEntries)
	}
	return NewMemoizer(stores, ttls, logger)
}

// Key builds a canonical cache key from the operation name and its
// parameters. Identical parameters always produce identical keys.
func Key(op string, parts ...interface{}) string {
	b := strings.Builder{}
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte('|')
		fmt.Fprintf(&b, "%v", p)
	}
	return b.String()
}

// GetOrCompute returns the cached value for key, or runs compute exactly once
// (coalescing concurrent callers) and caches its result for the namespace's
// TTL. The value is JSON round-tripped into dest in both paths so cached and
// freshly computed results are indistinguishable.
func (m *Memoizer) GetOrCompute(ctx context.Context, ns Namespace, key string, dest interface{}, compute func() (interface{}, error)) error {
	store, ok := m.stores[ns]
	if !ok {
		value, err := compute()
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}

	if data, found := store.Get(ctx, key); found {
		atomic.AddInt64(m.hits[ns], 1)
		return json.Unmarshal(data, dest)
	}
	atomic.AddInt64(m.misses[ns], 1)

	flightKey := string(ns) + ":" + key
	result, err, _ := m.group.Do(flightKey, func() (interface{}, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}

		store.Set(ctx, key, data, m.ttl(ns))
		return data, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(result.([]byte), dest)
}

// Invalidate removes entries matching a glob pattern from every namespace.
// An empty pattern or "*" clears everything.
func (m *Memoizer) Invalidate(ctx context.Context, pattern string) int {
	if pattern == "" || pattern == "*" {
		for _, store := range m.stores {
			store.Clear(ctx)
		}
		m.logger.Debug("cache cleared")
		return 0
	}

	removed := 0
	for _, store := range m.stores {
		removed += store.DeletePattern(ctx, pattern)
	}
	m.logger.WithFields(logrus.Fields{"pattern": pattern, "removed": removed}).Debug("cache invalidated by pattern")
	return removed
}

// InvalidateKey removes one key from one namespace.
func (m *Memoizer) InvalidateKey(ctx context.Context, ns Namespace, key string) {
	if store, ok := m.stores[ns]; ok {
		store.Delete(ctx, key)
	}
}

// Stats returns hit/miss counts per namespace.
func (m *Memoizer) Stats() Stats {
	s := Stats{
		Hits:   make(map[Namespace]int64, len(Namespaces)),
		Misses: make(map[Namespace]int64, len(Namespaces)),
	}
	for _, ns := range Namespaces {
		s.Hits[ns] = atomic.LoadInt64(m.hits[ns])
		s.Misses[ns] = atomic.LoadInt64(m.misses[ns])
	}
	return s
}

func (m *Memoizer) ttl(ns Namespace) time.Duration {
	if ttl, ok := m.ttls[ns]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTLs()[ns]
}

func roundTrip(value, dest interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

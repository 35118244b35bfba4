package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

func TestGetOrComputeCachesResult(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return payload{Value: 42, Name: "answer"}, nil
	}

	var first payload
	require.NoError(t, m.GetOrCompute(ctx, NamespaceAnalysis, "k1", &first, compute))
	assert.Equal(t, 42, first.Value)
	assert.Equal(t, 1, calls)

	var second payload
	require.NoError(t, m.GetOrCompute(ctx, NamespaceAnalysis, "k1", &second, compute))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "second lookup must be served from cache")

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits[NamespaceAnalysis])
	assert.Equal(t, int64(1), stats.Misses[NamespaceAnalysis])
}

func TestGetOrComputeDistinctKeys(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return payload{Value: calls}, nil
	}

	var a, b payload
	require.NoError(t, m.GetOrCompute(ctx, NamespaceAnalysis, "k1", &a, compute))
	require.NoError(t, m.GetOrCompute(ctx, NamespaceAnalysis, "k2", &b, compute))
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	var calls int64
	release := make(chan struct{})
	compute := func() (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return payload{Value: 7}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]payload, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.GetOrCompute(ctx, NamespaceForecast, "shared", &results[i], compute)
		}(i)
	}

	// Give every goroutine a chance to reach the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 7, results[i].Value)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&calls), int64(2),
		"concurrent identical requests must coalesce")
}

func TestGetOrComputePropagatesError(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	calls := 0
	var out payload
	err := m.GetOrCompute(ctx, NamespaceAnalysis, "boom", &out, func() (interface{}, error) {
		calls++
		return nil, assert.AnError
	})
	require.Error(t, err)

	// Failures are not cached.
	err = m.GetOrCompute(ctx, NamespaceAnalysis, "boom", &out, func() (interface{}, error) {
		calls++
		return payload{Value: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestInvalidatePattern(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	seed := func(key string) {
		var out payload
		_ = m.GetOrCompute(ctx, NamespaceAnalysis, key, &out, func() (interface{}, error) {
			return payload{Value: 1}, nil
		})
	}
	seed("summary|cpu|a")
	seed("summary|mem|a")
	seed("entropy|cpu|a")

	removed := m.Invalidate(ctx, "summary|*")
	assert.Equal(t, 2, removed)

	calls := 0
	var out payload
	_ = m.GetOrCompute(ctx, NamespaceAnalysis, "entropy|cpu|a", &out, func() (interface{}, error) {
		calls++
		return payload{}, nil
	})
	assert.Equal(t, 0, calls, "unmatched key must survive invalidation")
}

func TestInvalidateAll(t *testing.T) {
	m := NewMemoryMemoizer(16, nil, logrus.New())
	ctx := context.Background()

	var out payload
	_ = m.GetOrCompute(ctx, NamespaceForecast, "k", &out, func() (interface{}, error) {
		return payload{Value: 1}, nil
	})

	m.Invalidate(ctx, "*")

	calls := 0
	_ = m.GetOrCompute(ctx, NamespaceForecast, "k", &out, func() (interface{}, error) {
		calls++
		return payload{Value: 2}, nil
	})
	assert.Equal(t, 1, calls)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore(16)
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"), 20*time.Millisecond)

	_, found := store.Get(ctx, "k")
	assert.True(t, found)

	time.Sleep(30 * time.Millisecond)
	_, found = store.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"), time.Minute)
	store.Set(ctx, "b", []byte("2"), time.Minute)
	store.Set(ctx, "c", []byte("3"), time.Minute)

	// Touch "a" so "b" becomes the least recently used.
	_, found := store.Get(ctx, "a")
	require.True(t, found)

	store.Set(ctx, "d", []byte("4"), time.Minute)

	_, found = store.Get(ctx, "b")
	assert.False(t, found, "least recently used entry must be evicted")
	_, found = store.Get(ctx, "a")
	assert.True(t, found)
	_, found = store.Get(ctx, "d")
	assert.True(t, found)
	assert.Equal(t, int64(1), store.Evictions())
}

func TestRedisStoresShareOneClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	forecast := NewRedisStore(client, "", NamespaceForecast, nil)
	analysis := NewRedisStore(client, "custom", NamespaceAnalysis, nil)

	assert.Same(t, client, forecast.client)
	assert.Same(t, client, analysis.client)
	assert.Equal(t, "tsengine:forecast:", forecast.prefix)
	assert.Equal(t, "custom:analysis:", analysis.prefix)
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("forecast", "cpu", 7, "auto")
	b := Key("forecast", "cpu", 7, "auto")
	c := Key("forecast", "cpu", 14, "auto")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

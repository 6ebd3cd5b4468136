package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingClassifier struct {
	mu     sync.Mutex
	calls  int
	result domain.Classification
	err    error
}

func (m *countingClassifier) Analyze(_ context.Context, _ string) (domain.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

// --- CachedClassifier tests ---

func TestCachedClassifier_CacheHit(t *testing.T) {
	inner := &countingClassifier{result: domain.Classification{Severity: 7, HazardDetected: true}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedClassifier(inner, 10, metrics)

	r1, err := cached.Analyze(context.Background(), "https://m/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 7, r1.Severity)

	r2, err := cached.Analyze(context.Background(), "https://m/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ClassifierCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ClassifierCache.WithLabelValues("miss")))
}

func TestCachedClassifier_DifferentKeysMiss(t *testing.T) {
	inner := &countingClassifier{result: domain.Classification{Severity: 5}}
	cached := NewCachedClassifier(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Analyze(context.Background(), "https://m/a.jpg")
	_, _ = cached.Analyze(context.Background(), "https://m/b.jpg")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedClassifier_ErrorsNotCached(t *testing.T) {
	inner := &countingClassifier{err: errors.New("boom")}
	cached := NewCachedClassifier(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Analyze(context.Background(), "https://m/a.jpg")
	require.Error(t, err)
	_, err = cached.Analyze(context.Background(), "https://m/a.jpg")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.cache.len())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.Classification{Severity: 3})
	c.put("b", domain.Classification{Severity: 5})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, result.Severity)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Classification{Severity: 3})
	c.put("b", domain.Classification{Severity: 5})
	c.put("c", domain.Classification{Severity: 7}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 5, result.Severity)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 7, result.Severity)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Classification{Severity: 3})
	c.put("b", domain.Classification{Severity: 5})

	c.get("a")

	c.put("c", domain.Classification{Severity: 7})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Classification{Severity: 3})
	c.put("a", domain.Classification{Severity: 9})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 9, result.Severity)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_NonPositiveCapacity(t *testing.T) {
	c := newLRUCache(0)

	c.put("a", domain.Classification{Severity: 3})
	c.put("b", domain.Classification{Severity: 5})

	_, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.len())
}

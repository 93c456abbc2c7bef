package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_WrapsWhenFull(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"a", "b", "c", "d"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"b", "c", "d"}, buf.Items())
}

func TestCircularBuffer_EmptyAndClear(t *testing.T) {
	buf := NewCircularBuffer[string](3)
	assert.Empty(t, buf.Items())

	buf.Add("a")
	buf.Clear()
	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"Launch Plan", []string{"launch", "plan"}},
		{"a to z", nil},
		{"  ", nil},
		{"one", []string{"one"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractTerms(tt.query), "query %q", tt.query)
	}
}

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketP10, LatencyToBucket(5*time.Millisecond))
	assert.Equal(t, BucketP50, LatencyToBucket(30*time.Millisecond))
	assert.Equal(t, BucketP100, LatencyToBucket(70*time.Millisecond))
	assert.Equal(t, BucketP500, LatencyToBucket(200*time.Millisecond))
	assert.Equal(t, BucketP1000, LatencyToBucket(2*time.Second))
}

func TestMetrics_RecordAndSnapshot(t *testing.T) {
	m := New(nil)

	m.RecordQuery("launch plan", 5, 20*time.Millisecond, false)
	m.RecordQuery("launch plan", 5, 2*time.Millisecond, true)
	m.RecordQuery("ghost", 0, 600*time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.CachedQueries)
	assert.InDelta(t, 1.0/3.0, snap.CacheHitRate, 0.001)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"ghost"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP1000])
}

func TestMetrics_TopTermsOrdered(t *testing.T) {
	m := New(nil)

	for i := 0; i < 3; i++ {
		m.RecordQuery("launch", 1, time.Millisecond, false)
	}
	m.RecordQuery("design", 1, time.Millisecond, false)

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "launch", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordQuery("concurrent", 1, time.Millisecond, false)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}

func TestMetrics_FlushWithoutSink(t *testing.T) {
	m := New(nil)
	m.RecordQuery("anything", 1, time.Millisecond, false)

	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
}

package telemetry_test

import (
	"sync"
	"testing"

	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerSpanAlwaysSampled(t *testing.T) {
	h := telemetry.New(0, nil)
	span := h.StartSpan("listener", nil, nil)
	assert.True(t, span.Sampled)
}

func TestUnknownSpanNameAlwaysSampled(t *testing.T) {
	h := telemetry.New(0, nil)
	span := h.StartSpan("worker", nil, nil)
	assert.True(t, span.Sampled)
}

func TestConnectionSpanSampledByRate(t *testing.T) {
	h := telemetry.New(1, nil)
	span := h.StartSpan("connection", nil, nil)
	assert.True(t, span.Sampled)

	h2 := telemetry.New(0, nil)
	span2 := h2.StartSpan("connection", nil, nil)
	assert.False(t, span2.Sampled)
}

func TestUnsampledSpanSuppressesEventsAndStop(t *testing.T) {
	h := telemetry.New(0, nil)
	var captured []string
	h.SetSink(func(span *telemetry.Span, event string, measurements, metadata map[string]any) {
		captured = append(captured, event)
	})

	span := h.StartSpan("connection", nil, nil)
	require.False(t, span.Sampled)

	h.SpanEvent(span, "recv", nil, nil)
	h.StopSpan(span, nil, nil)

	assert.Empty(t, captured)
}

func TestSampledSpanEmitsEventsAndStop(t *testing.T) {
	h := telemetry.New(1, nil)
	var captured []string
	var mu sync.Mutex
	h.SetSink(func(span *telemetry.Span, event string, measurements, metadata map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		captured = append(captured, event)
	})

	span := h.StartSpan("connection", nil, nil)
	h.SpanEvent(span, "recv", nil, nil)
	h.StopSpan(span, nil, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"recv", "stop"}, captured)
}

func TestChildSpanInheritsParentID(t *testing.T) {
	h := telemetry.New(1, nil)
	parent := h.StartSpan("listener", nil, nil)
	child := h.StartChildSpan(parent, "connection", nil, nil)
	assert.Equal(t, parent.ID, child.ParentID)
}

func TestMetricsTrackAcceptAndClose(t *testing.T) {
	h := telemetry.New(1, nil)
	h.TrackConnectionAccepted()
	h.TrackConnectionAccepted()
	h.TrackConnectionClosed()

	snap := h.GetMetrics()
	assert.Equal(t, int64(1), snap.ConnectionsActive)
	assert.Equal(t, uint64(2), snap.ConnectionsTotal)
	assert.Equal(t, uint64(2), snap.AcceptsTotal)
}

func TestMetricsTrackResponse(t *testing.T) {
	h := telemetry.New(1, nil)
	h.TrackResponseSent(5.0)
	snap := h.GetMetrics()
	assert.Equal(t, uint64(1), snap.ResponsesTotal)
}

func TestResetMetrics(t *testing.T) {
	h := telemetry.New(1, nil)
	h.TrackConnectionAccepted()
	h.ResetMetrics()
	snap := h.GetMetrics()
	assert.Equal(t, int64(0), snap.ConnectionsActive)
	assert.Equal(t, uint64(0), snap.ConnectionsTotal)
}

func TestConcurrentMetricsIncrements(t *testing.T) {
	h := telemetry.New(1, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.TrackConnectionAccepted()
		}()
	}
	wg.Wait()
	snap := h.GetMetrics()
	assert.Equal(t, uint64(100), snap.AcceptsTotal)
}

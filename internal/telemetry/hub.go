// Package telemetry implements the span and metrics model every other
// component reports through: spans are sampled probabilistically, metrics
// are exact and always on.
package telemetry

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// EventFunc receives a sampled span's event or stop notification. The hub's
// default sink logs through slog; callers may supply their own (tests,
// exporters).
type EventFunc func(span *Span, event string, measurements, metadata map[string]any)

// Hub is the process-wide TelemetryHub: it owns span sampling decisions, the
// event sink, and the exact metrics table.
type Hub struct {
	sampleRate float64
	sink       EventFunc
	logger     *slog.Logger

	Metrics Metrics
}

// New creates a Hub with the given connection-span sample rate. Listener
// spans are always sampled regardless of this rate.
func New(sampleRate float64, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{sampleRate: sampleRate, logger: logger}
	h.sink = h.logSink
	return h
}

// SetSink overrides the event sink, e.g. for tests that want to capture
// events instead of emitting log lines.
func (h *Hub) SetSink(fn EventFunc) {
	h.sink = fn
}

func (h *Hub) logSink(span *Span, event string, measurements, metadata map[string]any) {
	h.logger.Debug("telemetry event",
		slog.String("span", span.Name),
		slog.String("event", event),
		slog.String("span_id", span.ID),
		slog.Any("measurements", measurements),
		slog.Any("metadata", metadata),
	)
}

// StartSpan begins a new root span. Listener spans are always sampled;
// connection spans are sampled with probability sampleRate; any other name
// is always sampled, matching the "unknown span names: sampled" rule.
func (h *Hub) StartSpan(name string, measurements, metadata map[string]any) *Span {
	return h.startSpan("", name, measurements, metadata)
}

// StartChildSpan begins a span as a child of parent, inheriting its sampling
// independently (a child may be sampled even if its parent was not, and
// vice versa).
func (h *Hub) StartChildSpan(parent *Span, name string, measurements, metadata map[string]any) *Span {
	parentID := ""
	if parent != nil {
		parentID = parent.ID
	}
	return h.startSpan(parentID, name, measurements, metadata)
}

func (h *Hub) startSpan(parentID, name string, measurements, metadata map[string]any) *Span {
	sampled := true
	if name == "connection" {
		sampled = rand.Float64() < h.sampleRate
	}
	return &Span{
		ID:            uuid.NewString(),
		ParentID:      parentID,
		Name:          name,
		Sampled:       sampled,
		StartTime:     time.Now(),
		StartMetadata: metadata,
		Measurements:  measurements,
	}
}

// SpanEvent emits an event for span, suppressed when the span is unsampled.
func (h *Hub) SpanEvent(span *Span, eventName string, measurements, metadata map[string]any) {
	if span == nil || !span.Sampled {
		return
	}
	h.sink(span, eventName, measurements, metadata)
}

// StopSpan closes span, computing its duration and merging metadata, and
// emits the span's "stop" event. Suppressed when the span is unsampled.
func (h *Hub) StopSpan(span *Span, measurements, metadata map[string]any) {
	if span == nil || !span.Sampled {
		return
	}
	duration := time.Since(span.StartTime)
	merged := span.mergedMetadata(metadata)
	merged["duration_ms"] = duration.Milliseconds()
	h.sink(span, "stop", measurements, merged)
}

// TrackConnectionAccepted records an accepted connection.
func (h *Hub) TrackConnectionAccepted() { h.Metrics.TrackConnectionAccepted() }

// TrackConnectionClosed records a connection's termination.
func (h *Hub) TrackConnectionClosed() { h.Metrics.TrackConnectionClosed() }

// TrackResponseSent records a completed response and its elapsed time.
func (h *Hub) TrackResponseSent(elapsedMs float64) { h.Metrics.TrackResponseSent(elapsedMs) }

// TrackDatagramDropped records a datagram rejected before a worker started.
func (h *Hub) TrackDatagramDropped() { h.Metrics.TrackDatagramDropped() }

// GetMetrics returns a snapshot of the metrics table.
func (h *Hub) GetMetrics() Snapshot { return h.Metrics.GetMetrics() }

// ResetMetrics zeroes the metrics table.
func (h *Hub) ResetMetrics() { h.Metrics.Reset() }

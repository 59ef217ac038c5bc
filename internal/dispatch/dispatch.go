// Package dispatch implements the per-datagram Dispatcher: pre-checks,
// bounded worker spawn, and non-blocking scheduled retry on saturation.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/abyss-go/abyss/internal/ratelimit"
	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/abyss-go/abyss/internal/transport"
	"github.com/abyss-go/abyss/internal/worker"
)

// Config carries the dispatch-relevant subset of server configuration.
type Config struct {
	MaxPacketSize   int
	RetryCount      int
	RetryBaseWaitMs int
	Passive         bool
	Worker          worker.Config
}

// Dispatcher is the stateless coordinator invoked once per datagram. It is
// safe for concurrent use: every field it holds is itself concurrency-safe,
// and Dispatch carries no shared mutable state across calls.
type Dispatcher struct {
	Limiter    *ratelimit.Limiter // nil disables rate limiting
	Hub        *telemetry.Hub
	Supervisor *worker.Supervisor
	Handler    worker.Handler
	Config     Config
	Logger     *slog.Logger
	// ShutdownCtx, when set, is threaded into every worker.Spec. A passive
	// worker checks it each time its handler asks to continue, before it
	// waits for the next datagram; a worker already waiting is not woken by
	// it and ends when that wait times out.
	ShutdownCtx context.Context
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dispatch runs the pre-checks, span setup, and worker handoff for one
// received datagram. socket is the Worker's send/continue-receive handle;
// listenerSpan is the parent span to attach the new connection span to.
// releaseSocket is invoked exactly once, on every termination path, so the
// Listener can reclaim passive-mode receive ownership.
func (d *Dispatcher) Dispatch(socket worker.Socket, dg transport.Datagram, listenerSpan *telemetry.Span, sourceKey string, releaseSocket func()) {
	if d.Limiter != nil && !d.Limiter.Allow(sourceKey) {
		d.logger().Debug("dropped: rate limited", slog.String("source", sourceKey))
		d.Hub.TrackDatagramDropped()
		if releaseSocket != nil {
			releaseSocket()
		}
		return
	}
	if d.Config.MaxPacketSize > 0 && len(dg.Payload) > d.Config.MaxPacketSize {
		d.logger().Debug("dropped: oversized packet", slog.Int("size", len(dg.Payload)))
		d.Hub.TrackDatagramDropped()
		if releaseSocket != nil {
			releaseSocket()
		}
		return
	}

	connSpan := d.Hub.StartChildSpan(listenerSpan, "connection", nil, nil)
	d.Hub.TrackConnectionAccepted()

	spec := worker.Spec{
		Handler:         d.Handler,
		State:           worker.InitialState{Socket: socket, Source: dg.Source},
		Datagram:        dg,
		Socket:          socket,
		Passive:         d.Config.Passive,
		Span:            connSpan,
		Hub:             d.Hub,
		Config:          d.Config.Worker,
		AcceptStartTime: time.Now(),
		ReleaseSocket:   releaseSocket,
		Logger:          d.Logger,
		ShutdownCtx:     d.ShutdownCtx,
	}

	d.attempt(spec, d.Config.RetryCount)
}

func (d *Dispatcher) attempt(spec worker.Spec, remaining int) {
	err := d.Supervisor.StartWorker(spec)
	if err == nil {
		return
	}

	if !errors.Is(err, worker.ErrMaxChildren) {
		d.logger().Error("dispatch failed", slog.String("error", err.Error()))
		d.Hub.TrackConnectionClosed()
		d.Hub.StopSpan(spec.Span, nil, map[string]any{"reason": "error", "error": err.Error()})
		if spec.ReleaseSocket != nil {
			spec.ReleaseSocket()
		}
		return
	}

	if remaining <= 0 {
		d.Hub.SpanEvent(spec.Span, "limit_exceeded", map[string]any{
			"retries_attempted": d.Config.RetryCount,
		}, nil)
		d.Hub.TrackConnectionClosed()
		d.Hub.TrackDatagramDropped()
		d.Hub.StopSpan(spec.Span, nil, map[string]any{"reason": "limit_exceeded"})
		if spec.ReleaseSocket != nil {
			spec.ReleaseSocket()
		}
		return
	}

	delay := backoffDelay(d.Config.RetryBaseWaitMs, d.Config.RetryCount, remaining)
	time.AfterFunc(delay, func() {
		d.attempt(spec, remaining-1)
	})
}

// backoffDelay computes retry_base_wait_ms * 1.5^(retry_count - remaining),
// rounded to an integer, plus jitter drawn uniformly from [0, delay/4].
func backoffDelay(baseWaitMs, retryCount, remaining int) time.Duration {
	k := float64(retryCount - remaining)
	delayMs := float64(baseWaitMs) * math.Pow(1.5, k)
	delayMs = math.Round(delayMs)

	jitter := 0.0
	if delayMs > 0 {
		jitter = rand.Float64() * (delayMs / 4)
	}
	return time.Duration(delayMs+jitter) * time.Millisecond
}

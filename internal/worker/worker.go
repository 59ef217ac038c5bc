package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abyss-go/abyss/internal/helpers"
	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/shirou/gopsutil/v3/process"
)

// Socket is the subset of transport.Transport a Worker needs: it may send at
// any time, and, while holding passive-mode receive ownership in Continuing
// state, it receives directly from the socket.
type Socket interface {
	Recv(timeout time.Duration) (Datagram, error)
	Send(dest net.Addr, payload []byte) error
}

// Config carries the per-worker timing and memory-guard settings a Spec
// needs, trimmed from the full server configuration.
type Config struct {
	ReadTimeoutMs          int
	ShutdownTimeoutMs      int
	SilentTerminateOnError bool
	MemoryCheckIntervalMs  int
	MemoryWarnMB           int
	MemoryHardMB           int
}

// Spec is everything the Dispatcher hands a freshly started Worker.
type Spec struct {
	Handler  Handler
	State    any
	Datagram Datagram
	Socket   Socket
	// Passive reports whether this worker may take over socket receive
	// ownership to continue past the first datagram (unicast/passive mode
	// only; broadcast datagrams are always one-shot).
	Passive bool
	Span    *telemetry.Span
	Hub     *telemetry.Hub
	Config  Config
	// AcceptStartTime anchors the response-time measurement reported to the
	// hub when the worker terminates.
	AcceptStartTime time.Time
	// ReleaseSocket is called exactly once, on every terminate path, to
	// restore receive ownership to the Listener when this worker held it.
	ReleaseSocket func()
	Logger        *slog.Logger
	// ShutdownCtx, when set, is observed between handoffs: once cancelled,
	// the worker invokes HandleShutdown and terminates at its next
	// opportunity rather than waiting indefinitely for a continuation.
	ShutdownCtx context.Context
}

// Worker runs the per-datagram state machine: AwaitingDatagram -> Processing
// -> (Continuing | Closing) -> Terminating.
type Worker struct {
	spec    Spec
	history []time.Duration // bounded FIFO, newest 10
	logger  *slog.Logger

	cancelMemoryGuard context.CancelFunc
	finishOnce        sync.Once

	// memoryExceeded is set by memoryGuardLoop (a separate goroutine) and
	// polled by run() between handoffs; the guard never terminates the
	// worker itself, since only run() may safely decide to stop looping.
	memoryExceeded atomic.Bool

	// stateMu guards spec.State: run() writes it after every HandleData
	// call, and memoryGuardLoop reads it (via getState) to hand to
	// HandleMemoryWarning from its own goroutine.
	stateMu sync.Mutex
}

func (w *Worker) getState() any {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.spec.State
}

func (w *Worker) setState(s any) {
	w.stateMu.Lock()
	w.spec.State = s
	w.stateMu.Unlock()
}

const maxHistory = 10

// Run drives the worker to completion. It always returns once the worker has
// terminated; termination is never silent with respect to telemetry.
func Run(spec Spec) {
	w := &Worker{spec: spec, logger: spec.Logger}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.run()
}

func (w *Worker) run() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancelMemoryGuard = cancel
	go w.memoryGuardLoop(ctx)
	defer cancel()

	dg := w.spec.Datagram
	timeoutMs := w.spec.Config.ReadTimeoutMs

	for {
		if w.memoryExceeded.Load() {
			w.terminateMemoryLimitExceeded()
			return
		}

		start := time.Now()
		w.spec.Hub.SpanEvent(w.spec.Span, "ready", nil, nil)
		result := w.spec.Handler.HandleData(dg, w.getState())
		elapsed := time.Since(start)
		w.recordHistory(elapsed)
		w.setState(result.State)

		switch result.Action {
		case ActionClose:
			w.terminateClose()
			return
		case ActionError:
			w.terminateError(result.Reason)
			return
		case ActionContinue:
			if !w.spec.Passive {
				// Broadcast datagrams are one-shot: a Continue ends the
				// worker with reason "broadcast".
				w.terminateBroadcast()
				return
			}
			if w.memoryExceeded.Load() {
				w.terminateMemoryLimitExceeded()
				return
			}
			if w.spec.ShutdownCtx != nil && w.spec.ShutdownCtx.Err() != nil {
				w.terminateShutdown()
				return
			}
			if result.TimeoutMs > 0 {
				timeoutMs = result.TimeoutMs
				if result.Persistent {
					w.spec.Config.ReadTimeoutMs = result.TimeoutMs
				}
			} else {
				timeoutMs = adaptiveTimeout(w.spec.Config.ReadTimeoutMs, w.history)
			}

			next, err := w.spec.Socket.Recv(time.Duration(timeoutMs) * time.Millisecond)
			if err != nil {
				w.terminateTimeoutOrError(err)
				return
			}
			dg = next
		default:
			w.terminateError(fmt.Errorf("worker: unknown action %v", result.Action))
			return
		}
	}
}

func (w *Worker) recordHistory(d time.Duration) {
	w.history = append(w.history, d)
	if len(w.history) > maxHistory {
		w.history = w.history[len(w.history)-maxHistory:]
	}
}

func (w *Worker) terminateClose() {
	w.spec.Handler.HandleClose(w.getState())
	w.finish("local_closed", nil)
}

func (w *Worker) terminateError(reason error) {
	if w.spec.Config.SilentTerminateOnError {
		w.spec.Handler.HandleError(reason, w.getState())
		w.finish("silent_termination", reason)
		return
	}
	w.spec.Handler.HandleError(reason, w.getState())
	w.finish("error", reason)
}

func (w *Worker) terminateTimeoutOrError(err error) {
	w.spec.Handler.HandleTimeout(w.getState())
	w.finish("timeout", err)
}

func (w *Worker) terminateBroadcast() {
	w.finish("broadcast", nil)
}

func (w *Worker) terminateShutdown() {
	w.spec.Handler.HandleShutdown(w.getState())
	w.finish("shutdown", nil)
}

func (w *Worker) terminateMemoryLimitExceeded() {
	w.finish("memory_limit_exceeded", nil)
}

// finish implements the termination contract (§4.7.3): restore socket
// ownership, track connection closed, track response time, stop the span.
// run() is its only caller; finishOnce is a second line of defence so that
// a repeated call is a no-op and only the first reason/err is recorded.
func (w *Worker) finish(reason string, err error) {
	w.finishOnce.Do(func() {
		w.doFinish(reason, err)
	})
}

func (w *Worker) doFinish(reason string, err error) {
	if w.spec.ReleaseSocket != nil {
		w.spec.ReleaseSocket()
	}
	if w.cancelMemoryGuard != nil {
		w.cancelMemoryGuard()
	}
	w.spec.Hub.TrackConnectionClosed()
	if !w.spec.AcceptStartTime.IsZero() {
		elapsedMs := float64(time.Since(w.spec.AcceptStartTime).Milliseconds())
		w.spec.Hub.TrackResponseSent(elapsedMs)
	}
	metadata := map[string]any{"reason": reason}
	if err != nil {
		metadata["error"] = err.Error()
	}
	w.spec.Hub.StopSpan(w.spec.Span, nil, metadata)
}

// memoryGuardLoop samples process RSS every memory_check_interval_ms. Memory
// is process-wide in this runtime (there is no per-goroutine RSS), so the
// guard approximates the spec's per-worker check at process granularity,
// documented as an explicit adaptation from the original's process-per-worker
// model.
//
// The guard never terminates the worker itself: it only flags
// memoryExceeded and returns. run(), the sole goroutine allowed to drive the
// state machine to termination, polls that flag between handoffs and calls
// terminateMemoryLimitExceeded from there. This keeps exactly one goroutine
// ever calling finish for a given worker.
func (w *Worker) memoryGuardLoop(ctx context.Context) {
	interval := time.Duration(w.spec.Config.MemoryCheckIntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.checkMemory() {
				w.memoryExceeded.Store(true)
				return
			}
		}
	}
}

// checkMemory returns true if the hard limit was exceeded after a GC pass
// and re-measure, signalling the caller to terminate the worker.
func (w *Worker) checkMemory() bool {
	rssMB, err := sampleRSSMB()
	if err != nil {
		return false
	}
	if rssMB <= w.spec.Config.MemoryWarnMB {
		return false
	}

	w.spec.Hub.SpanEvent(w.spec.Span, "memory_warning", map[string]any{"rss_mb": rssMB}, nil)
	w.spec.Handler.HandleMemoryWarning(rssMB, w.getState())
	runtime.GC()

	rssMB, err = sampleRSSMB()
	if err != nil {
		return false
	}
	return rssMB > w.spec.Config.MemoryHardMB
}

func sampleRSSMB() (int, error) {
	proc, err := process.NewProcess(int32(processPID()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	rssMB := int64(info.RSS / (1024 * 1024))
	return int(helpers.ClampInt64(rssMB, 0, math.MaxInt32)), nil
}

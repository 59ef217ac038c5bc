package abyss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abyss-go/abyss/internal/dispatch"
	"github.com/abyss-go/abyss/internal/listener"
	"github.com/abyss-go/abyss/internal/logging"
	"github.com/abyss-go/abyss/internal/ratelimit"
	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/abyss-go/abyss/internal/transport"
	"github.com/abyss-go/abyss/internal/worker"
)

type serverState int

const (
	stateNotStarted serverState = iota
	stateRunning
	stateSuspended
	stateStopped
)

// Server is the root composition of every framework component: a
// RateLimiter (optional), a TelemetryHub, a Dispatcher, a WorkerSupervisor,
// and a ListenerPool, brought up and torn down in the order spec'd for
// shutdown (listeners suspend before workers drain).
//
// A Server is started at most once. Create a new Server to restart after
// Stop.
type Server struct {
	mu    sync.Mutex
	state serverState

	logger     *slog.Logger
	hub        *telemetry.Hub
	limiter    *ratelimit.Limiter
	supervisor *worker.Supervisor
	pool       *listener.Pool
	dispatcher *dispatch.Dispatcher

	shutdownTimeout time.Duration
	shutdownCancel  context.CancelFunc
}

// NewServer returns an unstarted Server.
func NewServer() *Server {
	return &Server{state: stateNotStarted}
}

// Start validates cfg, wires every component, binds the listener pool, and
// begins dispatching datagrams to cfg.Handler. It returns once listening has
// begun; Workers and future Listener restarts continue in the background
// until Stop.
func (s *Server) Start(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNotStarted {
		return fmt.Errorf("abyss: server already started")
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	handler, ok := cfg.Handler.(Handler)
	if !ok {
		return fmt.Errorf("%w: handler does not implement abyss.Handler", ErrInvalidConfig)
	}

	s.logger = logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	s.hub = telemetry.New(cfg.Telemetry.SampleRate, s.logger)

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(cfg.RateLimit.MaxPackets, cfg.RateLimit.WindowMs)
	}

	maxWorkers := 0
	unbounded := cfg.Server.MaxWorkers.Mode == WorkersUnbounded
	if cfg.Server.MaxWorkers.Mode == WorkersFixed {
		maxWorkers = cfg.Server.MaxWorkers.Value
	}
	s.supervisor = worker.NewSupervisor(maxWorkers, unbounded)

	shutdownCtx, cancel := context.WithCancel(context.Background())
	s.shutdownCancel = cancel
	s.shutdownTimeout = time.Duration(cfg.Server.ShutdownTimeoutMs) * time.Millisecond

	s.dispatcher = &dispatch.Dispatcher{
		Limiter:    s.limiter,
		Hub:        s.hub,
		Supervisor: s.supervisor,
		Handler:    handler,
		Logger:     s.logger,
		Config: dispatch.Config{
			MaxPacketSize:   cfg.Server.MaxPacketSize,
			RetryCount:      cfg.Server.RetryCount,
			RetryBaseWaitMs: cfg.Server.RetryBaseWaitMs,
			Passive:         !cfg.Server.Broadcast,
			Worker: worker.Config{
				ReadTimeoutMs:          cfg.Server.ReadTimeoutMs,
				ShutdownTimeoutMs:      cfg.Server.ShutdownTimeoutMs,
				SilentTerminateOnError: cfg.Server.SilentTerminate,
				MemoryCheckIntervalMs:  cfg.Memory.CheckIntervalMs,
				MemoryWarnMB:           cfg.Memory.WarnMB,
				MemoryHardMB:           cfg.Memory.HardMB,
			},
		},
		ShutdownCtx: shutdownCtx,
	}

	factory := unicastFactory
	if cfg.Server.Broadcast {
		factory = broadcastFactory
	}

	numListeners := cfg.Server.NumListeners
	if numListeners < 1 || cfg.Server.Broadcast {
		numListeners = 1
	}

	s.pool = listener.NewPool(factory, s.dispatcher, s.hub, cfg.Server.Broadcast, numListeners, s.logger)
	if err := s.pool.Bind(ctx, cfg.Server.Host, cfg.Server.Port, transport.Options{}, numListeners); err != nil {
		return fmt.Errorf("abyss: bind listener pool: %w", err)
	}
	s.pool.StartListening()

	s.state = stateRunning
	s.logger.Info("abyss server started",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("broadcast", cfg.Server.Broadcast),
		slog.Int("num_listeners", numListeners),
		slog.String("max_workers", cfg.Server.MaxWorkers.String()),
	)
	return nil
}

// Suspend stops every Listener's receive loop without draining in-flight
// Workers or destroying the Server. Resume rebinds and restarts listening.
func (s *Server) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return ErrNotRunning
	}
	s.pool.Suspend()
	s.state = stateSuspended
	s.logger.Info("abyss server suspended")
	return nil
}

// Resume rebinds and restarts every suspended Listener.
func (s *Server) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateNotStarted || s.state == stateStopped {
		return ErrNotRunning
	}
	if s.state != stateSuspended {
		return ErrAlreadyRunning
	}
	if err := s.pool.Resume(ctx); err != nil {
		return fmt.Errorf("abyss: resume: %w", err)
	}
	s.state = stateRunning
	s.logger.Info("abyss server resumed")
	return nil
}

// Stop runs the shutdown sequence: terminate the ListenerPool so no new
// datagram triggers a new Worker, signal every in-flight Worker via the
// shared shutdown context, then drain the WorkerSupervisor. The drain is
// bounded by shutdown_timeout_ms; Stop returns a non-nil error if Workers
// were still draining when the deadline passed.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning && s.state != stateSuspended {
		s.mu.Unlock()
		return ErrNotRunning
	}
	pool, supervisor, cancel, timeout, logger := s.pool, s.supervisor, s.shutdownCancel, s.shutdownTimeout, s.logger
	s.state = stateStopped
	s.mu.Unlock()

	pool.Terminate()
	cancel()

	drained := make(chan struct{})
	go func() {
		supervisor.Drain()
		close(drained)
	}()

	if timeout <= 0 {
		<-drained
		logger.Info("abyss server stopped")
		return nil
	}

	select {
	case <-drained:
		logger.Info("abyss server stopped")
		return nil
	case <-time.After(timeout):
		logger.Warn("abyss server stop: shutdown_timeout_ms exceeded, workers still draining")
		return errors.New("abyss: shutdown timed out waiting for workers to drain")
	}
}

// Stats returns a point-in-time snapshot of the TelemetryHub's always-on
// metrics.
func (s *Server) Stats() telemetry.Snapshot {
	s.mu.Lock()
	hub := s.hub
	s.mu.Unlock()
	if hub == nil {
		return telemetry.Snapshot{}
	}
	return hub.GetMetrics()
}

func unicastFactory() transport.Transport  { return transport.NewUnicast() }
func broadcastFactory() transport.Transport { return transport.NewBroadcast() }

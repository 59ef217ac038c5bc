package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abyss-go/abyss/internal/dispatch"
	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/abyss-go/abyss/internal/transport"
)

// Factory constructs a fresh, unbound Transport for one pool member. In
// non-broadcast mode the Pool calls this num_listeners times to create
// SO_REUSEPORT siblings; in broadcast mode it is called exactly once.
type Factory func() transport.Transport

// Pool supervises a set of Listeners with one-for-one restart: a Listener
// whose receive loop exits with an unexpected error is replaced, the rest
// are left running.
type Pool struct {
	factory    Factory
	dispatcher *dispatch.Dispatcher
	hub        *telemetry.Hub
	passive    bool
	host       string
	port       int
	opts       transport.Options
	logger     *slog.Logger

	mu        sync.Mutex
	listeners []*Listener
}

// NewPool creates a Pool. broadcast selects single-listener mode; otherwise
// numListeners siblings are created, sharing one port via SO_REUSEPORT.
func NewPool(factory Factory, d *dispatch.Dispatcher, hub *telemetry.Hub, broadcast bool, numListeners int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	count := numListeners
	if broadcast {
		count = 1
	}
	if count < 1 {
		count = 1
	}
	return &Pool{
		factory:    factory,
		dispatcher: d,
		hub:        hub,
		passive:    !broadcast,
		logger:     logger,
		listeners:  make([]*Listener, 0, count),
	}
}

// Bind binds every pool member to host:port.
func (p *Pool) Bind(ctx context.Context, host string, port int, opts transport.Options, count int) error {
	p.host, p.port, p.opts = host, port, opts

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < count; i++ {
		l := New(p.factory(), p.dispatcher, p.hub, p.passive, p.logger)
		if err := l.Bind(ctx, host, port, opts); err != nil {
			for _, existing := range p.listeners {
				existing.Terminate()
			}
			p.listeners = nil
			return fmt.Errorf("listener pool: bind member %d: %w", i, err)
		}
		p.listeners = append(p.listeners, l)
	}
	return nil
}

// StartListening broadcasts the start signal to every pool member and begins
// one-for-one supervision: a member whose receive loop exits on its own
// (transport error) rather than by Suspend/Terminate is rebound and
// restarted in place.
func (p *Pool) StartListening() {
	p.mu.Lock()
	members := make([]*Listener, len(p.listeners))
	copy(members, p.listeners)
	p.mu.Unlock()

	for i, l := range members {
		l.StartListening()
		go p.supervise(i, l)
	}
}

func (p *Pool) supervise(index int, l *Listener) {
	<-l.stopped
	if l.State() != Listening {
		// Suspend or Terminate already accounted for this exit.
		return
	}

	p.logger.Warn("listener exited unexpectedly, restarting", slog.Int("index", index))
	_ = l.transport.Close()

	replacement := New(p.factory(), p.dispatcher, p.hub, p.passive, p.logger)
	if err := replacement.Bind(context.Background(), p.host, p.port, p.opts); err != nil {
		p.logger.Error("listener restart failed", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	if index < len(p.listeners) {
		p.listeners[index] = replacement
	}
	p.mu.Unlock()

	replacement.StartListening()
	go p.supervise(index, replacement)
}

// Suspend stops every member's receive loop without destroying the pool.
func (p *Pool) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.listeners {
		l.Suspend()
	}
}

// Resume rebinds and restarts every suspended member.
func (p *Pool) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.listeners {
		if err := l.Resume(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Terminate permanently stops and closes every pool member.
func (p *Pool) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.listeners {
		l.Terminate()
	}
}

// Listeners returns the pool's current members, analogous to the spec's
// listener_pids accessor.
func (p *Pool) Listeners() []*Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Listener, len(p.listeners))
	copy(out, p.listeners)
	return out
}

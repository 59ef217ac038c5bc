// Package listener implements the Listener state machine and the Pool that
// supervises a set of them with one-for-one restart.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/abyss-go/abyss/internal/dispatch"
	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/abyss-go/abyss/internal/transport"
)

// State is the Listener's lifecycle stage.
type State int

const (
	Initializing State = iota
	Ready
	Listening
	Suspended
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Listening:
		return "listening"
	case Suspended:
		return "suspended"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// pollInterval bounds how long a single Recv call blocks, so the receive
// loop can observe suspend/stop signals promptly without busy-waiting.
const pollInterval = 250 * time.Millisecond

// Listener owns one bound socket and drives its receive loop. A Listener
// never processes packet contents and never blocks on worker supervision:
// saturated dispatch is handled entirely by the Dispatcher's scheduled retry.
type Listener struct {
	transport  transport.Transport
	dispatcher *dispatch.Dispatcher
	hub        *telemetry.Hub
	passive    bool
	host       string
	port       int
	opts       transport.Options
	logger     *slog.Logger

	mu    sync.Mutex
	state State

	listenerSpan *telemetry.Span
	affinity     map[string]chan transport.Datagram

	stop    chan struct{}
	stopped chan struct{}
}

// New creates a Listener in Initializing state over the given transport.
// passive selects the affinity-based continuation model used for unicast
// sockets; broadcast/multicast listeners are always one-shot per datagram.
func New(tr transport.Transport, d *dispatch.Dispatcher, hub *telemetry.Hub, passive bool, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		transport:  tr,
		dispatcher: d,
		hub:        hub,
		passive:    passive,
		logger:     logger,
		state:      Initializing,
		affinity:   make(map[string]chan transport.Datagram),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Bind binds the underlying socket and transitions Initializing -> Ready.
func (l *Listener) Bind(ctx context.Context, host string, port int, opts transport.Options) error {
	if err := l.transport.Listen(ctx, host, port, opts); err != nil {
		return err
	}
	l.host, l.port, l.opts = host, port, opts

	l.mu.Lock()
	l.state = Ready
	l.mu.Unlock()
	return nil
}

// State returns the Listener's current lifecycle stage.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SockName returns the bound local address, useful once an ephemeral port
// (port 0) has been assigned by the OS.
func (l *Listener) SockName() net.Addr { return l.transport.SockName() }

// StartListening transitions Ready -> Listening and starts the receive loop.
// It is idempotent if already listening.
func (l *Listener) StartListening() {
	l.mu.Lock()
	if l.state == Listening {
		l.mu.Unlock()
		return
	}
	l.listenerSpan = l.hub.StartSpan("listener", nil, nil)
	l.state = Listening
	l.mu.Unlock()

	l.hub.SpanEvent(l.listenerSpan, "waiting", nil, nil)
	go l.recvLoop()
}

// Suspend stops the receive loop and releases the socket, transitioning to
// Suspended. Resume rebinds.
func (l *Listener) Suspend() {
	l.mu.Lock()
	if l.state != Listening {
		l.mu.Unlock()
		return
	}
	l.state = Suspended
	l.mu.Unlock()

	close(l.stop)
	<-l.stopped
	_ = l.transport.Close()
}

// Resume rebinds the socket and restarts listening after a Suspend.
func (l *Listener) Resume(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Suspended {
		l.mu.Unlock()
		return errors.New("listener: resume called while not suspended")
	}
	l.mu.Unlock()

	if err := l.transport.Listen(ctx, l.host, l.port, l.opts); err != nil {
		return err
	}

	l.stop = make(chan struct{})
	l.stopped = make(chan struct{})
	l.StartListening()
	return nil
}

// Terminate stops the receive loop permanently and closes the socket.
func (l *Listener) Terminate() {
	l.mu.Lock()
	wasListening := l.state == Listening
	l.state = Terminated
	l.mu.Unlock()

	if wasListening {
		close(l.stop)
		<-l.stopped
	}
	_ = l.transport.Close()
}

func (l *Listener) recvLoop() {
	defer close(l.stopped)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		l.hub.SpanEvent(l.listenerSpan, "receiving", nil, nil)
		dg, err := l.transport.Recv(pollInterval)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			l.hub.SpanEvent(l.listenerSpan, "recv_error", map[string]any{"error": err.Error()}, nil)
			l.logger.Warn("listener recv error, terminating for supervisor restart", slog.String("error", err.Error()))
			return
		}

		sourceKey := dg.Source.String()
		if ch, ok := l.lookupAffinity(sourceKey); ok {
			select {
			case ch <- dg:
			default:
			}
			continue
		}

		l.dispatchNew(dg, sourceKey)
	}
}

func (l *Listener) dispatchNew(dg transport.Datagram, sourceKey string) {
	var socket dispatchSocket = l.transport
	release := func() {}

	if l.passive {
		ch := make(chan transport.Datagram, 1)
		l.registerAffinity(sourceKey, ch)
		socket = &affinitySocket{transport: l.transport, ch: ch}
		release = func() { l.unregisterAffinity(sourceKey) }
	}

	l.dispatcher.Dispatch(socket, dg, l.listenerSpan, sourceKey, release)
}

func (l *Listener) registerAffinity(key string, ch chan transport.Datagram) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.affinity[key] = ch
}

func (l *Listener) unregisterAffinity(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.affinity, key)
}

func (l *Listener) lookupAffinity(key string) (chan transport.Datagram, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.affinity[key]
	return ch, ok
}

// dispatchSocket is the subset of transport.Transport the Dispatcher/Worker
// need; transport.Transport itself satisfies it directly.
type dispatchSocket interface {
	Recv(timeout time.Duration) (transport.Datagram, error)
	Send(dest net.Addr, payload []byte) error
}

// affinitySocket gives a Continuing worker its own private view of
// subsequent datagrams from the same source, fed by the Listener's receive
// loop, while Send still goes straight to the shared transport. This is the
// Go-native stand-in for the original runtime's socket ownership transfer:
// there is no real FD handoff, only a source-keyed demultiplexer.
type affinitySocket struct {
	transport transport.Transport
	ch        chan transport.Datagram
}

func (a *affinitySocket) Recv(timeout time.Duration) (transport.Datagram, error) {
	if timeout <= 0 {
		return <-a.ch, nil
	}
	select {
	case dg := <-a.ch:
		return dg, nil
	case <-time.After(timeout):
		return transport.Datagram{}, transport.ErrTimeout
	}
}

func (a *affinitySocket) Send(dest net.Addr, payload []byte) error {
	return a.transport.Send(dest, payload)
}

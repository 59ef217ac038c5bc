package worker_test

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/abyss-go/abyss/internal/telemetry"
	"github.com/abyss-go/abyss/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	queue  []worker.Datagram
	sent   [][]byte
}

func (f *fakeSocket) Recv(timeout time.Duration) (worker.Datagram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return worker.Datagram{}, errors.New("no more datagrams")
	}
	dg := f.queue[0]
	f.queue = f.queue[1:]
	return dg, nil
}

func (f *fakeSocket) Send(dest net.Addr, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

type closeOnceHandler struct {
	worker.BaseHandler
	closed bool
}

func (h *closeOnceHandler) HandleData(dg worker.Datagram, state any) worker.Result {
	return worker.Result{Action: worker.ActionClose, State: state}
}

func (h *closeOnceHandler) HandleClose(state any) { h.closed = true }

func newSpec(h worker.Handler, sock worker.Socket) worker.Spec {
	hub := telemetry.New(1, nil)
	span := hub.StartSpan("connection", nil, nil)
	return worker.Spec{
		Handler:  h,
		Datagram: worker.Datagram{Payload: []byte("hi")},
		Socket:   sock,
		Passive:  true,
		Span:     span,
		Hub:      hub,
		Config:   worker.Config{ReadTimeoutMs: 100},
	}
}

func TestWorkerClosePathInvokesHandleClose(t *testing.T) {
	h := &closeOnceHandler{}
	spec := newSpec(h, &fakeSocket{})

	released := false
	spec.ReleaseSocket = func() { released = true }

	worker.Run(spec)

	assert.True(t, h.closed)
	assert.True(t, released)
}

type errorHandler struct {
	worker.BaseHandler
	sawErr error
}

func (h *errorHandler) HandleData(dg worker.Datagram, state any) worker.Result {
	return worker.Result{Action: worker.ActionError, Reason: errors.New("boom")}
}

func (h *errorHandler) HandleError(reason error, state any) { h.sawErr = reason }

func TestWorkerErrorPathInvokesHandleError(t *testing.T) {
	h := &errorHandler{}
	spec := newSpec(h, &fakeSocket{})

	worker.Run(spec)

	require.Error(t, h.sawErr)
	assert.Equal(t, "boom", h.sawErr.Error())
}

type continueThenCloseHandler struct {
	worker.BaseHandler
	calls int
}

func (h *continueThenCloseHandler) HandleData(dg worker.Datagram, state any) worker.Result {
	h.calls++
	if h.calls == 1 {
		return worker.Result{Action: worker.ActionContinue, State: state}
	}
	return worker.Result{Action: worker.ActionClose}
}

func TestWorkerContinuePullsNextDatagramFromSocket(t *testing.T) {
	h := &continueThenCloseHandler{}
	sock := &fakeSocket{queue: []worker.Datagram{{Payload: []byte("second")}}}
	spec := newSpec(h, sock)

	worker.Run(spec)

	assert.Equal(t, 2, h.calls)
}

func TestSupervisorEnforcesMaxChildren(t *testing.T) {
	sup := worker.NewSupervisor(1, false)
	release := make(chan struct{})

	blocking := worker.Spec{
		Handler: blockingHandler{release: release},
		Socket:  &fakeSocket{},
		Hub:     telemetry.New(1, nil),
		Span:    telemetry.New(1, nil).StartSpan("connection", nil, nil),
		Config:  worker.Config{ReadTimeoutMs: 1000},
	}
	require.NoError(t, sup.StartWorker(blocking))

	secondSpec := newSpec(&closeOnceHandler{}, &fakeSocket{})
	err := sup.StartWorker(secondSpec)
	assert.ErrorIs(t, err, worker.ErrMaxChildren)

	close(release)
	sup.Drain()
}

type blockingHandler struct {
	worker.BaseHandler
	release chan struct{}
}

func (h blockingHandler) HandleData(dg worker.Datagram, state any) worker.Result {
	<-h.release
	return worker.Result{Action: worker.ActionClose}
}

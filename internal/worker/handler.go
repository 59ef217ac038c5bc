// Package worker implements the per-datagram Worker and its supervising cap.
package worker

import (
	"net"
	"time"

	"github.com/abyss-go/abyss/internal/helpers"
	"github.com/abyss-go/abyss/internal/transport"
)

// Datagram is the payload and source address handed off to a Worker.
type Datagram = transport.Datagram

// InitialState is the state value passed to the first HandleData call for a
// datagram (spec'd as {span, config, listener_ref, socket_ref}; span and
// config are threaded separately here since Go callers reach them through
// the Server, not through handler state). Socket is a send-only reference:
// its Recv is reserved for the Listener (or, in Continuing mode, for this
// Worker's own receive loop) by convention, never callable from a Handler.
// A Handler that needs the socket across multiple datagrams must carry it
// forward in whatever state type it returns from HandleData.
type InitialState struct {
	Socket Socket
	Source net.Addr
}

// Action is the disposition a Handler requests after processing a datagram.
type Action int

const (
	// ActionContinue keeps the Worker alive awaiting the next datagram.
	ActionContinue Action = iota
	// ActionClose terminates the Worker cleanly; HandleClose is invoked.
	ActionClose
	// ActionError terminates the Worker with a reason; HandleError is invoked.
	ActionError
)

// Result is what HandleData returns to tell the Worker what to do next.
type Result struct {
	Action Action
	State  any
	Reason error

	// TimeoutMs, when non-zero, overrides the adaptive timeout for the next
	// wait. If Persistent is set, it replaces the Worker's base timeout
	// (read_timeout_ms) rather than applying once.
	TimeoutMs  int
	Persistent bool
}

// Handler is the contract applications implement to process datagrams. Only
// HandleData is meaningful to override; the rest have no-op defaults via
// BaseHandler and are invoked for their respective termination paths.
type Handler interface {
	HandleData(dg Datagram, state any) Result
	HandleClose(state any)
	HandleError(reason error, state any)
	HandleShutdown(state any)
	HandleTimeout(state any)
	// HandleMemoryWarning is invoked when the Worker's memory guard measures
	// usage above memory_warn_mb, before the guard forces a GC pass and
	// re-measures.
	HandleMemoryWarning(rssMB int, state any)
}

// BaseHandler gives every optional Handler method a no-op implementation.
// Embed it and override HandleData (required) plus whichever lifecycle
// hooks are relevant.
type BaseHandler struct{}

// HandleData is a safety-net default: applications are expected to override
// this. Left unoverridden, it closes the connection immediately.
func (BaseHandler) HandleData(Datagram, any) Result { return Result{Action: ActionClose} }

func (BaseHandler) HandleClose(any)             {}
func (BaseHandler) HandleError(error, any)      {}
func (BaseHandler) HandleShutdown(any)          {}
func (BaseHandler) HandleTimeout(any)           {}
func (BaseHandler) HandleMemoryWarning(int, any) {}

// adaptiveTimeout implements the clamp(3*avg, [base/2, 2*base]) formula from
// the bounded processing-time history, all arithmetic kept in milliseconds.
func adaptiveTimeout(baseMs int, history []time.Duration) int {
	if len(history) == 0 {
		return baseMs
	}
	var sum time.Duration
	for _, d := range history {
		sum += d
	}
	avgMs := float64(sum/time.Duration(len(history))) / float64(time.Millisecond)
	candidate := int(avgMs*3 + 0.5)

	return helpers.ClampInt(candidate, baseMs/2, baseMs*2)
}

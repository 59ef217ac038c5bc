package abyss

import (
	"github.com/abyss-go/abyss/internal/worker"
)

// Datagram is the payload and source address handed to a Handler.
type Datagram = worker.Datagram

// Action is the disposition a Handler requests after processing a datagram.
type Action = worker.Action

const (
	ActionContinue = worker.ActionContinue
	ActionClose    = worker.ActionClose
	ActionError    = worker.ActionError
)

// Result is what HandleData returns to tell the Worker what to do next.
type Result = worker.Result

// Handler is the contract applications implement to process datagrams over a
// Server. Only HandleData is meaningful to override; embed BaseHandler to get
// no-op defaults for the rest.
type Handler = worker.Handler

// BaseHandler gives every optional Handler method a no-op implementation.
type BaseHandler = worker.BaseHandler

// InitialState is the state value passed to the first HandleData call for a
// datagram; it carries the send-only socket reference a Handler needs to
// reply. See worker.InitialState for the full contract.
type InitialState = worker.InitialState

// Socket is the send-only (plus Continuing-mode receive) handle a Handler
// gets through InitialState.
type Socket = worker.Socket

package abyss

import (
	"errors"

	"github.com/abyss-go/abyss/internal/config"
	"github.com/abyss-go/abyss/internal/transport"
	"github.com/abyss-go/abyss/internal/worker"
)

// ErrMaxWorkers is returned (wrapped) when the WorkerSupervisor's cap is
// reached and the Dispatcher has exhausted its retry budget for a datagram.
var ErrMaxWorkers = worker.ErrMaxChildren

// ErrClosed is returned by a transport's Recv once it has been closed.
var ErrClosed = transport.ErrClosed

// ErrInvalidConfig is returned by Start when config validation fails.
var ErrInvalidConfig = config.ErrInvalidConfig

// ErrNotRunning is returned by Stop, Suspend, or Resume when called against a
// Server that was never started or has already stopped.
var ErrNotRunning = errors.New("abyss: server is not running")

// ErrAlreadyRunning is returned by Resume when the server is running rather
// than suspended.
var ErrAlreadyRunning = errors.New("abyss: server is already running")

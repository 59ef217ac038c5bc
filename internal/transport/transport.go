// Package transport implements the socket-owning layer datagram services run
// over: a Unicast variant for passive per-listener sockets and a Broadcast
// variant for shared multicast/broadcast groups, both built on SO_REUSEPORT
// UDP sockets the way the teacher's UDP server does.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Socket buffer sizes for high throughput, matching the teacher's defaults.
const (
	socketRecvBufferSize = 4 * 1024 * 1024
	socketSendBufferSize = 4 * 1024 * 1024
)

// Datagram is one received packet and its source address.
type Datagram struct {
	Payload []byte
	Source  net.Addr
}

// ErrClosed is returned by Recv once the transport has been closed. Send on a
// closed transport returns the underlying net error unchanged.
var ErrClosed = errors.New("transport: closed")

// ErrTimeout is returned by Recv when its deadline elapses.
var ErrTimeout = errors.New("transport: recv timeout")

// Stat is a lightweight socket-level statistics snapshot.
type Stat struct {
	BytesReceived uint64
	BytesSent     uint64
	PacketsRecv   uint64
	PacketsSent   uint64
}

// Transport is the capability set a Listener drives: bind, receive, send,
// and inspect one bound socket. Unicast and Broadcast are its two variants.
type Transport interface {
	// Listen binds the socket with the hardcoded options (reuse-addr,
	// reuse-port, plus the variant's active/broadcast flags) merged with
	// user-supplied Options.
	Listen(ctx context.Context, host string, port int, opts Options) error
	// Recv blocks for up to timeout (0 meaning no timeout) and returns one
	// datagram.
	Recv(timeout time.Duration) (Datagram, error)
	// Send fires a payload at dest, not waiting for delivery confirmation.
	Send(dest net.Addr, payload []byte) error
	GetOpts() Options
	SetOpts(Options) error
	// ControllingProcess is a no-op on this runtime: Go has no socket
	// ownership transfer primitive, so callers rely on convention (only the
	// owning Listener calls Recv) instead.
	ControllingProcess() int
	SockName() net.Addr
	PeerName() net.Addr
	Close() error
	GetStat() Stat
}

// Options carries user-overridable socket tuning; zero values take the
// transport's hardcoded defaults.
type Options struct {
	RecvBufferSize int
	SendBufferSize int
}

func (o Options) recvBuf() int {
	if o.RecvBufferSize > 0 {
		return o.RecvBufferSize
	}
	return socketRecvBufferSize
}

func (o Options) sendBuf() int {
	if o.SendBufferSize > 0 {
		return o.SendBufferSize
	}
	return socketSendBufferSize
}

// listenReusePort binds a UDP socket with SO_REUSEPORT and SO_REUSEADDR set,
// so a ListenerPool can open num_listeners equal sockets for kernel-level
// load balancing, exactly as the teacher's listenReusePort does.
func listenReusePort(ctx context.Context, host string, port int) (*net.UDPConn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					ctrlErr = err
					return
				}
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func classifyRecvErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

func pidOrZero() int {
	return os.Getpid()
}

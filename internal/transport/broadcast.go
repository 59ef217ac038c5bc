package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Broadcast is the active-receive Transport variant used for broadcast and
// multicast groups. Unlike Unicast, exactly one Broadcast socket exists per
// ListenerPool regardless of num_listeners, since the OS can't fan out one
// multicast socket across equal receivers without duplicating traffic.
type Broadcast struct {
	conn *net.UDPConn
	opts Options

	bytesRecv atomic.Uint64
	bytesSent atomic.Uint64
	pktsRecv  atomic.Uint64
	pktsSent  atomic.Uint64
}

// NewBroadcast returns an unbound Broadcast transport; call Listen to bind it.
func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

func (b *Broadcast) Listen(ctx context.Context, host string, port int, opts Options) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					ctrlErr = err
					return
				}
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return err
	}
	conn := pc.(*net.UDPConn)

	_ = conn.SetReadBuffer(opts.recvBuf())
	_ = conn.SetWriteBuffer(opts.sendBuf())

	b.conn = conn
	b.opts = opts
	return nil
}

// Recv is structurally identical to Unicast.Recv: the "active" distinction
// in spec terms is about how the Listener treats each return (an independent
// notification rather than a loop iteration owned by one receiver), not how
// the socket read itself works.
func (b *Broadcast) Recv(timeout time.Duration) (Datagram, error) {
	if timeout > 0 {
		_ = b.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = b.conn.SetReadDeadline(time.Time{})
	}

	bufPtr := recvBufferPool.Get()
	defer recvBufferPool.Put(bufPtr)

	n, addr, err := b.conn.ReadFromUDP(*bufPtr)
	if err != nil {
		return Datagram{}, classifyRecvErr(err)
	}
	b.bytesRecv.Add(uint64(n))
	b.pktsRecv.Add(1)
	payload := make([]byte, n)
	copy(payload, (*bufPtr)[:n])
	return Datagram{Payload: payload, Source: addr}, nil
}

func (b *Broadcast) Send(dest net.Addr, payload []byte) error {
	udpAddr, ok := dest.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", dest.String())
		if err != nil {
			return err
		}
		udpAddr = resolved
	}
	n, err := b.conn.WriteToUDP(payload, udpAddr)
	if err != nil {
		return err
	}
	b.bytesSent.Add(uint64(n))
	b.pktsSent.Add(1)
	return nil
}

func (b *Broadcast) GetOpts() Options { return b.opts }

func (b *Broadcast) SetOpts(opts Options) error {
	b.opts = opts
	if err := b.conn.SetReadBuffer(opts.recvBuf()); err != nil {
		return err
	}
	return b.conn.SetWriteBuffer(opts.sendBuf())
}

func (b *Broadcast) ControllingProcess() int { return pidOrZero() }

func (b *Broadcast) SockName() net.Addr { return b.conn.LocalAddr() }

func (b *Broadcast) PeerName() net.Addr { return nil }

func (b *Broadcast) Close() error { return b.conn.Close() }

func (b *Broadcast) GetStat() Stat {
	return Stat{
		BytesReceived: b.bytesRecv.Load(),
		BytesSent:     b.bytesSent.Load(),
		PacketsRecv:   b.pktsRecv.Load(),
		PacketsSent:   b.pktsSent.Load(),
	}
}

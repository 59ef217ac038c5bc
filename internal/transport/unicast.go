package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/abyss-go/abyss/internal/pool"
)

// recvBufferPool reduces allocations on the receive path: ReadFromUDP needs a
// scratch buffer, but the datagram it fills outlives the call (it is handed
// off to a Dispatcher and possibly a Worker), so the pooled buffer is
// returned the instant its contents are copied into the Datagram's own slice.
var recvBufferPool = pool.New(func() *[]byte {
	buf := make([]byte, 65535)
	return &buf
})

// Unicast is the passive-receive Transport variant: one bound UDP socket per
// Listener instance, load-balanced across siblings at the kernel via
// SO_REUSEPORT.
type Unicast struct {
	conn *net.UDPConn
	opts Options

	bytesRecv atomic.Uint64
	bytesSent atomic.Uint64
	pktsRecv  atomic.Uint64
	pktsSent  atomic.Uint64
}

// NewUnicast returns an unbound Unicast transport; call Listen to bind it.
func NewUnicast() *Unicast {
	return &Unicast{}
}

func (u *Unicast) Listen(ctx context.Context, host string, port int, opts Options) error {
	conn, err := listenReusePort(ctx, host, port)
	if err != nil {
		return err
	}
	u.conn = conn
	u.opts = opts
	_ = conn.SetReadBuffer(opts.recvBuf())
	_ = conn.SetWriteBuffer(opts.sendBuf())
	return nil
}

func (u *Unicast) Recv(timeout time.Duration) (Datagram, error) {
	if timeout > 0 {
		_ = u.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = u.conn.SetReadDeadline(time.Time{})
	}

	bufPtr := recvBufferPool.Get()
	defer recvBufferPool.Put(bufPtr)

	n, addr, err := u.conn.ReadFromUDP(*bufPtr)
	if err != nil {
		return Datagram{}, classifyRecvErr(err)
	}
	u.bytesRecv.Add(uint64(n))
	u.pktsRecv.Add(1)
	payload := make([]byte, n)
	copy(payload, (*bufPtr)[:n])
	return Datagram{Payload: payload, Source: addr}, nil
}

func (u *Unicast) Send(dest net.Addr, payload []byte) error {
	udpAddr, ok := dest.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", dest.String())
		if err != nil {
			return err
		}
		udpAddr = resolved
	}
	n, err := u.conn.WriteToUDP(payload, udpAddr)
	if err != nil {
		return err
	}
	u.bytesSent.Add(uint64(n))
	u.pktsSent.Add(1)
	return nil
}

func (u *Unicast) GetOpts() Options { return u.opts }

func (u *Unicast) SetOpts(opts Options) error {
	u.opts = opts
	if err := u.conn.SetReadBuffer(opts.recvBuf()); err != nil {
		return err
	}
	return u.conn.SetWriteBuffer(opts.sendBuf())
}

func (u *Unicast) ControllingProcess() int { return pidOrZero() }

func (u *Unicast) SockName() net.Addr { return u.conn.LocalAddr() }

func (u *Unicast) PeerName() net.Addr { return nil }

func (u *Unicast) Close() error { return u.conn.Close() }

func (u *Unicast) GetStat() Stat {
	return Stat{
		BytesReceived: u.bytesRecv.Load(),
		BytesSent:     u.bytesSent.Load(),
		PacketsRecv:   u.pktsRecv.Load(),
		PacketsSent:   u.pktsSent.Load(),
	}
}

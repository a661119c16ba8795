package sender

import (
	"net"
	"time"

	"github.com/northlake-systems/udpltcp/netio"
)

// netioConn adapts *netio.Waiter to the Conn interface Sender depends on.
// The adapter lives here rather than in netio so netio stays free of any
// dependency on sender's WaitResult shape.
type netioConn struct {
	w *netio.Waiter
}

// NewNetioConn wraps a real UDP waiter for use by Sender.
func NewNetioConn(w *netio.Waiter) Conn {
	return netioConn{w: w}
}

func (n netioConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	return n.w.WriteToUDP(b, addr)
}

func (n netioConn) WaitOrRecv(buf []byte, budget time.Duration) (WaitResult, error) {
	res, err := n.w.WaitOrRecv(buf, budget)
	if err != nil {
		return WaitResult{}, err
	}
	return WaitResult{Payload: res.Datagram.Payload, Elapsed: res.Elapsed, TimedOut: res.TimedOut}, nil
}

func (n netioConn) Close() error {
	return n.w.Close()
}

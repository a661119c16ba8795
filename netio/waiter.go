// Package netio implements the deadline-bounded I/O waiter spec.md §4.6
// describes: read one datagram or give up after a caller-supplied budget,
// reporting elapsed time either way. It wraps *net.UDPConn with
// SetReadDeadline, the pattern shown in
// isgasho-go-abp/sender/sender.go (conn.SetReadDeadline +
// conn.ReadFromUDP, checking err.(net.Error).Timeout()) rather than a raw
// golang.org/x/sys/unix socket with SO_RCVTIMEO: that option only bounds
// reads on a genuinely blocking file descriptor (as in
// malbeclabs-doublezero/tools/uping's unix.Socket-based sender), and Go's
// net package descriptors are always non-blocking and driven by the
// runtime's netpoller, so SO_RCVTIMEO would silently do nothing there.
package netio

import (
	"errors"
	"net"
	"time"
)

// Datagram is one received UDP packet and the address it arrived from.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Waiter bounds reads from a *net.UDPConn by a caller-supplied budget and
// reports how long each wait took, so callers can track the remaining time
// across repeated waits within one budget (spec.md §4.6). It embeds *net.UDPConn so callers get WriteToUDP, Close,
// and LocalAddr for free — one socket serves both directions, matching
// spec.md §3's "each endpoint exclusively owns its socket" ownership rule.
type Waiter struct {
	*net.UDPConn
}

// New wraps conn for deadline-bounded reads and direct writes.
func New(conn *net.UDPConn) *Waiter {
	return &Waiter{UDPConn: conn}
}

// Result reports the outcome of one WaitOrRecv call.
type Result struct {
	Datagram Datagram
	Elapsed  time.Duration
	TimedOut bool
}

// WaitOrRecv blocks until a datagram arrives, budget elapses, or the
// underlying connection is closed, whichever comes first. buf is the
// caller-owned read buffer; Datagram.Payload aliases it and is only valid
// until the next call.
//
// err is non-nil only for unrecoverable I/O failures (spec.md §7's second
// error taxon); a timeout is reported via Result.TimedOut with err == nil,
// since it is an expected protocol event, not a failure.
func (w *Waiter) WaitOrRecv(buf []byte, budget time.Duration) (Result, error) {
	if budget <= 0 {
		budget = time.Millisecond
	}
	deadline := time.Now().Add(budget)
	if err := w.UDPConn.SetReadDeadline(deadline); err != nil {
		return Result{}, err
	}
	start := time.Now()
	n, from, err := w.UDPConn.ReadFromUDP(buf)
	elapsed := time.Since(start)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{Elapsed: elapsed, TimedOut: true}, nil
		}
		return Result{Elapsed: elapsed}, err
	}
	return Result{
		Datagram: Datagram{Payload: buf[:n], From: from},
		Elapsed:  elapsed,
	}, nil
}

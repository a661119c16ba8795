// Package receiver drives the receiver side of the connection: passive
// open, in-order segment acceptance with cumulative ACKs, and four-way
// teardown with duplicate-FIN tolerance, per spec.md §4.5. It mirrors
// sender's shape (Conn interface, WaitResult, a Run loop over explicit
// states) deliberately — the two state machines share a family resemblance
// in the source protocol, and soypat-lneto/tcp/control.go likewise keeps
// its listener- and connection-side logic in matching styles even though
// they are separate files.
package receiver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/northlake-systems/udpltcp/internal"
	"github.com/northlake-systems/udpltcp/metrics"
	"github.com/northlake-systems/udpltcp/rto"
	"github.com/northlake-systems/udpltcp/segment"
)

// State is one of the receiver's six connection states (spec.md §3).
type State uint8

const (
	Listen State = iota
	SynRcvd
	Established
	CloseWait
	LastAck
	Closed
)

func (s State) String() string {
	switch s {
	case Listen:
		return "LISTEN"
	case SynRcvd:
		return "SYN_RCVD"
	case Established:
		return "ESTABLISHED"
	case CloseWait:
		return "CLOSE_WAIT"
	case LastAck:
		return "LAST_ACK"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// listenPollInterval bounds each individual wait in the otherwise-unbounded
// LISTEN and data-receive loops (spec.md §5), so ctx cancellation is
// noticed promptly instead of blocking forever on a real socket read.
const listenPollInterval = 5 * time.Second

// Conn is the socket surface Receiver needs. See sender.Conn for the
// rationale: an interface, not *netio.Waiter directly, so tests can
// substitute a deterministic fake.
type Conn interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	WaitOrRecv(buf []byte, budget time.Duration) (WaitResult, error)
	Close() error
}

// WaitResult mirrors netio.Result, trimmed to what Receiver needs. Elapsed is
// carried even though Receiver's own loops currently re-issue the full
// timeout on every iteration, so it stays available if a future caller needs
// partial-wait budgeting the way sender.runEstabSending does.
type WaitResult struct {
	Payload  []byte
	Elapsed  time.Duration
	TimedOut bool
}

// Receiver holds one transfer's full state. ackAddr is fixed by the CLI
// contract (spec.md §6: <peerAckAddr> <peerAckPort>), not derived from the
// source address of incoming datagrams — the sender's data socket and its
// ACK-listening socket may differ.
type Receiver struct {
	conn      Conn
	ackAddr   *net.UDPAddr
	localPort uint16
	ackPort   uint16
	file      io.Writer

	state   State
	est     *rto.Estimator
	metrics *metrics.Transfer
	logger  *slog.Logger

	nextExpectedPeerSeq segment.Value

	readBuf [segment.MaxDatagram]byte
	sendBuf [segment.HeaderLen]byte
}

// New constructs a Receiver ready to Run.
func New(conn Conn, ackAddr *net.UDPAddr, localPort, ackPort uint16, file io.Writer, m *metrics.Transfer, logger *slog.Logger) *Receiver {
	return &Receiver{
		conn:      conn,
		ackAddr:   ackAddr,
		localPort: localPort,
		ackPort:   ackPort,
		file:      file,
		est:       rto.New(),
		metrics:   m,
		logger:    logger,
	}
}

func (r *Receiver) timeoutDuration() time.Duration {
	return time.Duration(r.est.Timeout()) * time.Microsecond
}

func (r *Receiver) send(flags segment.Flags, seq, ack segment.Value) error {
	frm := segment.Build(r.sendBuf[:], r.localPort, r.ackPort, seq, ack, flags, nil)
	if r.metrics != nil {
		r.metrics.SegmentSent()
	}
	internal.LogAttrs(r.logger, internal.LevelTrace, "send segment",
		slog.String("state", r.state.String()), slog.String("flags", flags.String()),
		slog.Uint64("seq", uint64(seq)), slog.Uint64("ack", uint64(ack)))
	_, err := r.conn.WriteToUDP(frm.RawData(), r.ackAddr)
	return err
}

// recvValid waits up to budget for one datagram and, if it arrives, parses
// and checksum-validates it. A corrupt datagram is silently discarded,
// never an error (spec.md §7).
func (r *Receiver) recvValid(budget time.Duration) (segment.Frame, bool, bool, error) {
	res, err := r.conn.WaitOrRecv(r.readBuf[:], budget)
	if err != nil {
		return segment.Frame{}, false, false, err
	}
	if res.TimedOut {
		return segment.Frame{}, false, true, nil
	}
	frm, ok := segment.Parse(res.Payload)
	if !ok || !frm.Valid() {
		internal.LogAttrs(r.logger, internal.LevelTrace, "discard invalid segment")
		return segment.Frame{}, false, false, nil
	}
	if r.metrics != nil {
		r.metrics.SegmentReceived()
	}
	return frm, true, false, nil
}

// Run drives the receiver through every state to Closed, or returns the
// first unrecoverable I/O error encountered.
func (r *Receiver) Run(ctx context.Context) error {
	steps := []func(context.Context) error{
		r.runListen,
		r.runSynAckWait,
		r.runDataLoop,
		r.runLastAck,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	r.state = Closed
	if r.metrics != nil {
		r.metrics.LogSummary(r.logger)
	}
	return nil
}

// runListen implements spec.md §4.5 LISTEN/SYN_RCVD: an unbounded wait
// (polled in listenPollInterval slices so ctx cancellation is noticed) for
// the first valid SYN.
func (r *Receiver) runListen(ctx context.Context) error {
	r.state = Listen
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frm, ok, timedOut, err := r.recvValid(listenPollInterval)
		if err != nil {
			return err
		}
		if timedOut || !ok {
			continue
		}
		if frm.Flags().HasAny(segment.FlagSYN) {
			r.nextExpectedPeerSeq = frm.Seq().Add(1)
			r.state = SynRcvd
			return nil
		}
	}
}

// runSynAckWait implements spec.md §4.5 ESTABLISHED's handshake completion:
// send SYN|ACK once, then wait for the post-SYN ACK, backing off and
// resending on each timeout.
func (r *Receiver) runSynAckWait(ctx context.Context) error {
	if err := r.send(segment.FlagSYN|segment.FlagACK, 0, r.nextExpectedPeerSeq); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frm, ok, timedOut, err := r.recvValid(r.timeoutDuration())
		if err != nil {
			return err
		}
		if timedOut {
			r.est.Backoff()
			if r.metrics != nil {
				r.metrics.Timeout()
			}
			if err := r.send(segment.FlagSYN|segment.FlagACK, 0, r.nextExpectedPeerSeq); err != nil {
				return err
			}
			continue
		}
		if !ok {
			continue
		}
		if frm.Ack() == 1 && frm.Flags().HasAny(segment.FlagACK) {
			r.nextExpectedPeerSeq = r.nextExpectedPeerSeq.Add(1)
			r.state = Established
			return nil
		}
	}
}

// runDataLoop implements spec.md §4.5's data-receive loop: a blocking
// receive with no retransmission timer of its own (the sender retransmits
// on its side). Returns when the peer's FIN is accepted, transitioning the
// caller into CLOSE_WAIT.
func (r *Receiver) runDataLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frm, ok, timedOut, err := r.recvValid(listenPollInterval)
		if err != nil {
			return err
		}
		if timedOut || !ok {
			continue
		}
		if frm.Seq() == r.nextExpectedPeerSeq {
			if frm.Flags().HasAny(segment.FlagFIN) {
				r.state = CloseWait
				return nil
			}
			n := frm.PayloadLen()
			if n > 0 {
				if _, err := r.file.Write(frm.Payload()); err != nil {
					return err
				}
				if r.metrics != nil {
					r.metrics.BytesAcked(n)
				}
			}
			r.nextExpectedPeerSeq = r.nextExpectedPeerSeq.Add(uint32(n))
			if err := r.send(segment.FlagACK, 1, r.nextExpectedPeerSeq); err != nil {
				return err
			}
		} else {
			// Out-of-order (including stale retransmits): re-ACK the
			// current expectation without buffering, per spec.md §4.5.
			if err := r.send(segment.FlagACK, 1, r.nextExpectedPeerSeq); err != nil {
				return err
			}
		}
	}
}

// runLastAck implements spec.md §4.5 LAST_ACK: ack the peer's FIN once,
// send our own FIN, then loop awaiting its ACK — tolerating a retransmitted
// peer FIN by re-sending the peer-FIN ack without re-sending our own FIN.
func (r *Receiver) runLastAck(ctx context.Context) error {
	r.state = LastAck
	ackField := r.nextExpectedPeerSeq.Add(1)
	if err := r.send(segment.FlagACK, 1, ackField); err != nil {
		return err
	}
	if err := r.send(segment.FlagFIN, 1, ackField); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frm, ok, timedOut, err := r.recvValid(r.timeoutDuration())
		if err != nil {
			return err
		}
		if timedOut {
			r.est.Backoff()
			if r.metrics != nil {
				r.metrics.Timeout()
			}
			if err := r.send(segment.FlagFIN, 1, ackField); err != nil {
				return err
			}
			continue
		}
		if !ok {
			continue
		}
		if frm.Ack() == 2 && frm.Flags().HasAny(segment.FlagACK) {
			return nil
		}
		if frm.Seq() == r.nextExpectedPeerSeq && frm.Flags().HasAny(segment.FlagFIN) {
			if err := r.send(segment.FlagACK, 1, ackField); err != nil {
				return err
			}
		}
	}
}

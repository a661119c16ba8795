// Package sender drives the sender side of the connection: three-way
// handshake, pipelined data transmission with cumulative-ACK window
// advancement and timer-driven bulk retransmission, and four-way teardown,
// per spec.md §4.4. The state-machine shape (an explicit State enum walked
// by a Run loop, one case per state) follows the control-block style of
// soypat-lneto/tcp/control.go, narrowed to exactly the states and
// transitions this protocol names — no options, no congestion control, no
// syncookies, all of which that package's ControlBlock carries but this
// spec's Non-goals exclude.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/northlake-systems/udpltcp/internal"
	"github.com/northlake-systems/udpltcp/metrics"
	"github.com/northlake-systems/udpltcp/rto"
	"github.com/northlake-systems/udpltcp/segment"
	"github.com/northlake-systems/udpltcp/window"
)

// State is one of the sender's six connection states (spec.md §3).
type State uint8

const (
	Init State = iota
	SynSent
	EstabSending
	FinSent
	TimeWait
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case SynSent:
		return "SYN_SENT"
	case EstabSending:
		return "ESTAB_SENDING"
	case FinSent:
		return "FIN_SENT"
	case TimeWait:
		return "TIME_WAIT"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// quietTimer is the fixed TIME_WAIT duration (spec.md §4.4).
const quietTimer = 3 * time.Second

// Conn is the socket surface Sender needs: deadline-bounded receive plus
// direct UDP writes, satisfied by *netio.Waiter. Declared here (rather than
// depending on netio's concrete type) so tests can substitute a
// deterministic in-process shim that drops/corrupts/reorders/duplicates
// datagrams, per spec.md §8's boundary-case scenarios.
type Conn interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	WaitOrRecv(buf []byte, budget time.Duration) (WaitResult, error)
	Close() error
}

// WaitResult mirrors netio.Result; Sender depends on this shape rather than
// the netio package directly so a test fake need not import netio. Elapsed
// is load-bearing: runEstabSending subtracts it from timeRemaining on every
// ignore path so a trickle of stale/duplicate/corrupt datagrams cannot
// postpone the retransmission timer indefinitely (spec.md §4.6).
type WaitResult struct {
	Payload  []byte
	Elapsed  time.Duration
	TimedOut bool
}

// Sender holds one transfer's full state.
type Sender struct {
	conn      Conn
	peerAddr  *net.UDPAddr
	localPort uint16
	peerPort  uint16
	file      io.Reader

	state   State
	win     *window.Window
	est     *rto.Estimator
	metrics *metrics.Transfer
	logger  *slog.Logger

	nextSeq             segment.Value
	nextExpectedPeerSeq segment.Value

	timedSeq  segment.Value
	isTimed   bool
	timeStart time.Time

	readBuf [segment.MaxDatagram]byte
	sendBuf [segment.MaxDatagram]byte

	// wirePool holds one reusable wire buffer per window slot, indexed by
	// segCount modulo capacity: since the window can never hold more than
	// capacity unacked segments, by the time a slot is reused its previous
	// occupant is guaranteed already acknowledged and dropped.
	wirePool [][]byte
	segCount int

	// OnBytesSent, if non-nil, is called with the number of payload bytes
	// handed to the window on each new data segment — the hook a CLI
	// progress bar (schollz/progressbar/v3) attaches to, kept out of this
	// package so Sender has no direct UI dependency.
	OnBytesSent func(n int)
}

// New constructs a Sender ready to Run. windowCapacity is the ring window's
// record capacity, floor(windowBytes/576) as computed by validate.WindowCapacity.
func New(conn Conn, peerAddr *net.UDPAddr, localPort, peerPort uint16, file io.Reader, windowCapacity int, m *metrics.Transfer, logger *slog.Logger) *Sender {
	s := &Sender{
		conn:      conn,
		peerAddr:  peerAddr,
		localPort: localPort,
		peerPort:  peerPort,
		file:      file,
		win:       window.New(windowCapacity),
		est:       rto.New(),
		metrics:   m,
		logger:    logger,
		wirePool:  make([][]byte, windowCapacity),
	}
	if ip4 := peerAddr.IP.To4(); ip4 != nil && internal.LogEnabled(logger, slog.LevelInfo) {
		var addr [4]byte
		copy(addr[:], ip4)
		internal.LogAttrs(logger, slog.LevelInfo, "sender starting",
			internal.SlogAddr4("peer_addr", &addr), slog.Int("peer_port", int(peerPort)))
	}
	return s
}

func (s *Sender) timeoutDuration() time.Duration {
	return time.Duration(s.est.Timeout()) * time.Microsecond
}

func (s *Sender) send(flags segment.Flags, seq, ack segment.Value, payload []byte) error {
	frm := segment.Build(s.sendBuf[:], s.localPort, s.peerPort, seq, ack, flags, payload)
	if s.metrics != nil {
		s.metrics.SegmentSent()
	}
	internal.LogAttrs(s.logger, internal.LevelTrace, "send segment",
		slog.String("state", s.state.String()), slog.String("flags", flags.String()),
		slog.Uint64("seq", uint64(seq)), slog.Uint64("ack", uint64(ack)))
	_, err := s.conn.WriteToUDP(frm.RawData(), s.peerAddr)
	return err
}

// recvValid waits up to budget for one datagram and, if it arrives, parses
// and checksum-validates it. A corrupt or too-short datagram is reported as
// (Frame{}, false, false, nil) — discarded, never an error (spec.md §7).
func (s *Sender) recvValid(budget time.Duration) (segment.Frame, bool, bool, error) {
	res, err := s.conn.WaitOrRecv(s.readBuf[:], budget)
	if err != nil {
		return segment.Frame{}, false, false, err
	}
	if res.TimedOut {
		return segment.Frame{}, false, true, nil
	}
	frm, ok := segment.Parse(res.Payload)
	if !ok || !frm.Valid() {
		if s.metrics != nil {
			// Corrupt datagrams are silently discarded, spec.md §7; no
			// counter fires since there's nothing to log beyond a trace line.
		}
		internal.LogAttrs(s.logger, internal.LevelTrace, "discard invalid segment")
		return segment.Frame{}, false, false, nil
	}
	if s.metrics != nil {
		s.metrics.SegmentReceived()
	}
	return frm, true, false, nil
}

// Run drives the sender through every state to Closed, or returns the
// first unrecoverable I/O error encountered (spec.md §7 taxon 2).
func (s *Sender) Run(ctx context.Context) error {
	steps := []func(context.Context) error{
		s.runSynSent,
		s.runEstabSending,
		s.runFinSent,
		s.runTimeWait,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	s.state = Closed
	if s.metrics != nil {
		s.metrics.LogSummary(s.logger)
	}
	return nil
}

// runSynSent implements spec.md §4.4 SYN_SENT.
func (s *Sender) runSynSent(ctx context.Context) error {
	s.state = SynSent
	retransmitted := false
	sendTime := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.send(segment.FlagSYN, 0, 0, nil); err != nil {
			return err
		}

		frm, ok, timedOut, err := s.recvValid(s.timeoutDuration())
		if err != nil {
			return err
		}
		if timedOut {
			s.est.Backoff()
			if s.metrics != nil {
				s.metrics.Timeout()
			}
			retransmitted = true
			continue
		}
		if !ok {
			continue
		}
		if frm.Ack() == 1 && frm.Flags().HasAll(segment.FlagSYN|segment.FlagACK) {
			s.nextExpectedPeerSeq = frm.Seq().Add(1)
			if !retransmitted {
				s.est.Update(time.Since(sendTime).Microseconds())
				if s.metrics != nil {
					s.metrics.RTTSample(time.Since(sendTime).Microseconds())
				}
			}
			s.nextSeq = 1
			if err := s.send(segment.FlagACK, 1, s.nextExpectedPeerSeq, nil); err != nil {
				return err
			}
			s.nextSeq = 2
			return nil
		}
		// Other validated segments ignored.
	}
}

// runEstabSending implements spec.md §4.4 ESTAB_SENDING.
func (s *Sender) runEstabSending(ctx context.Context) error {
	s.state = EstabSending
	timeRemaining := s.timeoutDuration()
	eof := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for !s.win.IsFull() && !eof {
			n, err := io.ReadFull(s.file, s.readBuf[segment.HeaderLen:segment.HeaderLen+segment.MaxPayload])
			if n == 0 {
				if errors.Is(err, io.EOF) {
					eof = true
					break
				}
				if err != nil {
					return err
				}
			}
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				return err
			}
			seq := s.nextSeq
			slot := s.segCount % len(s.wirePool)
			s.segCount++
			internal.SliceReuse(&s.wirePool[slot], segment.HeaderLen+n)
			wire := s.wirePool[slot][:segment.HeaderLen+n]
			frm := segment.Build(wire, s.localPort, s.peerPort, seq, s.nextExpectedPeerSeq, 0,
				s.readBuf[segment.HeaderLen:segment.HeaderLen+n])
			if err := s.win.Offer(window.Record{Wire: frm.RawData(), PayloadLen: n}); err != nil {
				return fmt.Errorf("sender: %w", err)
			}
			if _, err := s.conn.WriteToUDP(frm.RawData(), s.peerAddr); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.SegmentSent()
			}
			if s.OnBytesSent != nil {
				s.OnBytesSent(n)
			}
			if !s.isTimed {
				s.isTimed = true
				s.timedSeq = seq
				s.timeStart = time.Now()
			}
			s.nextSeq = seq.Add(uint32(n))
			if n < segment.MaxPayload {
				eof = true
				break
			}
		}

		if eof && s.win.IsEmpty() {
			return nil
		}

		res, err := s.conn.WaitOrRecv(s.readBuf[:], timeRemaining)
		if err != nil {
			return err
		}
		if res.TimedOut {
			timeRemaining = s.retransmitWindow()
			continue
		}
		// Every wait that returns without a real timeout still consumes
		// part of the budget — on an ignore path (corrupt segment,
		// duplicate SYN-ACK, stale ACK, non-ACK fall-through) below, the
		// loop continues with timeRemaining already debited here, so a
		// steady trickle of such datagrams cannot postpone the
		// retransmission timer indefinitely (spec.md §4.6).
		timeRemaining -= res.Elapsed
		if timeRemaining <= 0 {
			timeRemaining = s.retransmitWindow()
			continue
		}

		frm, ok := segment.Parse(res.Payload)
		if !ok || !frm.Valid() {
			internal.LogAttrs(s.logger, internal.LevelTrace, "discard invalid segment")
			continue
		}
		if s.metrics != nil {
			s.metrics.SegmentReceived()
		}

		ack := frm.Ack()
		if frm.Flags().HasAny(segment.FlagACK) {
			head, err := s.win.Head()
			headSeq := s.nextSeq
			if err == nil {
				f, _ := segment.Parse(head.Wire)
				headSeq = f.Seq()
			}
			if !s.win.IsEmpty() && ack != headSeq && greaterSeq(ack, headSeq) {
				crossedTimed := false
				for !s.win.IsEmpty() {
					hr, _ := s.win.Head()
					hf, _ := segment.Parse(hr.Wire)
					if !greaterSeq(ack, hf.Seq()) {
						break
					}
					if s.isTimed && hf.Seq() == s.timedSeq {
						crossedTimed = true
					}
					s.win.DeleteHead()
				}
				if crossedTimed {
					sample := time.Since(s.timeStart).Microseconds()
					s.est.Update(sample)
					if s.metrics != nil {
						s.metrics.RTTSample(sample)
					}
					s.isTimed = false
				}
				timeRemaining = s.timeoutDuration()
				continue
			}
			if ack == 1 && frm.Flags().HasAll(segment.FlagSYN|segment.FlagACK) {
				if err := s.send(segment.FlagACK, 1, s.nextExpectedPeerSeq, nil); err != nil {
					return err
				}
				continue
			}
			// Stale ACK at or below window head: ignored, preserve
			// remaining budget (spec.md §4.4, §9 open question).
			continue
		}
	}
}

// retransmitWindow re-sends every unacked segment still in the window after
// a retransmission timeout — either a real one (res.TimedOut) or one
// inferred from timeRemaining being exhausted by a string of ignored
// datagrams (spec.md §4.4, §4.6) — and returns the fresh timeout to start
// the next wait with.
func (s *Sender) retransmitWindow() time.Duration {
	s.est.Backoff()
	if s.metrics != nil {
		s.metrics.Timeout()
	}
	s.win.Each(func(r window.Record) {
		s.conn.WriteToUDP(r.Wire, s.peerAddr)
		if s.metrics != nil {
			s.metrics.SegmentSent()
			s.metrics.Retransmission()
		}
	})
	s.isTimed = false
	return s.timeoutDuration()
}

// greaterSeq reports a > b under unsigned 32-bit wraparound-aware
// comparison; for a finite file transfer within one connection lifetime a
// plain > suffices, since seq never wraps in practice, but this keeps the
// comparison honest against spec.md §3's "must not crash on wrap" rule.
func greaterSeq(a, b segment.Value) bool {
	return int32(uint32(a)-uint32(b)) > 0
}

// runFinSent implements spec.md §4.4 FIN_SENT.
func (s *Sender) runFinSent(ctx context.Context) error {
	s.state = FinSent
	finSeq := s.nextSeq
	s.nextSeq = s.nextSeq.Add(1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.send(segment.FlagFIN, finSeq, s.nextExpectedPeerSeq, nil); err != nil {
			return err
		}
		frm, ok, timedOut, err := s.recvValid(s.timeoutDuration())
		if err != nil {
			return err
		}
		if timedOut {
			s.est.Backoff()
			if s.metrics != nil {
				s.metrics.Timeout()
			}
			continue
		}
		if !ok {
			continue
		}
		if frm.Ack() == s.nextSeq && frm.Flags().HasAny(segment.FlagACK) {
			return nil
		}
	}
}

// runTimeWait implements spec.md §4.4 TIME_WAIT.
func (s *Sender) runTimeWait(ctx context.Context) error {
	s.state = TimeWait
	// Block (unbounded, per spec.md §5) until the peer's FIN arrives.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frm, ok, _, err := s.recvValid(30 * time.Second)
		if err != nil {
			return err
		}
		if ok && frm.Seq() == s.nextExpectedPeerSeq && frm.Flags().HasAny(segment.FlagFIN) {
			break
		}
	}
	if err := s.send(segment.FlagACK, s.nextSeq, s.nextExpectedPeerSeq.Add(1), nil); err != nil {
		return err
	}

	deadline := time.Now().Add(quietTimer)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		frm, ok, timedOut, err := s.recvValid(remaining)
		if err != nil {
			return err
		}
		if timedOut {
			break
		}
		if ok && frm.Seq() == s.nextExpectedPeerSeq && frm.Flags().HasAny(segment.FlagFIN) {
			if err := s.send(segment.FlagACK, s.nextSeq, s.nextExpectedPeerSeq.Add(1), nil); err != nil {
				return err
			}
		}
	}
	return s.conn.Close()
}

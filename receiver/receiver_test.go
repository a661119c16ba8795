package receiver

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/northlake-systems/udpltcp/segment"
)

// fakeSenderPeer is a deterministic in-process stand-in for the sender,
// implementing just enough of spec.md §4.4 to drive the receiver through a
// full connection lifecycle without a real socket.
type fakeSenderPeer struct {
	state          string
	remaining      []byte
	currentSeq     segment.Value
	awaitingAck    segment.Value
	finSeq         segment.Value
	localPort      uint16
	remotePort     uint16
}

func newFakeSenderPeer(data []byte, localPort, remotePort uint16) *fakeSenderPeer {
	return &fakeSenderPeer{state: "waitSynAck", remaining: data, localPort: localPort, remotePort: remotePort}
}

func (p *fakeSenderPeer) build(seq, ack segment.Value, flags segment.Flags, payload []byte) []byte {
	buf := make([]byte, segment.HeaderLen+len(payload))
	return segment.Build(buf, p.localPort, p.remotePort, seq, ack, flags, payload).RawData()
}

func (p *fakeSenderPeer) nextChunk() []byte {
	n := len(p.remaining)
	if n > segment.MaxPayload {
		n = segment.MaxPayload
	}
	chunk := p.remaining[:n]
	p.remaining = p.remaining[n:]
	return chunk
}

func (p *fakeSenderPeer) handle(raw []byte) [][]byte {
	frm, ok := segment.Parse(raw)
	if !ok || !frm.Valid() {
		return nil
	}
	var out [][]byte
	switch p.state {
	case "waitSynAck":
		if frm.Flags().HasAll(segment.FlagSYN|segment.FlagACK) && frm.Ack() == 1 {
			out = append(out, p.build(1, 1, segment.FlagACK, nil))
			p.currentSeq = 2
			if len(p.remaining) == 0 {
				p.finSeq = 2
				p.state = "finSent"
				out = append(out, p.build(2, 1, segment.FlagFIN, nil))
			} else {
				chunk := p.nextChunk()
				p.awaitingAck = p.currentSeq.Add(uint32(len(chunk)))
				out = append(out, p.build(p.currentSeq, 1, 0, chunk))
				p.state = "sendingData"
			}
		}
	case "sendingData":
		if frm.Flags().HasAny(segment.FlagACK) && frm.Ack() == p.awaitingAck {
			p.currentSeq = p.awaitingAck
			if len(p.remaining) == 0 {
				p.finSeq = p.currentSeq
				p.state = "finSent"
				out = append(out, p.build(p.currentSeq, 1, segment.FlagFIN, nil))
			} else {
				chunk := p.nextChunk()
				p.awaitingAck = p.currentSeq.Add(uint32(len(chunk)))
				out = append(out, p.build(p.currentSeq, 1, 0, chunk))
			}
		}
	case "finSent":
		if frm.Flags().HasAny(segment.FlagACK) && frm.Ack() == p.finSeq.Add(1) {
			p.state = "timeWait"
		}
	case "timeWait":
		if frm.Flags().HasAny(segment.FlagFIN) && frm.Seq() == 1 {
			out = append(out, p.build(p.finSeq.Add(1), 2, segment.FlagACK, nil))
			p.state = "closed"
		}
	}
	return out
}

type fakeConn struct {
	peer    *fakeSenderPeer
	pending [][]byte
	closed  bool
}

func (c *fakeConn) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) {
	cp := append([]byte(nil), b...)
	c.pending = append(c.pending, c.peer.handle(cp)...)
	return len(b), nil
}

func (c *fakeConn) WaitOrRecv(buf []byte, _ time.Duration) (WaitResult, error) {
	if len(c.pending) == 0 {
		return WaitResult{TimedOut: true}, nil
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	n := copy(buf, next)
	return WaitResult{Payload: buf[:n]}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestReceiver(conn Conn, out *bytes.Buffer) *Receiver {
	r := New(conn, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}, 9001, 9000, out, nil, nil)
	r.est.Update(2000)
	return r
}

func seedSYN(conn *fakeConn, localPort, remotePort uint16) {
	buf := make([]byte, segment.HeaderLen)
	syn := segment.Build(buf, localPort, remotePort, 0, 0, segment.FlagSYN, nil)
	conn.pending = append(conn.pending, syn.RawData())
}

func TestCleanTransferWritesFileAndCloses(t *testing.T) {
	payload := bytes.Repeat([]byte{'z'}, 1300)
	peer := newFakeSenderPeer(payload, 9000, 9001)
	conn := &fakeConn{peer: peer}
	seedSYN(conn, 9000, 9001)

	var out bytes.Buffer
	r := newTestReceiver(conn, &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.state != Closed {
		t.Fatalf("expected state Closed, got %v", r.state)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("receiver wrote %d bytes, want %d", out.Len(), len(payload))
	}
}

func TestZeroByteFileClosesWithoutData(t *testing.T) {
	peer := newFakeSenderPeer(nil, 9000, 9001)
	conn := &fakeConn{peer: peer}
	seedSYN(conn, 9000, 9001)

	var out bytes.Buffer
	r := newTestReceiver(conn, &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no bytes written, got %d", out.Len())
	}
}

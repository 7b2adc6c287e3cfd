package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"beacon/internal/logging"
	"beacon/internal/protocol"
)

func newPipeSession(t *testing.T) (*session, net.Conn, *protocol.Conn) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	s := newSession(&Server{logger: logging.NewNop()}, serverEnd)
	t.Cleanup(s.close)
	t.Cleanup(func() { clientEnd.Close() })
	return s, clientEnd, protocol.NewConn(clientEnd)
}

// expectNoFrame asserts the peer stays silent for a short window.
func expectNoFrame(t *testing.T, raw net.Conn, pc *protocol.Conn) {
	t.Helper()
	raw.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if msgType, _, err := pc.ReadFrame(); err == nil {
		t.Fatalf("unexpected extra frame of type %d", msgType)
	}
	raw.SetReadDeadline(time.Time{})
}

func TestTimedOutRequestDropsLateReply(t *testing.T) {
	s, raw, pc := newPipeSession(t)
	w := &responder{session: s}

	// The deadline fires first; the handler result lands afterwards.
	go func() {
		w.timeout("k1")
		w.send(protocol.MsgReplyWrite, protocol.WriteReply{Key: "k1", Version: 3})
	}()

	msgType, body, err := pc.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msgType != protocol.MsgReplyError {
		t.Fatalf("frame type = %d, want error reply", msgType)
	}
	var reply protocol.ErrorReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode error reply: %v", err)
	}
	if reply.Key != "k1" || reply.Code != protocol.CodeTimeout {
		t.Fatalf("error reply = %+v", reply)
	}

	expectNoFrame(t, raw, pc)
}

func TestReplyBeforeDeadlineSuppressesTimeoutFrame(t *testing.T) {
	s, raw, pc := newPipeSession(t)
	w := &responder{session: s}

	go func() {
		w.send(protocol.MsgReplyWrite, protocol.WriteReply{Key: "k2", Version: 1})
		w.timeout("k2")
	}()

	msgType, body, err := pc.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msgType != protocol.MsgReplyWrite {
		t.Fatalf("frame type = %d, want write reply", msgType)
	}
	var reply protocol.WriteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode write reply: %v", err)
	}
	if reply.Key != "k2" || reply.Version != 1 {
		t.Fatalf("write reply = %+v", reply)
	}

	expectNoFrame(t, raw, pc)
}

package pcep

import (
	"context"
	"net"
	"testing"
	"time"
)

// testServer starts a Server on an ephemeral loopback port using the
// given ConnHandler and returns the listener.
func testServer(t *testing.T, ch *ConnHandler) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{ServeConn: ch.ServeConn}
	go srv.Serve(l)
	return l
}

func TestServerAcceptsConnection(t *testing.T) {
	stats := NewStatsCollector()
	ch := &ConnHandler{Config: DefaultSessionConfig(), Stats: stats}
	l := testServer(t, ch)
	defer l.Close()

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()

	msg := readMsg(t, nc)
	if hdr := DecodeHeader(msg); hdr.Type != MsgTypeOpen {
		t.Fatalf("expected server's Open, got %v", hdr)
	}

	if _, err := nc.Write(openMsgBytes()); err != nil {
		t.Fatalf("write peer Open: %v", err)
	}
	ka := readMsg(t, nc)
	if hdr := DecodeHeader(ka); hdr.Type != MsgTypeKeepalive {
		t.Fatalf("expected server's keepalive, got %v", hdr)
	}
}

func TestServerServeReturnsAfterListenerClosed(t *testing.T) {
	// Serve returns immediately (non-temporary error) once the listener
	// is closed; this exercises the accept-loop exit path.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{ServeConn: func(net.Conn) {}}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	l.Close()

	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after listener closed")
	}
}

func TestClientRunHandshake(t *testing.T) {
	stats := NewStatsCollector()
	ch := &ConnHandler{Config: DefaultSessionConfig(), Stats: stats}
	l := testServer(t, ch)
	defer l.Close()

	handler := &recordingHandler{stateChanges: make(chan State, 8)}
	c := &Client{Addr: l.Addr().String()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, DefaultSessionConfig(), handler) }()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-handler.stateChanges:
			if st == StateSessionUp {
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("client session never reached SESSION_UP")
		}
	}
}

type recordingHandler struct {
	stateChanges chan State
}

func (h *recordingHandler) OnMessage(s *Session, hdr Header, msg []byte) {}
func (h *recordingHandler) OnStateChange(s *Session, old, new State) {
	h.stateChanges <- new
}

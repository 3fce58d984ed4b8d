package pcep

import (
	"context"
	"testing"
	"time"
)

// TestRunFullSession drives Session.Run over an in-memory connection,
// playing the peer from a second goroutine: Open, Keepalive, then Close.
// Run must return nil once the peer's Close arrives.
func TestRunFullSession(t *testing.T) {
	local, remote := pair()
	defer local.Close()
	defer remote.Close()

	cfg := DefaultSessionConfig()
	cfg.ChunkSize = 3 // exercise chunk-boundary reassembly in the real loop
	s := NewSession(local, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	readMsg(t, remote) // session's own Open

	if _, err := remote.Write(openMsgBytes()); err != nil {
		t.Fatalf("write peer Open: %v", err)
	}
	readMsg(t, remote) // session's keepalive reply

	if _, err := remote.Write(keepaliveMsgBytes()); err != nil {
		t.Fatalf("write peer Keepalive: %v", err)
	}

	closeMsg := []byte{0x20, MsgTypeClose, 0x00, 0x0c, 0x0f, 0x10, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}
	if _, err := remote.Write(closeMsg); err != nil {
		t.Fatalf("write peer Close: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after peer Close")
	}

	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED", got)
	}
}

// TestRunContextCancel verifies that canceling ctx stops Run even with no
// peer traffic at all.
func TestRunContextCancel(t *testing.T) {
	local, remote := pair()
	defer local.Close()
	defer remote.Close()

	s := NewSession(local, DefaultSessionConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	readMsg(t, remote) // session's own Open, so Run has reached the loop
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancel")
	}
}

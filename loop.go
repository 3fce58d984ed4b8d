package pcep

import (
	"context"
	"errors"
	"io"
	"time"
)

// tickInterval is the period of the session's periodic tick, matching
// the reference's one-second timerfd (spec section 4.4).
const tickInterval = time.Second

// chunk carries one socket read (or its terminal error) from the read
// goroutine to Run's select loop. Go's net.Conn exposes no portable
// non-blocking poll primitive, so a dedicated goroutine feeding a
// channel is the idiomatic stand-in for the reference's non-blocking
// read() + poll() pair (spec section 4.4).
type chunk struct {
	b   []byte
	err error
}

// Run drives the session to completion: it sends the local Open, then
// multiplexes socket reads and a periodic tick against the state machine
// until the session closes, the peer closes, a fatal I/O error occurs,
// or ctx is canceled (the Shutdown event of spec section 4.3).
//
// Run returns a non-nil error only when sending the local Open fails.
// Every other termination, including protocol-driven close and socket
// read errors (which are logged through cfg.Log), returns nil.
func (s *Session) Run(ctx context.Context) error {
	if err := s.start(); err != nil {
		return err
	}

	reads := make(chan chunk)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(reads, done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-reads:
			if !ok {
				return nil
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return nil
				}
				s.cfg.log("pcep: session", s.conn.RemoteAddr(), "read error:", c.err)
				return nil
			}
			if !s.feed(c.b) {
				return nil
			}

		case <-ticker.C:
			if !s.tick(tickInterval) {
				return nil
			}
		}
	}
}

// feed hands a chunk of bytes to the framer and dispatches every message
// it completes, in arrival order, to the state machine. It returns false
// if the session should close.
func (s *Session) feed(b []byte) bool {
	s.framer.Write(b)
	for {
		msg, ok := s.framer.Read()
		if !ok {
			return true
		}
		if !s.handleMessage(msg) {
			return false
		}
	}
}

// readLoop reads fixed-size chunks from the connection and forwards them
// to reads until done is closed or a read fails. CHUNK is
// cfg.ChunkSize (default 9), matching spec section 4.4's PCEP_MSG_CHUNK.
func (s *Session) readLoop(reads chan<- chunk, done <-chan struct{}) {
	defer close(reads)
	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case reads <- chunk{b: b}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case reads <- chunk{err: err}:
			case <-done:
			}
			return
		}
	}
}

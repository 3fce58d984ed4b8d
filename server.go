package pcep

import (
	"context"
	"log"
	"net"
	"time"
)

// ConnHandler runs a PCEP session to completion on an accepted
// connection, optionally registering its Stats with a StatsCollector for
// the duration of the session. It is the PCE-side analogue of the
// pluggable message handler named in spec section 1.
type ConnHandler struct {
	Config  SessionConfig   // session timers; zero value falls back to ChunkSize 9
	Handler Handler         // optional per-message/state-change callback
	Stats   *StatsCollector // optional; sessions register/unregister themselves here
}

// ServeConn runs one PCEP session on nc until it closes, then closes nc.
// It satisfies the Server.ServeConn signature.
func (ch *ConnHandler) ServeConn(nc net.Conn) {
	defer nc.Close()

	s := NewSession(nc, ch.Config, ch.Handler)
	if ch.Stats != nil {
		ch.Stats.Add(nc.RemoteAddr(), s.Stats())
		defer ch.Stats.Remove(nc.RemoteAddr())
	}
	if err := s.Run(context.Background()); err != nil {
		ch.Config.log("pcep: session", nc.RemoteAddr(), "error:", err)
	}
}

// Server is a generic network server, grounded directly on the accept
// loop pattern of spec section 4.5/5: bind, listen (by the caller, which
// supplies the net.Listener), accept, and spawn one goroutine per
// connection running ServeConn.
type Server struct {
	// ServeConn is run on each incoming connection, in its own
	// goroutine (the Go-idiomatic realization of spec section 5's "one
	// worker per accepted connection"; OS process isolation is
	// explicitly left as an implementation choice there). It must
	// close the net.Conn when finished with it.
	ServeConn func(net.Conn)

	// Log receives non-fatal accept errors. If nil, log.Print is used.
	Log func(v ...interface{})
}

// Serve accepts connections on l until Accept returns a non-temporary
// error, spawning a goroutine running ServeConn for each. Temporary
// accept errors are retried with exponential backoff capped at one
// second, the same policy the teacher library applies to its own
// Server.Serve.
func (srv *Server) Serve(l net.Listener) error {
	logErr := srv.Log
	if logErr == nil {
		logErr = log.Print
	}

	defer l.Close()
	var tempDelay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				logErr("pcep: accept error: ", err, " retrying in ", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		go srv.ServeConn(c)
	}
}

package pcep

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client dials a single PCE server address and runs one PCEP session
// against it (spec section 4.5, connector). A Client has no connection
// cache: each call to Run or RunScripted dials a fresh connection and
// runs it to completion.
type Client struct {
	Addr string // PCE server address, host:port

	// DialContext, if set, replaces the default net.Dialer used to
	// reach Addr. Tests substitute this to dial an in-memory
	// net.Pipe listener.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

var zeroDialer net.Dialer

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.DialContext != nil {
		return c.DialContext(ctx, "tcp", c.Addr)
	}
	return zeroDialer.DialContext(ctx, "tcp", c.Addr)
}

// Run dials c.Addr and runs a full PCEP session over the connection with
// cfg and h, returning when the session closes, ctx is canceled, or the
// dial itself fails. The connection is closed before Run returns.
func (c *Client) Run(ctx context.Context, cfg SessionConfig, h Handler) error {
	nc, err := c.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "pcep: dial")
	}
	defer nc.Close()

	s := NewSession(nc, cfg, h)
	return s.Run(ctx)
}

// pcepOpen, pcepKeepalive and pcepClose are the literal dummy-session
// messages sent by RunScripted, byte for byte the same ones the
// reference client application sends.
var (
	pcepOpen = []byte{
		0x20, 0x01, 0x00, 0x0c,
		0x01, 0x10, 0x00, 0x08,
		0x20, 0x00, 0x00, 0x00,
	}
	pcepKeepalive = []byte{0x20, 0x02, 0x00, 0x04}
	pcepClose     = []byte{
		0x20, 0x07, 0x00, 0x0c,
		0x0f, 0x10, 0x00, 0x08,
		0x00, 0x00, 0x00, 0x00,
	}
)

// RunScripted dials c.Addr and plays back the fixed Open, Keepalive,
// Close script of the reference client, sleeping one second after the
// Open and two seconds after the Keepalive before sending the Close. It
// does not run the session state machine: it exists to exercise a PCE
// server's OPEN_WAIT/KEEP_WAIT/SESSION_UP handling the same way the
// reference pce client command does (spec section 4.5), and ignores
// anything the server sends back.
//
// RunScripted returns after sending Close and sleeping three more
// seconds, or immediately if ctx is canceled first.
func (c *Client) RunScripted(ctx context.Context) error {
	nc, err := c.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "pcep: dial")
	}
	defer nc.Close()

	send := func(b []byte, wait time.Duration) error {
		if _, err := nc.Write(b); err != nil {
			return errors.Wrap(err, "pcep: write")
		}
		select {
		case <-time.After(wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := send(pcepOpen, time.Second); err != nil {
		return err
	}
	if err := send(pcepKeepalive, 2*time.Second); err != nil {
		return err
	}
	return send(pcepClose, 3*time.Second)
}

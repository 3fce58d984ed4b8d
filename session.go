package pcep

import (
	"errors"
	"net"
	"sync"
	"time"
)

// State is a PCEP session's position in the state machine of spec section
// 4.3. State advances monotonically through the listed values; any error
// transitions it to StateClosed, which is terminal.
type State int

const (
	StateIdle State = iota
	StateTCPPending
	StateOpenWait
	StateKeepWait
	StateSessionUp
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTCPPending:
		return "TCP_PENDING"
	case StateOpenWait:
		return "OPEN_WAIT"
	case StateKeepWait:
		return "KEEP_WAIT"
	case StateSessionUp:
		return "SESSION_UP"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// errProtocolViolation is logged when a message arrives that the current
// state doesn't permit; the session sends a Notification (or Error) if one
// is appropriate and transitions to CLOSED.
var errProtocolViolation = errors.New("pcep: protocol violation")

// openMsgLen is the length of a well-formed Open message's common header
// plus the minimal OPEN object the reference session handler checks for
// (spec section 4.3, OPEN_WAIT row). Body-level object validation beyond
// the length check is out of core scope (spec section 1).
const openMsgLen = 12

// SessionConfig carries the configurable PCEP timers from spec section
// 4.3, plus the session's own chunk size for the event loop. A zero
// KeepAliveTimer disables periodic keepalives; a zero OpenWaitTimer,
// KeepWaitTimer or DeadTimer expires on the first tick in its state. The
// core accepts all values on construction and does not revalidate them
// (spec section 4.3).
type SessionConfig struct {
	OpenWaitTimer    time.Duration // time allowed in OPEN_WAIT
	KeepWaitTimer    time.Duration // time allowed in KEEP_WAIT
	KeepAliveTimer   time.Duration // local keepalive send interval
	DeadTimer        time.Duration // local dead timer (hold time basis)
	SyncTimer        time.Duration
	RequestTimer     time.Duration
	InitBackoffTimer time.Duration
	MaxBackoffTimer  time.Duration
	MaxReqPerSession uint
	MaxUnknownReqs   uint
	MaxUnknownMsgs   uint

	// ChunkSize is the number of bytes read from the socket per Read
	// call in the event loop. Spec section 4.4 fixes this at 9 to
	// exercise partial-frame paths; it is configurable here so tests
	// can exercise other boundaries.
	ChunkSize int

	// Log receives diagnostic messages. If nil, nothing is logged.
	Log func(v ...interface{})
}

// DefaultSessionConfig returns the RFC 5440 default timer values (60s
// open-wait, 60s keep-wait, 30s keepalive, 4x keepalive dead-timer) per spec
// section 9's Open Questions resolution.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		OpenWaitTimer:  60 * time.Second,
		KeepWaitTimer:  60 * time.Second,
		KeepAliveTimer: 30 * time.Second,
		DeadTimer:      120 * time.Second,
		ChunkSize:      9,
	}
}

func (c *SessionConfig) log(v ...interface{}) {
	if c.Log != nil {
		c.Log(v...)
	}
}

// Handler processes PCEP messages once a session is up, and learns about
// session close. A Handler is optional; a nil Handler simply counts
// statistics without further action. Full message-body parsing (objects,
// TLVs) is out of core scope (spec section 1): handlers receive the
// decoded Header and the raw message bytes (header included) and are
// responsible for interpreting the body themselves.
type Handler interface {
	// OnMessage is called for every message other than Keepalive and
	// Close received while the session is SESSION_UP; Keepalive and Close
	// are handled by the state machine alone.
	OnMessage(s *Session, h Header, msg []byte)
	// OnStateChange is called whenever the session's state changes,
	// including the final transition to StateClosed.
	OnStateChange(s *Session, old, new State)
}

// Session is a PCEP session hosted on one accepted or dialed TCP
// connection. A Session owns its Framer, its statistics, and (while
// running) its tick timer exclusively; it is not safe for concurrent use
// beyond the State/Stats accessors documented below.
type Session struct {
	// stats is first so its uint64 counters keep 64-bit alignment for
	// sync/atomic on 32-bit architectures (the first word of an
	// allocated struct is the only one Go guarantees is aligned there).
	stats  Stats
	conn   net.Conn
	cfg    SessionConfig
	framer *Framer
	h      Handler

	mu            sync.Mutex // guards state and the fields below
	state         State
	localOK       bool // peer's Keepalive has acknowledged the local Open
	remoteOK      bool // peer's Open has been accepted
	holdRemaining time.Duration
	kaRemaining   time.Duration
	lastChange    time.Time
}

// NewSession creates a Session over conn. The session starts in
// StateIdle; call Run to drive it through the handshake and event loop.
func NewSession(conn net.Conn, cfg SessionConfig, h Handler) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 9
	}
	s := &Session{
		conn:          conn,
		cfg:           cfg,
		framer:        NewFramer(),
		h:             h,
		state:         StateIdle,
		holdRemaining: cfg.DeadTimer,
		kaRemaining:   cfg.KeepAliveTimer,
		lastChange:    time.Now(),
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the session's live statistics counters. The returned
// pointer may be read concurrently with the running session.
func (s *Session) Stats() *Stats { return &s.stats }

// RemoteAddr returns the underlying connection's remote address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *Session) setState(new State) {
	s.mu.Lock()
	old := s.state
	if old == StateClosed {
		// CLOSED is terminal; spec invariant 6.
		s.mu.Unlock()
		return
	}
	s.state = new
	s.lastChange = time.Now()
	s.mu.Unlock()

	s.cfg.log("pcep: session", s.conn.RemoteAddr(), "state", old, "->", new)
	if s.h != nil {
		s.h.OnStateChange(s, old, new)
	}
}

// writeMessage appends the message's header to the wire and sends it,
// counting it in Stats.
func (s *Session) writeMessage(h Header, body []byte) error {
	b := EncodeHeader(h, make([]byte, 0, hdrLen+len(body)))
	b = append(b, body...)
	_, err := s.conn.Write(b)
	if err != nil {
		return err
	}
	s.stats.countSent(h.Type)
	return nil
}

func (s *Session) sendKeepalive() error {
	return s.writeMessage(Header{Version: msgVersion, Type: MsgTypeKeepalive, Length: hdrLen}, nil)
}

func (s *Session) sendOpen() error {
	// A minimal, syntactically valid Open: the common header plus an
	// 8-byte OPEN object carrying no negotiated session parameters.
	// Negotiating real Open attributes is body-level and out of core
	// scope (spec section 1); this is enough to drive the handshake.
	body := []byte{0x01, 0x10, 0x00, 0x08, 0x20, 0x00, 0x00, 0x00}
	return s.writeMessage(Header{Version: msgVersion, Type: MsgTypeOpen, Length: openMsgLen}, body)
}

func (s *Session) sendNotification(typ, value byte) error {
	body := []byte{0x0c, 0x10, 0x00, 0x08, typ, value, 0x00, 0x00}
	return s.writeMessage(Header{Version: msgVersion, Type: MsgTypeNotification, Length: openMsgLen}, body)
}

func (s *Session) sendClose() error {
	body := []byte{0x0f, 0x10, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}
	return s.writeMessage(Header{Version: msgVersion, Type: MsgTypeClose, Length: openMsgLen}, body)
}

// start transitions IDLE -> TCP_PENDING -> OPEN_WAIT, sending the local
// Open. Called once by Run before entering the event loop.
func (s *Session) start() error {
	s.setState(StateTCPPending)
	if err := s.sendOpen(); err != nil {
		s.setState(StateClosed)
		return err
	}
	s.setState(StateOpenWait)
	return nil
}

// handleMessage dispatches a decoded message to the state machine per
// the transition table in spec section 4.3. It returns false if the
// session should close (the caller is responsible for actually closing
// the connection and exiting the event loop).
func (s *Session) handleMessage(raw []byte) bool {
	h := DecodeHeader(raw)
	s.stats.countRcvd(h.Type)

	switch s.State() {
	case StateTCPPending:
		// no message can legitimately arrive before the local Open is
		// sent and we've moved to OPEN_WAIT.
		s.cfg.log("pcep: session", s.conn.RemoteAddr(), errProtocolViolation, "in TCP_PENDING")
		s.setState(StateClosed)
		return false

	case StateOpenWait:
		if h.Type == MsgTypeOpen && int(h.Length) == openMsgLen {
			if err := s.sendKeepalive(); err != nil {
				s.setState(StateClosed)
				return false
			}
			s.mu.Lock()
			s.remoteOK = true
			localOK := s.localOK
			s.holdRemaining = s.cfg.DeadTimer
			s.mu.Unlock()
			// localOK is only ever set from KEEP_WAIT below, so this is
			// false on every run through OPEN_WAIT; the transition table
			// in spec.md section 4.3 defines it exactly this way, always
			// routing session establishment through KEEP_WAIT.
			if localOK {
				s.setState(StateSessionUp)
			} else {
				s.setState(StateKeepWait)
			}
			return true
		}
		// wrong message in OPEN_WAIT: notify and close.
		s.cfg.log("pcep: session", s.conn.RemoteAddr(), errProtocolViolation, "in OPEN_WAIT:", h)
		_ = s.sendNotification(1, 1)
		s.setState(StateClosed)
		return false

	case StateKeepWait:
		if h.Type == MsgTypeKeepalive {
			s.mu.Lock()
			s.localOK = true
			s.holdRemaining = s.cfg.DeadTimer
			s.mu.Unlock()
			s.setState(StateSessionUp)
			return true
		}
		if h.Type == MsgTypeClose {
			s.setState(StateClosed)
			return false
		}
		// anything else while waiting for the peer's keepalive is
		// ignored rather than torn down: spec leaves KEEP_WAIT's
		// "any other message" case unspecified (section 4.3), and
		// silently dropping matches the framer's own tolerant-resync
		// philosophy (section 7) better than a hard close would.
		return true

	case StateSessionUp:
		switch h.Type {
		case MsgTypeKeepalive:
			s.mu.Lock()
			s.holdRemaining = s.cfg.DeadTimer
			s.mu.Unlock()
		case MsgTypeClose:
			s.setState(StateClosed)
			return false
		default:
			if s.h != nil {
				s.h.OnMessage(s, h, raw)
			}
		}
		return true

	default:
		// IDLE, CLOSED: no message should be delivered here.
		s.setState(StateClosed)
		return false
	}
}

// tick advances the session's timers by one period. It returns false if
// the session should close.
func (s *Session) tick(elapsed time.Duration) bool {
	switch s.State() {
	case StateOpenWait:
		s.mu.Lock()
		since := time.Since(s.lastChange)
		s.mu.Unlock()
		if since >= s.cfg.OpenWaitTimer {
			s.setState(StateClosed)
			return false
		}

	case StateKeepWait:
		s.mu.Lock()
		since := time.Since(s.lastChange)
		s.mu.Unlock()
		if since >= s.cfg.KeepWaitTimer {
			s.setState(StateClosed)
			return false
		}

	case StateSessionUp:
		s.mu.Lock()
		s.holdRemaining -= elapsed
		dead := s.holdRemaining <= 0
		sendKA := false
		if s.cfg.KeepAliveTimer > 0 {
			s.kaRemaining -= elapsed
			if s.kaRemaining <= 0 {
				s.kaRemaining = s.cfg.KeepAliveTimer
				sendKA = true
			}
		}
		s.mu.Unlock()
		if dead {
			_ = s.sendClose()
			s.setState(StateClosed)
			return false
		}
		if sendKA {
			if err := s.sendKeepalive(); err != nil {
				s.setState(StateClosed)
				return false
			}
		}
	}
	return true
}

// Close releases the session's resources. It does not close the
// underlying net.Conn; the caller (Server/Client) owns that.
func (s *Session) Close() {
	s.setState(StateClosed)
	s.framer.Reset()
}

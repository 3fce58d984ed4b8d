package pcep

// maxMsgLen is the largest value the 16-bit Length field can hold. A
// corrupt length field can never cause the framer to allocate more than
// this, regardless of what garbage precedes it on the wire.
const maxMsgLen = 1<<16 - 1

// huntState is the framer's FSM state.
type huntState int

const (
	huntVerFlags huntState = iota
	huntType
	huntLen
	huntBody
)

// Framer is a streaming, incremental parser that reassembles complete PCEP
// messages from an arbitrary sequence of byte chunks. It never blocks,
// never emits a partial or malformed message, and never allocates more
// than the current message's declared length.
//
// A Framer is not safe for concurrent use; each session owns exactly one.
type Framer struct {
	state huntState

	hdr    Header // header fields staged while hunting
	lenCnt int    // bytes of the length field consumed so far

	msg    []byte // buffer for the message currently in progress
	msgPos int    // bytes already deposited into msg

	queue [][]byte // completed messages awaiting Read, oldest first
}

// NewFramer returns an empty Framer, hunting for the start of a message.
func NewFramer() *Framer {
	return &Framer{state: huntVerFlags}
}

// Reset unconditionally returns f to the initial hunting state and frees
// any in-progress message. It never touches messages already queued by a
// prior Write.
func (f *Framer) Reset() {
	f.state = huntVerFlags
	f.hdr = Header{}
	f.lenCnt = 0
	f.msg = nil
	f.msgPos = 0
}

// Write feeds b to the framer one byte at a time, queuing any messages
// completed along the way. Write never blocks and never returns an error:
// malformed input only costs framing (a resync), which is never surfaced
// to the caller (spec section 7).
func (f *Framer) Write(b []byte) {
	for _, c := range b {
		f.step(c)
	}
}

func (f *Framer) step(c byte) {
	switch f.state {
	case huntVerFlags:
		f.hdr.Version = c >> 5
		f.hdr.Flags = c & 0x1f
		if f.hdr.Version == msgVersion {
			f.state = huntType
		} else {
			f.Reset()
		}

	case huntType:
		f.hdr.Type = c
		if int(c) > msgTypeMin && int(c) < msgTypeMax {
			f.hdr.Length = 0
			f.lenCnt = 0
			f.state = huntLen
		} else {
			f.Reset()
		}

	case huntLen:
		// the length field's most-significant byte arrives first,
		// regardless of host byte order.
		if f.lenCnt == 0 {
			f.hdr.Length = uint16(c) << 8
		} else {
			f.hdr.Length |= uint16(c)
		}
		f.lenCnt++
		if f.lenCnt != 2 {
			return
		}
		if f.hdr.Length < hdrLen || f.hdr.Length > maxMsgLen {
			f.Reset()
			return
		}
		f.msg = make([]byte, hdrLen, f.hdr.Length)
		f.msg = EncodeHeader(f.hdr, f.msg[:0])
		f.msgPos = hdrLen
		f.state = huntBody
		if int(f.hdr.Length) == hdrLen {
			// Keepalive-length message: emit immediately, without
			// ever entering huntBody for a body byte.
			f.emit()
		}

	case huntBody:
		if f.msgPos < int(f.hdr.Length) {
			f.msg = append(f.msg, c)
			f.msgPos++
		}
		if f.msgPos == int(f.hdr.Length) {
			f.emit()
		}
	}
}

// emit moves the in-progress message to the completed queue and resumes
// hunting for the next one.
func (f *Framer) emit() {
	f.queue = append(f.queue, f.msg)
	f.msg = nil
	f.msgPos = 0
	f.state = huntVerFlags
}

// Read pops the oldest complete message, if any, transferring ownership
// to the caller. It returns (nil, false) when no message is ready.
func (f *Framer) Read() ([]byte, bool) {
	if len(f.queue) == 0 {
		return nil, false
	}
	m := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	if len(f.queue) == 0 {
		f.queue = nil
	}
	return m, true
}

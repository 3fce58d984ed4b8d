package pcep

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the monotonically non-decreasing per-session counters
// described in spec section 4.3. All fields are accessed through
// sync/atomic so a Stats can be read concurrently with the session that
// owns it (for example from a metrics scrape).
type Stats struct {
	NumPCReqSent     uint64
	NumPCReqRcvd     uint64
	NumPCRepSent     uint64
	NumPCRepRcvd     uint64
	NumPCErrSent     uint64
	NumPCErrRcvd     uint64
	NumPCNtfSent     uint64
	NumPCNtfRcvd     uint64
	NumKeepAliveSent uint64
	NumKeepAliveRcvd uint64
	NumUnknownRcvd   uint64
}

func (s *Stats) countSent(t uint8) {
	switch t {
	case MsgTypePCRequest:
		atomic.AddUint64(&s.NumPCReqSent, 1)
	case MsgTypePCReply:
		atomic.AddUint64(&s.NumPCRepSent, 1)
	case MsgTypeError:
		atomic.AddUint64(&s.NumPCErrSent, 1)
	case MsgTypeNotification:
		atomic.AddUint64(&s.NumPCNtfSent, 1)
	case MsgTypeKeepalive:
		atomic.AddUint64(&s.NumKeepAliveSent, 1)
	}
}

func (s *Stats) countRcvd(t uint8) {
	switch t {
	case MsgTypePCRequest:
		atomic.AddUint64(&s.NumPCReqRcvd, 1)
	case MsgTypePCReply:
		atomic.AddUint64(&s.NumPCRepRcvd, 1)
	case MsgTypeError:
		atomic.AddUint64(&s.NumPCErrRcvd, 1)
	case MsgTypeNotification:
		atomic.AddUint64(&s.NumPCNtfRcvd, 1)
	case MsgTypeKeepalive:
		atomic.AddUint64(&s.NumKeepAliveRcvd, 1)
	case MsgTypeOpen, MsgTypeClose:
		// counted implicitly through state transitions; no dedicated
		// counter is named in spec section 4.3.
	default:
		atomic.AddUint64(&s.NumUnknownRcvd, 1)
	}
}

// snapshot is a point-in-time, non-atomic copy of the counters, used only
// to build metric values without holding a lock across emission.
type snapshot struct {
	reqSent, reqRcvd uint64
	repSent, repRcvd uint64
	errSent, errRcvd uint64
	ntfSent, ntfRcvd uint64
	kaSent, kaRcvd   uint64
	unknownRcvd      uint64
}

func (s *Stats) load() snapshot {
	return snapshot{
		reqSent:     atomic.LoadUint64(&s.NumPCReqSent),
		reqRcvd:     atomic.LoadUint64(&s.NumPCReqRcvd),
		repSent:     atomic.LoadUint64(&s.NumPCRepSent),
		repRcvd:     atomic.LoadUint64(&s.NumPCRepRcvd),
		errSent:     atomic.LoadUint64(&s.NumPCErrSent),
		errRcvd:     atomic.LoadUint64(&s.NumPCErrRcvd),
		ntfSent:     atomic.LoadUint64(&s.NumPCNtfSent),
		ntfRcvd:     atomic.LoadUint64(&s.NumPCNtfRcvd),
		kaSent:      atomic.LoadUint64(&s.NumKeepAliveSent),
		kaRcvd:      atomic.LoadUint64(&s.NumKeepAliveRcvd),
		unknownRcvd: atomic.LoadUint64(&s.NumUnknownRcvd),
	}
}

// StatsCollector exports the Stats of a set of live sessions as Prometheus
// metrics, keyed by the session's peer address. Sessions register
// themselves with Add on creation and Remove on close; a PCE process
// registers the collector once and wires /metrics via promhttp, entirely
// outside the session event loop itself.
type StatsCollector struct {
	desc *prometheus.Desc

	mu    sync.Mutex
	conns map[net.Addr]*Stats
}

// NewStatsCollector returns an empty StatsCollector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		desc: prometheus.NewDesc(
			"pcep_session_messages_total",
			"Count of PCEP messages sent or received on a session, by message type and direction.",
			[]string{"peer", "type", "direction"}, nil,
		),
		conns: make(map[net.Addr]*Stats),
	}
}

// Add registers a session's Stats under its peer address.
func (c *StatsCollector) Add(peer net.Addr, s *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[peer] = s
}

// Remove unregisters a session's Stats.
func (c *StatsCollector) Remove(peer net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, peer)
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.desc
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	peers := make(map[net.Addr]*Stats, len(c.conns))
	for peer, s := range c.conns {
		peers[peer] = s
	}
	c.mu.Unlock()

	for peer, s := range peers {
		snap := s.load()
		emit := func(v uint64, typ, dir string) {
			metrics <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue,
				float64(v), peer.String(), typ, dir)
		}
		emit(snap.reqRcvd, "pc-request", "rcvd")
		emit(snap.reqSent, "pc-request", "sent")
		emit(snap.repRcvd, "pc-reply", "rcvd")
		emit(snap.repSent, "pc-reply", "sent")
		emit(snap.errRcvd, "error", "rcvd")
		emit(snap.errSent, "error", "sent")
		emit(snap.ntfRcvd, "notification", "rcvd")
		emit(snap.ntfSent, "notification", "sent")
		emit(snap.kaRcvd, "keepalive", "rcvd")
		emit(snap.kaSent, "keepalive", "sent")
		emit(snap.unknownRcvd, "unknown", "rcvd")
	}
}

package pcep

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatsCountSentAndRcvd(t *testing.T) {
	var s Stats
	s.countSent(MsgTypePCRequest)
	s.countRcvd(MsgTypePCReply)
	s.countRcvd(99) // unknown type

	snap := s.load()
	if snap.reqSent != 1 {
		t.Errorf("reqSent = %d, want 1", snap.reqSent)
	}
	if snap.repRcvd != 1 {
		t.Errorf("repRcvd = %d, want 1", snap.repRcvd)
	}
	if snap.unknownRcvd != 1 {
		t.Errorf("unknownRcvd = %d, want 1", snap.unknownRcvd)
	}
}

func TestStatsCollectorAddRemove(t *testing.T) {
	c := NewStatsCollector()
	var s Stats
	s.countSent(MsgTypeKeepalive)

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4189}
	c.Add(addr, &s)

	n := testutil.CollectAndCount(c)
	if n != 11 {
		t.Fatalf("CollectAndCount = %d, want 11 (one series per counter of the registered session)", n)
	}

	c.Remove(addr)
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("CollectAndCount after Remove = %d, want 0", n)
	}
}

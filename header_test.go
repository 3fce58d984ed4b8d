package pcep

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: msgVersion, Flags: 0x00, Type: MsgTypeOpen, Length: 12}
	b := EncodeHeader(h, nil)
	if len(b) != hdrLen {
		t.Fatalf("encoded length = %d, want %d", len(b), hdrLen)
	}

	got := DecodeHeader(b)
	if got != h {
		t.Fatalf("DecodeHeader(EncodeHeader(h)) = %+v, want %+v", got, h)
	}
}

func TestHeaderString(t *testing.T) {
	h := Header{Version: 1, Flags: 0x03, Type: MsgTypeKeepalive, Length: 4}
	want := "ver: 1, flags: 0x03, type: KEEPALIVE, len: 4"
	if got := h.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestTypeNameUnknown(t *testing.T) {
	for _, tt := range []uint8{0, 8, 200} {
		if got := typeName(tt); got != "UNKNOWN" {
			t.Errorf("typeName(%d) = %q, want UNKNOWN", tt, got)
		}
	}
}

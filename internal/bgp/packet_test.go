package bgp_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/bgp"
)

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	open := bgp.Open{
		Version:       4,
		MyAS:          65001,
		HoldTime:      180,
		BGPIdentifier: 0x01010101,
		OptParams:     []bgp.OptParam{{Type: 2, Value: []byte{1, 4, 0, 1, 0, 1}}},
	}

	body := bgp.EncodeOpen(open, nil)
	buf := make([]byte, bgp.HeaderSize+len(body))
	copy(buf[bgp.HeaderSize:], body)
	bgp.EncodeHeader(bgp.Header{Type: bgp.MsgOpen, Length: uint16(len(buf))}, buf)

	hdr, err := bgp.DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Type != bgp.MsgOpen {
		t.Fatalf("Type = %v, want OPEN", hdr.Type)
	}

	decoded, err := bgp.DecodeOpen(buf[bgp.HeaderSize:hdr.Length])
	if err != nil {
		t.Fatalf("DecodeOpen: %v", err)
	}
	if decoded.MyAS != open.MyAS || decoded.BGPIdentifier != open.BGPIdentifier || len(decoded.OptParams) != 1 {
		t.Fatalf("decoded open mismatch: %+v", decoded)
	}
}

func TestDecodeHeaderRejectsBadMarker(t *testing.T) {
	t.Parallel()

	buf := make([]byte, bgp.HeaderSize)
	if _, err := bgp.DecodeHeader(buf); err != bgp.ErrInvalidMarker {
		t.Fatalf("err = %v, want ErrInvalidMarker", err)
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	t.Parallel()

	n := bgp.Notification{ErrorCode: bgp.ErrCodeOpenMessage, ErrorSubcode: bgp.SubcodeBadPeerAS}
	buf := bgp.EncodeNotification(n, nil)

	decoded, err := bgp.DecodeNotification(buf)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	if decoded.ErrorCode != n.ErrorCode || decoded.ErrorSubcode != n.ErrorSubcode {
		t.Fatalf("decoded notification mismatch: %+v", decoded)
	}
}

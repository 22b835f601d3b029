package ldp_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/ldp"
)

func TestPDUHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := ldp.PDUHeader{Version: ldp.Version, PDULength: 100, LSR: 0x0a000001, LabelSpace: 0}
	buf := make([]byte, ldp.PDUHeaderSize)
	ldp.EncodePDUHeader(h, buf)

	decoded, err := ldp.DecodePDUHeader(buf)
	if err != nil {
		t.Fatalf("DecodePDUHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded = %+v, want %+v", decoded, h)
	}
}

func TestDecodePDUHeaderRejectsBadVersion(t *testing.T) {
	t.Parallel()

	buf := make([]byte, ldp.PDUHeaderSize)
	buf[1] = 9
	if _, err := ldp.DecodePDUHeader(buf); err != ldp.ErrInvalidVersion {
		t.Fatalf("err = %v, want ErrInvalidVersion", err)
	}
}

func TestFECTLVRoundTrip(t *testing.T) {
	t.Parallel()

	fec := ldp.FEC{PrefixBits: 24, Prefix: 0x0a010100}
	tlv := ldp.EncodeFECTLV(fec)

	decoded, err := ldp.DecodeFECTLV(tlv.Value)
	if err != nil {
		t.Fatalf("DecodeFECTLV: %v", err)
	}
	if decoded != fec {
		t.Fatalf("decoded = %+v, want %+v", decoded, fec)
	}
}

func TestGenericLabelTLVRoundTrip(t *testing.T) {
	t.Parallel()

	tlv := ldp.EncodeGenericLabelTLV(123456)
	label, err := ldp.DecodeGenericLabelTLV(tlv.Value)
	if err != nil {
		t.Fatalf("DecodeGenericLabelTLV: %v", err)
	}
	if label != 123456 {
		t.Fatalf("label = %d, want 123456", label)
	}
}

func TestMessageHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	body := ldp.EncodeTLV(ldp.EncodeFECTLV(ldp.FEC{PrefixBits: 24, Prefix: 0x0a010100}), nil)
	buf := ldp.EncodeMessageHeader(ldp.MessageHeader{Type: ldp.MsgLabelMapping, ID: 7}, body, nil)

	hdr, rest, err := ldp.DecodeMessageHeader(buf)
	if err != nil {
		t.Fatalf("DecodeMessageHeader: %v", err)
	}
	if hdr.Type != ldp.MsgLabelMapping || hdr.ID != 7 {
		t.Fatalf("hdr = %+v", hdr)
	}

	tlvs, err := ldp.DecodeTLVs(rest)
	if err != nil {
		t.Fatalf("DecodeTLVs: %v", err)
	}
	if len(tlvs) != 1 || tlvs[0].Type != ldp.TLVFEC {
		t.Fatalf("tlvs = %+v", tlvs)
	}
}

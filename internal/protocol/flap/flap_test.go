package flap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

func mustEncode(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func drain(t *testing.T, d *Decoder) []Frame {
	t.Helper()
	var out []Frame
	for {
		f, ok, err := d.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func TestEncodeWireLayout(t *testing.T) {
	b := mustEncode(t, Frame{Type: TypeData, Sequence: 0x0102, Payload: []byte{0xAA, 0xBB}})
	want := []byte{0x2A, 0x02, 0x01, 0x02, 0x00, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(b, want) {
		t.Fatalf("wire mismatch:\n got=% x\nwant=% x", b, want)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Frame{Type: TypeData, Payload: make([]byte, MaxPayloadLen+1)})
	if !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	in := Frame{Type: TypeSignon, Sequence: 7, Payload: StartPayload()}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Type != in.Type || out.Sequence != in.Sequence || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", out, in)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	b := mustEncode(t, Frame{Type: TypeData, Payload: []byte("hello")})
	_, err := ReadFrame(bytes.NewReader(b[:len(b)-2]))
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecoderOneByteChunksMatchesWholeFeed(t *testing.T) {
	wire := mustEncode(t, Frame{Type: TypeData, Sequence: 99, Payload: []byte("split across many reads")})

	var whole Decoder
	whole.Feed(wire)
	want := drain(t, &whole)
	if len(want) != 1 {
		t.Fatalf("whole feed produced %d frames", len(want))
	}

	var d Decoder
	var got []Frame
	for i := range wire {
		d.Feed(wire[i : i+1])
		got = append(got, drain(t, &d)...)
		if i < len(wire)-1 && len(got) != 0 {
			t.Fatalf("frame emitted early at byte %d", i)
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", len(got))
	}
	if got[0].Type != want[0].Type || got[0].Sequence != want[0].Sequence || !bytes.Equal(got[0].Payload, want[0].Payload) {
		t.Fatalf("chunked frame differs: got=%+v want=%+v", got[0], want[0])
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", d.Buffered())
	}
}

func TestDecoderTwoFramesInOneChunkInOrder(t *testing.T) {
	a := mustEncode(t, Frame{Type: TypeSignon, Sequence: 1, Payload: StartPayload()})
	b := mustEncode(t, Frame{Type: TypeData, Sequence: 2, Payload: []byte{1, 2, 3}})
	var d Decoder
	d.Feed(append(append([]byte{}, a...), b...))
	got := drain(t, &d)
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if got[0].Type != TypeSignon || got[0].Sequence != 1 || got[1].Type != TypeData || got[1].Sequence != 2 {
		t.Fatalf("frames out of order: %+v", got)
	}
}

func TestDecoderHeaderAndBodySplitAcrossChunks(t *testing.T) {
	a := mustEncode(t, Frame{Type: TypeData, Sequence: 10, Payload: []byte("first")})
	b := mustEncode(t, Frame{Type: TypeKeepAlive, Sequence: 11})
	c := mustEncode(t, Frame{Type: TypeData, Sequence: 12, Payload: []byte("third")})
	wire := append(append(append([]byte{}, a...), b...), c...)

	var d Decoder
	// split inside a's header, inside a's body with b complete after, and inside c's header
	cuts := []int{3, HeaderLen + 2, len(a) + len(b) + 4, len(wire)}
	prev := 0
	var got []Frame
	for _, cut := range cuts {
		d.Feed(wire[prev:cut])
		got = append(got, drain(t, &d)...)
		prev = cut
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	for i, seq := range []uint16{10, 11, 12} {
		if got[i].Sequence != seq {
			t.Fatalf("frame %d seq=%d want %d", i, got[i].Sequence, seq)
		}
	}
	if string(got[2].Payload) != "third" {
		t.Fatalf("unexpected payload %q", got[2].Payload)
	}
}

func TestDecoderBufferStaysBoundedWhenChunksNeverAlign(t *testing.T) {
	frame := mustEncode(t, Frame{Type: TypeKeepAlive, Payload: bytes.Repeat([]byte{0xAB}, 100)})
	var d Decoder
	total := 0
	// every chunk is the rest of frame k plus the first byte of frame k+1
	d.Feed(frame[:1])
	for i := 0; i < 5000; i++ {
		d.Feed(append(append([]byte{}, frame[1:]...), frame[0]))
		total += len(drain(t, &d))
		if len(d.buf) > 2*len(frame) {
			t.Fatalf("after %d frames buffer holds %d bytes for %d pending", total, len(d.buf), d.Buffered())
		}
	}
	if total != 5000 || d.Buffered() != 1 {
		t.Fatalf("frames=%d buffered=%d", total, d.Buffered())
	}
}

func TestDecoderRejectsBadMarkerAndType(t *testing.T) {
	var d Decoder
	d.Feed([]byte{0x2B, 0x02, 0x00, 0x00, 0x00, 0x00})
	if _, _, err := d.Next(); !errors.Is(err, protocol.ErrBadMarker) {
		t.Fatalf("expected ErrBadMarker, got %v", err)
	}
	var d2 Decoder
	d2.Feed([]byte{0x2A, 0x09, 0x00, 0x00, 0x00, 0x00})
	if _, _, err := d2.Next(); !errors.Is(err, protocol.ErrUnknownFrameType) {
		t.Fatalf("expected ErrUnknownFrameType, got %v", err)
	}
}

func TestSequencerIncreasesAndWraps(t *testing.T) {
	s := NewSequencer(0xFFFE)
	got := []uint16{s.Next(), s.Next(), s.Next(), s.Next()}
	want := []uint16{0xFFFE, 0xFFFF, 0x0000, 0x0001}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("seq[%d]=%#x want %#x", i, got[i], want[i])
		}
	}
}

func TestParseSignon(t *testing.T) {
	cookie := tlv.MustEncode(tlv.List{tlv.String(0x0006, "cookie")})
	payload := append(StartPayload(), cookie...)
	version, tlvs, err := ParseSignon(payload)
	if err != nil {
		t.Fatalf("parse signon: %v", err)
	}
	if err := CheckVersion(version); err != nil {
		t.Fatalf("check version: %v", err)
	}
	if v, ok := tlvs.String(0x0006); !ok || v != "cookie" {
		t.Fatalf("cookie tlv missing: %q %v", v, ok)
	}

	if _, _, err := ParseSignon([]byte{0, 0}); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
	if err := CheckVersion(2); !errors.Is(err, protocol.ErrProtocolVersion) {
		t.Fatalf("expected ErrProtocolVersion, got %v", err)
	}
}

// Package flap owns the outer OSCAR framing layer: a fixed 6-byte header
// (marker, frame type, sequence, length) followed by the payload.
package flap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

const (
	Marker    byte = 0x2A
	HeaderLen      = 6
	// Version is the only FLAP version announced and accepted at signon.
	Version uint32 = 1
	// MaxPayloadLen is bounded by the u16 length field.
	MaxPayloadLen = 0xFFFF
)

// Type is the FLAP frame type (sometimes called the channel).
type Type uint8

const (
	TypeSignon    Type = 0x01
	TypeData      Type = 0x02
	TypeError     Type = 0x03
	TypeSignoff   Type = 0x04
	TypeKeepAlive Type = 0x05
)

// Types lists every valid frame type in wire order.
var Types = [...]Type{TypeSignon, TypeData, TypeError, TypeSignoff, TypeKeepAlive}

func (t Type) Valid() bool {
	return t >= TypeSignon && t <= TypeKeepAlive
}

func (t Type) String() string {
	switch t {
	case TypeSignon:
		return "signon"
	case TypeData:
		return "data"
	case TypeError:
		return "error"
	case TypeSignoff:
		return "signoff"
	case TypeKeepAlive:
		return "keepalive"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

var ErrShortSignon = fmt.Errorf("flap: signon payload shorter than version: %w", protocol.ErrTruncated)

// Frame is one complete FLAP message.
type Frame struct {
	Type     Type
	Sequence uint16
	Payload  []byte
}

// Encode renders f with its header. The length field is derived from Payload.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("flap: %w: %d bytes", protocol.ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, HeaderLen+len(f.Payload))
	EncodeHeader(buf[:HeaderLen], f.Type, f.Sequence, uint16(len(f.Payload)))
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

func EncodeHeader(dst []byte, t Type, seq uint16, length uint16) {
	dst[0] = Marker
	dst[1] = byte(t)
	binary.BigEndian.PutUint16(dst[2:4], seq)
	binary.BigEndian.PutUint16(dst[4:6], length)
}

// DecodeHeader validates the marker and frame type and returns the declared
// payload length.
func DecodeHeader(b []byte) (Type, uint16, int, error) {
	if len(b) < HeaderLen {
		return 0, 0, 0, fmt.Errorf("flap: short header: %w", protocol.ErrTruncated)
	}
	if b[0] != Marker {
		return 0, 0, 0, fmt.Errorf("%w: 0x%02x", protocol.ErrBadMarker, b[0])
	}
	t := Type(b[1])
	if !t.Valid() {
		return 0, 0, 0, fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownFrameType, b[1])
	}
	return t, binary.BigEndian.Uint16(b[2:4]), int(binary.BigEndian.Uint16(b[4:6])), nil
}

// ReadFrame blocks until one complete frame has been read from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("flap: short header: %w", protocol.ErrTruncated)
		}
		return Frame{}, err
	}
	t, seq, n, err := DecodeHeader(head[:])
	if err != nil {
		return Frame{}, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("flap: short payload: %w", protocol.ErrTruncated)
		}
		return Frame{}, err
	}
	return Frame{Type: t, Sequence: seq, Payload: payload}, nil
}

// WriteFrame writes f to w in a single call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// StartPayload is the server's version announcement sent on connect.
func StartPayload() []byte {
	return binary.BigEndian.AppendUint32(nil, Version)
}

// ParseSignon splits a SIGNON payload into its version and trailing TLVs.
func ParseSignon(payload []byte) (uint32, tlv.List, error) {
	if len(payload) < 4 {
		return 0, nil, ErrShortSignon
	}
	version := binary.BigEndian.Uint32(payload[0:4])
	tlvs, err := tlv.Decode(payload[4:])
	if err != nil {
		return version, nil, err
	}
	return version, tlvs, nil
}

// CheckVersion rejects any signon that does not announce Version.
func CheckVersion(version uint32) error {
	if version != Version {
		return fmt.Errorf("%w: got %d want %d", protocol.ErrProtocolVersion, version, Version)
	}
	return nil
}

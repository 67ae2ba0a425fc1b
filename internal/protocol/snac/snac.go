// Package snac encodes and decodes the typed envelope carried inside FLAP
// DATA frames, and maps (family, subtype) pairs to known operations.
package snac

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/oscarctl/internal/protocol"
)

// HeaderLen is family(2) + subtype(2) + flags(2) + request id(4).
const HeaderLen = 10

var ErrShortHeader = fmt.Errorf("snac: short header: %w", protocol.ErrTruncated)

// Envelope is one SNAC. RequestID correlates a reply with its request.
type Envelope struct {
	Family    uint16
	Subtype   uint16
	Flags     uint16
	RequestID uint32
	Payload   []byte
}

// Decode reads the 10-byte header and keeps the remainder as payload.
func Decode(b []byte) (Envelope, error) {
	if len(b) < HeaderLen {
		return Envelope{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	payload := make([]byte, len(b)-HeaderLen)
	copy(payload, b[HeaderLen:])
	return Envelope{
		Family:    binary.BigEndian.Uint16(b[0:2]),
		Subtype:   binary.BigEndian.Uint16(b[2:4]),
		Flags:     binary.BigEndian.Uint16(b[4:6]),
		RequestID: binary.BigEndian.Uint32(b[6:10]),
		Payload:   payload,
	}, nil
}

// Encode writes the header followed by the payload.
func Encode(e Envelope) []byte {
	buf := make([]byte, HeaderLen+len(e.Payload))
	binary.BigEndian.PutUint16(buf[0:2], e.Family)
	binary.BigEndian.PutUint16(buf[2:4], e.Subtype)
	binary.BigEndian.PutUint16(buf[4:6], e.Flags)
	binary.BigEndian.PutUint32(buf[6:10], e.RequestID)
	copy(buf[HeaderLen:], e.Payload)
	return buf
}

// New builds an envelope with zero flags.
func New(family, subtype uint16, requestID uint32, payload []byte) Envelope {
	return Envelope{Family: family, Subtype: subtype, RequestID: requestID, Payload: payload}
}

// Reply builds a response that echoes e's request id.
func (e Envelope) Reply(family, subtype uint16, payload []byte) Envelope {
	return New(family, subtype, e.RequestID, payload)
}

// Op classifies the envelope against the known operation table.
func (e Envelope) Op() Op {
	return Classify(e.Family, e.Subtype)
}

func (e Envelope) String() string {
	return fmt.Sprintf("snac(0x%02x,0x%02x) flags=0x%04x req=%d len=%d",
		e.Family, e.Subtype, e.Flags, e.RequestID, len(e.Payload))
}

// Dump renders the envelope and a hex dump of its payload for debug logs.
func (e Envelope) Dump() string {
	var b strings.Builder
	b.WriteString(e.String())
	if len(e.Payload) > 0 {
		b.WriteByte('\n')
		b.WriteString(hex.Dump(e.Payload))
	}
	return b.String()
}

// Package tlv encodes and decodes OSCAR type-length-value attribute lists.
package tlv

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/oscarctl/internal/protocol"
)

// HeaderLen is the fixed type+length prefix of every TLV.
const HeaderLen = 4

// MaxValueLen is the largest value a u16 length field can describe.
const MaxValueLen = 0xFFFF

var (
	ErrShortHeader   = fmt.Errorf("tlv: short header: %w", protocol.ErrTruncated)
	ErrShortValue    = fmt.Errorf("tlv: value crosses end of buffer: %w", protocol.ErrTruncated)
	ErrValueTooLarge = fmt.Errorf("tlv: value exceeds u16 length: %w", protocol.ErrPayloadTooLarge)
)

// TLV is one decoded attribute. The length is derived from Value.
type TLV struct {
	Type  uint16
	Value []byte
}

// List is an ordered TLV sequence. The same type may repeat; lookups return the
// first match unless All is used.
type List []TLV

// Decode consumes payload left to right until it is exhausted.
func Decode(payload []byte) (List, error) {
	list := make(List, 0, 4)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortHeader
		}
		typ := binary.BigEndian.Uint16(payload[i : i+2])
		l := int(binary.BigEndian.Uint16(payload[i+2 : i+4]))
		i += HeaderLen
		if len(payload)-i < l {
			return nil, fmt.Errorf("%w: type=0x%04x len=%d remaining=%d", ErrShortValue, typ, l, len(payload)-i)
		}
		val := make([]byte, l)
		copy(val, payload[i:i+l])
		i += l
		list = append(list, TLV{Type: typ, Value: val})
	}
	return list, nil
}

// Encode is the inverse of Decode.
func Encode(list List) ([]byte, error) {
	size := 0
	for _, t := range list {
		if len(t.Value) > MaxValueLen {
			return nil, fmt.Errorf("%w: type=0x%04x len=%d", ErrValueTooLarge, t.Type, len(t.Value))
		}
		size += HeaderLen + len(t.Value)
	}
	out := make([]byte, 0, size)
	for _, t := range list {
		out = binary.BigEndian.AppendUint16(out, t.Type)
		out = binary.BigEndian.AppendUint16(out, uint16(len(t.Value)))
		out = append(out, t.Value...)
	}
	return out, nil
}

// MustEncode encodes a list built from server-side constants. It panics on an
// oversized value, which only a programming error can produce.
func MustEncode(list List) []byte {
	b, err := Encode(list)
	if err != nil {
		panic(err)
	}
	return b
}

// First returns the first TLV of the given type.
func (l List) First(typ uint16) (TLV, bool) {
	for _, t := range l {
		if t.Type == typ {
			return t, true
		}
	}
	return TLV{}, false
}

// All returns every TLV of the given type in order.
func (l List) All(typ uint16) []TLV {
	var out []TLV
	for _, t := range l {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether at least one TLV of the given type is present.
func (l List) Has(typ uint16) bool {
	_, ok := l.First(typ)
	return ok
}

// String returns the first value of typ as a string.
func (l List) String(typ uint16) (string, bool) {
	t, ok := l.First(typ)
	if !ok {
		return "", false
	}
	return string(t.Value), true
}

// Uint16 returns the first value of typ as a big-endian u16.
func (l List) Uint16(typ uint16) (uint16, error) {
	t, ok := l.First(typ)
	if !ok {
		return 0, fmt.Errorf("tlv: missing type 0x%04x", typ)
	}
	if len(t.Value) != 2 {
		return 0, fmt.Errorf("tlv: type 0x%04x invalid u16 length: %d", typ, len(t.Value))
	}
	return binary.BigEndian.Uint16(t.Value), nil
}

// Uint32 returns the first value of typ as a big-endian u32.
func (l List) Uint32(typ uint16) (uint32, error) {
	t, ok := l.First(typ)
	if !ok {
		return 0, fmt.Errorf("tlv: missing type 0x%04x", typ)
	}
	if len(t.Value) != 4 {
		return 0, fmt.Errorf("tlv: type 0x%04x invalid u32 length: %d", typ, len(t.Value))
	}
	return binary.BigEndian.Uint32(t.Value), nil
}

func String(typ uint16, v string) TLV {
	return TLV{Type: typ, Value: []byte(v)}
}

func Bytes(typ uint16, v []byte) TLV {
	buf := make([]byte, len(v))
	copy(buf, v)
	return TLV{Type: typ, Value: buf}
}

func Uint16(typ uint16, v uint16) TLV {
	return TLV{Type: typ, Value: binary.BigEndian.AppendUint16(nil, v)}
}

func Uint32(typ uint16, v uint32) TLV {
	return TLV{Type: typ, Value: binary.BigEndian.AppendUint32(nil, v)}
}

// Empty is a zero-length TLV used as a presence marker.
func Empty(typ uint16) TLV {
	return TLV{Type: typ, Value: []byte{}}
}

package boss

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

const (
	icbmTLVMessage      uint16 = 0x0002
	icbmFragmentText    byte   = 0x01
	icbmChannelIM       uint16 = 0x0001
	icbmFragmentHeadLen        = 4
)

// ICBM is the decoded header of an outgoing instant message.
type ICBM struct {
	Cookie    [8]byte
	Channel   uint16
	Recipient string
	// Text is set for channel 1 messages carrying a text fragment.
	Text string
	TLVs tlv.List
}

// ParseSendICBM decodes (ICBM, SEND_ICBM): u64 message cookie, u16 channel,
// u8 screenname length, screenname, TLVs.
func ParseSendICBM(payload []byte) (ICBM, error) {
	var m ICBM
	if len(payload) < 11 {
		return m, fmt.Errorf("icbm: short header: %w", protocol.ErrTruncated)
	}
	copy(m.Cookie[:], payload[:8])
	m.Channel = binary.BigEndian.Uint16(payload[8:10])
	n := int(payload[10])
	rest := payload[11:]
	if len(rest) < n {
		return m, fmt.Errorf("icbm: recipient crosses end of payload: %w", protocol.ErrTruncated)
	}
	m.Recipient = string(rest[:n])
	tlvs, err := tlv.Decode(rest[n:])
	if err != nil {
		return m, err
	}
	m.TLVs = tlvs
	if m.Channel == icbmChannelIM {
		if msg, ok := tlvs.First(icbmTLVMessage); ok {
			m.Text = messageText(msg.Value)
		}
	}
	return m, nil
}

// messageText walks the channel 1 fragment list and returns the first text
// fragment, skipping its u16 charset and u16 subset.
func messageText(b []byte) string {
	for len(b) >= icbmFragmentHeadLen {
		id := b[0]
		l := int(binary.BigEndian.Uint16(b[2:4]))
		b = b[icbmFragmentHeadLen:]
		if len(b) < l {
			return ""
		}
		if id == icbmFragmentText && l >= 4 {
			return string(b[4:l])
		}
		b = b[l:]
	}
	return ""
}

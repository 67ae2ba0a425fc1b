package boss

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

// Families is the catalogue announced after signon, in announcement order.
var Families = []uint16{
	snac.FamilyGeneral,
	snac.FamilyLocation,
	snac.FamilyBuddyList,
	snac.FamilyICBM,
	snac.FamilyInvitation,
	snac.FamilyAdministrative,
	snac.FamilyPopupNotice,
	snac.FamilyPrivacy,
	snac.FamilyUserLookup,
	snac.FamilyUsageStats,
	snac.FamilySSI,
	snac.FamilyOffline,
}

func familyVersion(family uint16) uint16 {
	if family == snac.FamilyGeneral {
		return 0x0003
	}
	return 0x0001
}

func SupportedFamilies() []byte {
	out := make([]byte, 0, 2*len(Families))
	for _, f := range Families {
		out = binary.BigEndian.AppendUint16(out, f)
	}
	return out
}

// FamilyVersions lists (family, version) pairs for GENERAL/SERVER_FAMILY_VERSIONS.
func FamilyVersions() []byte {
	out := make([]byte, 0, 4*len(Families))
	for _, f := range Families {
		out = binary.BigEndian.AppendUint16(out, f)
		out = binary.BigEndian.AppendUint16(out, familyVersion(f))
	}
	return out
}

// RateInfo announces zero rate classes; limits are not enforced.
func RateInfo() []byte {
	return []byte{0x00, 0x00}
}

const (
	userClassFree uint16 = 0x0010
	userClassAIM  uint16 = 0x0080
	// ClassAIMFree is sent for every account.
	ClassAIMFree = userClassFree | userClassAIM
)

// Self-info TLV types.
const (
	userInfoClass       uint16 = 0x0001
	userInfoSignonTime  uint16 = 0x0003
	userInfoMemberSince uint16 = 0x0005
	userInfoExternalIP  uint16 = 0x000A
	userInfoOnlineTime  uint16 = 0x000F
	userInfoUnknown1E   uint16 = 0x001E
)

// SelfInfo is the user info block: u8 screenname length, screenname,
// u16 warning level, u16 TLV count, TLVs.
func SelfInfo(sess Session, now time.Time) []byte {
	online := now.Sub(sess.SignonAt)
	if online < 0 {
		online = 0
	}
	tlvs := tlv.List{
		tlv.Uint16(userInfoClass, ClassAIMFree),
		tlv.Uint32(userInfoOnlineTime, uint32(online/time.Second)),
		tlv.Uint32(userInfoSignonTime, uint32(sess.SignonAt.Unix())),
		tlv.Uint32(userInfoExternalIP, externalIP(sess.RemoteAddr)),
		tlv.Uint32(userInfoUnknown1E, 0),
		tlv.Uint32(userInfoMemberSince, uint32(sess.SignonAt.Unix())),
	}
	sn := sess.Screenname
	if len(sn) > 0xFF {
		sn = sn[:0xFF]
	}
	out := []byte{byte(len(sn))}
	out = append(out, sn...)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(len(tlvs)))
	return append(out, tlv.MustEncode(tlvs)...)
}

func externalIP(remote string) uint32 {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip)
}

// ssiLimits is the SSI rights block sent to AIM 5.x clients: a TLV list of
// per-item-type maximums.
var ssiLimits = []byte{
	0x00, 0x04, 0x00, 0x34, 0x01, 0x90, 0x00, 0x3d, 0x00, 0xc8, 0x00, 0xc8, 0x00, 0x01, 0x00, 0x01,
	0x00, 0x96, 0x00, 0x0c, 0x00, 0x0c, 0x00, 0x00, 0x00, 0x32, 0x00, 0x32, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0f, 0x00, 0x01,
	0x00, 0x28, 0x00, 0x01, 0x00, 0x0a, 0x00, 0xc8, 0x00, 0x02, 0x00, 0x02, 0x00, 0xfe, 0x00, 0x03,
	0x00, 0x02, 0x01, 0xfc, 0x00, 0x05, 0x00, 0x02, 0x00, 0x64, 0x00, 0x06, 0x00, 0x02, 0x00, 0x61,
	0x00, 0x07, 0x00, 0x02, 0x00, 0xc8, 0x00, 0x08, 0x00, 0x02, 0x00, 0x0a, 0x00, 0x09, 0x00, 0x04,
	0x00, 0x06, 0x97, 0x80, 0x00, 0x0a, 0x00, 0x04, 0x00, 0x00, 0x00, 0x0e,
}

func SSILimits() []byte {
	return append([]byte(nil), ssiLimits...)
}

// BuddyList is an empty server-stored roster: u8 version, u16 item count,
// u32 last-modified time.
func BuddyList() []byte {
	return []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

func BuddyListRights() []byte {
	return tlv.MustEncode(tlv.List{
		tlv.Uint16(0x0002, 0x02EE), // max watchers
		tlv.Uint16(0x0001, 0x0258), // max buddies
		tlv.Uint16(0x0003, 0x0200), // max online notifications
	})
}

func PrivacyRights() []byte {
	return tlv.MustEncode(tlv.List{
		tlv.Uint16(0x0002, 0x00C8), // max deny entries
		tlv.Uint16(0x0001, 0x00C8), // max permit entries
	})
}

func LocationRights() []byte {
	return tlv.MustEncode(tlv.List{
		tlv.Uint16(0x0001, 0x0400), // max profile length
		tlv.Uint16(0x0002, 0x0010), // max capabilities
		tlv.Uint16(0x0003, 0x000A),
		tlv.Uint16(0x0004, 0x1000),
	})
}

// ICBMParams: channel 2, flags 3, max message 512 bytes, max sender and
// receiver warning 999, minimum message interval 1000ms.
func ICBMParams() []byte {
	return []byte{
		0x00, 0x02,
		0x00, 0x00, 0x00, 0x03,
		0x02, 0x00,
		0x03, 0xE7,
		0x03, 0xE7,
		0x00, 0x00, 0x03, 0xE8,
	}
}

package auth

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

// TLV types carried by the AUTH family.
const (
	TLVScreenname        uint16 = 0x0001
	TLVClientID          uint16 = 0x0003
	TLVErrorURL          uint16 = 0x0004
	TLVBossAddr          uint16 = 0x0005
	TLVCookie            uint16 = 0x0006
	TLVErrorCode         uint16 = 0x0008
	TLVEmail             uint16 = 0x0011
	TLVPasswordHash      uint16 = 0x0025
	TLVLatestBetaBuild   uint16 = 0x0040
	TLVLatestBetaVersion uint16 = 0x0043
	TLVLatestBetaDigest  uint16 = 0x0048
	TLVUseNewHash        uint16 = 0x004C
	TLVPasswordChangeURL uint16 = 0x0054
)

// ErrIncorrectNickOrPassword is the only failure code sent to clients.
const ErrIncorrectNickOrPassword uint16 = 0x0005

// LoginRequest is the decoded payload of (AUTH, LOGIN_REQUEST).
type LoginRequest struct {
	Screenname string
	Digest     []byte
	NewHash    bool
	ClientID   string
}

// ParseChallengeRequest extracts the screenname from (AUTH, MD5_AUTH_REQUEST).
func ParseChallengeRequest(payload []byte) (string, error) {
	tlvs, err := tlv.Decode(payload)
	if err != nil {
		return "", err
	}
	sn, ok := tlvs.String(TLVScreenname)
	if !ok || sn == "" {
		return "", fmt.Errorf("auth: challenge request without screenname: %w", protocol.ErrTruncated)
	}
	return sn, nil
}

func ParseLoginRequest(payload []byte) (LoginRequest, error) {
	tlvs, err := tlv.Decode(payload)
	if err != nil {
		return LoginRequest{}, err
	}
	sn, ok := tlvs.String(TLVScreenname)
	if !ok || sn == "" {
		return LoginRequest{}, fmt.Errorf("auth: login request without screenname: %w", protocol.ErrTruncated)
	}
	hash, ok := tlvs.First(TLVPasswordHash)
	if !ok {
		return LoginRequest{}, fmt.Errorf("auth: login request without password hash: %w", protocol.ErrTruncated)
	}
	clientID, _ := tlvs.String(TLVClientID)
	return LoginRequest{
		Screenname: sn,
		Digest:     hash.Value,
		NewHash:    tlvs.Has(TLVUseNewHash),
		ClientID:   clientID,
	}, nil
}

// ChallengePayload is the MD5_AUTH_RESPONSE body: u16 length then the salt.
func ChallengePayload(salt string) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(salt)))
	return append(out, salt...)
}

// ParseChallengePayload is the client-side inverse of ChallengePayload.
func ParseChallengePayload(payload []byte) (string, error) {
	if len(payload) < 2 {
		return "", fmt.Errorf("auth: short challenge: %w", protocol.ErrTruncated)
	}
	n := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload)-2 < n {
		return "", fmt.Errorf("auth: challenge crosses end of payload: %w", protocol.ErrTruncated)
	}
	return string(payload[2 : 2+n]), nil
}

// LoginSuccess carries everything a client needs to reach the session
// service.
type LoginSuccess struct {
	Screenname        string
	Email             string
	BossAddr          string
	Cookie            []byte
	PasswordChangeURL string
	LatestBetaBuild   uint32
	LatestBetaVersion string
	LatestBetaDigest  string
}

func (s LoginSuccess) TLVs() tlv.List {
	return tlv.List{
		tlv.String(TLVScreenname, s.Screenname),
		tlv.String(TLVBossAddr, s.BossAddr),
		tlv.Bytes(TLVCookie, s.Cookie),
		tlv.String(TLVEmail, s.Email),
		tlv.String(TLVPasswordChangeURL, s.PasswordChangeURL),
		tlv.Uint32(TLVLatestBetaBuild, s.LatestBetaBuild),
		tlv.String(TLVLatestBetaVersion, s.LatestBetaVersion),
		tlv.String(TLVLatestBetaDigest, s.LatestBetaDigest),
	}
}

func LoginFailure(screenname, errorURL string) tlv.List {
	return tlv.List{
		tlv.String(TLVScreenname, screenname),
		tlv.Uint16(TLVErrorCode, ErrIncorrectNickOrPassword),
		tlv.String(TLVErrorURL, errorURL),
	}
}

package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/oscarctl/internal/auth"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

const clientID = "oscarprobe"

// LoginError is a failure reply from the auth service.
type LoginError struct {
	Code uint16
	URL  string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("client: login refused: code=0x%04x", e.Code)
}

// LoginResult is what a successful login hands to the session step.
type LoginResult struct {
	Screenname string
	BossAddr   string
	Cookie     []byte
	Email      string
}

// Login runs the challenge and login exchange against the auth service at
// addr. The connection is closed before returning.
func Login(ctx context.Context, addr, screenname, password string, cfg Config) (LoginResult, error) {
	c, err := Dial(ctx, addr, cfg)
	if err != nil {
		return LoginResult{}, err
	}
	defer c.Close()

	if err := c.Signon(nil); err != nil {
		return LoginResult{}, err
	}

	req := tlv.MustEncode(tlv.List{tlv.String(auth.TLVScreenname, screenname)})
	if err := c.SendSNAC(snac.New(snac.FamilyAuth, snac.AuthMD5Request, 1, req)); err != nil {
		return LoginResult{}, err
	}
	env, err := c.Expect(snac.FamilyAuth, snac.AuthMD5Response)
	if err != nil {
		return LoginResult{}, err
	}
	salt, err := auth.ParseChallengePayload(env.Payload)
	if err != nil {
		return LoginResult{}, err
	}

	login := tlv.MustEncode(tlv.List{
		tlv.String(auth.TLVScreenname, screenname),
		tlv.String(auth.TLVClientID, clientID),
		tlv.Bytes(auth.TLVPasswordHash, auth.Digest(password, salt)),
		tlv.Empty(auth.TLVUseNewHash),
	})
	if err := c.SendSNAC(snac.New(snac.FamilyAuth, snac.AuthLoginRequest, 2, login)); err != nil {
		return LoginResult{}, err
	}
	env, err = c.Expect(snac.FamilyAuth, snac.AuthLoginReply)
	if err != nil {
		return LoginResult{}, err
	}
	return ParseLoginReply(env.Payload)
}

// ParseLoginReply decodes a LOGIN_REPLY body into a result or a *LoginError.
func ParseLoginReply(payload []byte) (LoginResult, error) {
	tlvs, err := tlv.Decode(payload)
	if err != nil {
		return LoginResult{}, err
	}
	if tlvs.Has(auth.TLVErrorCode) {
		code, err := tlvs.Uint16(auth.TLVErrorCode)
		if err != nil {
			return LoginResult{}, err
		}
		url, _ := tlvs.String(auth.TLVErrorURL)
		return LoginResult{}, &LoginError{Code: code, URL: url}
	}

	var res LoginResult
	res.Screenname, _ = tlvs.String(auth.TLVScreenname)
	res.Email, _ = tlvs.String(auth.TLVEmail)
	addr, ok := tlvs.String(auth.TLVBossAddr)
	if !ok {
		return LoginResult{}, errors.New("client: login reply without session address")
	}
	cookie, ok := tlvs.First(auth.TLVCookie)
	if !ok {
		return LoginResult{}, errors.New("client: login reply without cookie")
	}
	res.BossAddr = addr
	res.Cookie = cookie.Value
	return res, nil
}

func parseFamilies(payload []byte) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("client: odd family list length %d", len(payload))
	}
	out := make([]uint16, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		out = append(out, binary.BigEndian.Uint16(payload[i:]))
	}
	return out, nil
}

type RequestIDMismatch struct {
	Want, Got uint32
}

func (e *RequestIDMismatch) Error() string {
	return fmt.Sprintf("client: reply request id %d, want %d", e.Got, e.Want)
}

package client

import (
	"context"

	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
)

// cookieTLV carries the login cookie in the session SIGNON frame.
const cookieTLV uint16 = 0x0006

// Session is a live connection to the session service.
type Session struct {
	*Conn
	Families []uint16
	reqID    uint32
}

// OpenSession presents the login cookie to the session service and reads the
// supported family list.
func OpenSession(ctx context.Context, res LoginResult, cfg Config) (*Session, error) {
	c, err := Dial(ctx, res.BossAddr, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Signon(tlv.List{tlv.Bytes(cookieTLV, res.Cookie)}); err != nil {
		_ = c.Close()
		return nil, err
	}
	env, err := c.Expect(snac.FamilyGeneral, snac.GeneralSupportedFamilies)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	families, err := parseFamilies(env.Payload)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Session{Conn: c, Families: families, reqID: 100}, nil
}

// Request sends one SNAC and returns the reply, which must carry the same
// request id.
func (s *Session) Request(family, subtype uint16, payload []byte) (snac.Envelope, error) {
	s.reqID++
	id := s.reqID
	if err := s.SendSNAC(snac.New(family, subtype, id, payload)); err != nil {
		return snac.Envelope{}, err
	}
	env, err := s.ReadSNAC()
	if err != nil {
		return env, err
	}
	if env.RequestID != id {
		return env, &RequestIDMismatch{Want: id, Got: env.RequestID}
	}
	return env, nil
}

// Bootstrap performs the standard post-signon exchange and marks the client
// ready.
func (s *Session) Bootstrap() error {
	steps := []struct{ family, subtype uint16 }{
		{snac.FamilyGeneral, snac.GeneralClientFamilyVersions},
		{snac.FamilyGeneral, snac.GeneralRateInfoRequest},
		{snac.FamilyGeneral, snac.GeneralSelfInfoRequest},
		{snac.FamilySSI, snac.SSILimitsRequest},
		{snac.FamilySSI, snac.SSIBuddyListRequest},
		{snac.FamilyLocation, snac.LocationRightsRequest},
		{snac.FamilyBuddyList, snac.BuddyListRightsRequest},
		{snac.FamilyICBM, snac.ICBMParamRequest},
		{snac.FamilyPrivacy, snac.PrivacyRightsRequest},
	}
	for _, st := range steps {
		if _, err := s.Request(st.family, st.subtype, nil); err != nil {
			return err
		}
	}
	s.reqID++
	return s.SendSNAC(snac.New(snac.FamilyGeneral, snac.GeneralClientReady, s.reqID, nil))
}

// Package boss is the session service. It admits clients holding a cookie
// from the auth service and answers the fixed set of capability queries a
// client makes while bringing its session up.
package boss

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/oscarctl/internal/observability"
	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/flap"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/store"
)

// TLVCookie carries the auth cookie in the BOSS SIGNON payload.
const TLVCookie uint16 = 0x0006

// supportedFamiliesRequestID is the request id on the unsolicited family
// announcement.
const supportedFamiliesRequestID uint32 = 1

type handler func(ctx context.Context, c *oscar.Conn, sess *Session, env snac.Envelope) error

type Service struct {
	cookies  store.Cookies
	registry *Registry
	now      func() time.Time
	table    map[snac.Op]handler
}

func NewService(cookies store.Cookies, registry *Registry) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Service{cookies: cookies, registry: registry, now: time.Now}
	s.table = map[snac.Op]handler{
		snac.OpClientFamilyVersions:   s.reply(snac.FamilyGeneral, snac.GeneralServerFamilyVersions, FamilyVersions),
		snac.OpRateInfoRequest:        s.reply(snac.FamilyGeneral, snac.GeneralRateInfoResponse, RateInfo),
		snac.OpSelfInfoRequest:        s.selfInfo,
		snac.OpSSILimitsRequest:       s.reply(snac.FamilySSI, snac.SSILimitsResponse, SSILimits),
		snac.OpSSIBuddyListRequest:    s.reply(snac.FamilySSI, snac.SSIBuddyListResponse, BuddyList),
		snac.OpBuddyListRightsRequest: s.reply(snac.FamilyBuddyList, snac.BuddyListRightsReply, BuddyListRights),
		snac.OpPrivacyRightsRequest:   s.reply(snac.FamilyPrivacy, snac.PrivacyRightsReply, PrivacyRights),
		snac.OpLocationRightsRequest:  s.reply(snac.FamilyLocation, snac.LocationRightsReply, LocationRights),
		snac.OpICBMParamRequest:       s.reply(snac.FamilyICBM, snac.ICBMParamReply, ICBMParams),
		snac.OpClientReady:            s.clientReady,
		snac.OpClientStatsReport:      consume,
		snac.OpICBMSend:               s.sendICBM,
	}
	return s
}

func (s *Service) Name() string { return "boss" }

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) OnConnection(c *oscar.Conn) {
	c.Handle(flap.TypeSignon, s.handleSignon)
	c.Handle(flap.TypeData, s.handleData)
	c.Handle(flap.TypeSignoff, func(context.Context, *oscar.Conn, flap.Frame) error {
		return oscar.ErrSignoff
	})
	c.OnClose(func(error) {
		s.registry.Remove(c.ID())
	})
	if err := c.SendStart(); err != nil {
		c.Logger().Warn().Err(err).Msg("send start frame")
		c.Close(err)
	}
}

func (s *Service) handleSignon(ctx context.Context, c *oscar.Conn, f flap.Frame) error {
	version, tlvs, err := flap.ParseSignon(f.Payload)
	if err != nil {
		return err
	}
	if err := flap.CheckVersion(version); err != nil {
		return err
	}
	cookie, ok := tlvs.First(TLVCookie)
	if !ok {
		return fmt.Errorf("%w: signon without cookie", protocol.ErrAuthentication)
	}
	sn, err := s.cookies.Validate(ctx, cookie.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrAuthentication, err)
	}

	sess := &Session{
		ConnID:     c.ID(),
		Screenname: sn,
		RemoteAddr: c.RemoteAddr(),
		SignonAt:   s.now(),
	}
	c.SetValue(sess)
	s.registry.Add(*sess)
	c.Logger().Info().Str("screenname", sn).Msg("session admitted")

	return c.SendSNAC(snac.New(snac.FamilyGeneral, snac.GeneralSupportedFamilies, supportedFamiliesRequestID, SupportedFamilies()))
}

func (s *Service) handleData(ctx context.Context, c *oscar.Conn, f flap.Frame) error {
	env, err := snac.Decode(f.Payload)
	if err != nil {
		return err
	}
	sess, ok := c.Value().(*Session)
	if !ok {
		return fmt.Errorf("%w: data without session", protocol.ErrUnexpectedFrame)
	}
	op := env.Op()
	observability.RecordSNAC(s.Name(), op.String())
	s.registry.CountSNAC(c.ID())

	h, ok := s.table[op]
	if !ok {
		c.Logger().Info().
			Str("screenname", sess.Screenname).
			Stringer("snac", env).
			Str("payload", env.Dump()).
			Msg("unhandled snac")
		return fmt.Errorf("%w: %s", protocol.ErrUnknownOperation, env)
	}
	return h(ctx, c, sess, env)
}

// reply adapts a canned payload builder into a handler that echoes the
// request id.
func (s *Service) reply(family, subtype uint16, build func() []byte) handler {
	return func(_ context.Context, c *oscar.Conn, _ *Session, env snac.Envelope) error {
		return c.SendSNAC(env.Reply(family, subtype, build()))
	}
}

func consume(context.Context, *oscar.Conn, *Session, snac.Envelope) error {
	return nil
}

func (s *Service) selfInfo(_ context.Context, c *oscar.Conn, sess *Session, env snac.Envelope) error {
	return c.SendSNAC(env.Reply(snac.FamilyGeneral, snac.GeneralSelfInfoResponse, SelfInfo(*sess, s.now())))
}

func (s *Service) clientReady(_ context.Context, c *oscar.Conn, sess *Session, _ snac.Envelope) error {
	sess.Online = true
	s.registry.MarkOnline(c.ID())
	c.Logger().Info().Str("screenname", sess.Screenname).Msg("client online")
	return nil
}

// sendICBM records the message. Relaying to the recipient is not supported.
func (s *Service) sendICBM(_ context.Context, c *oscar.Conn, sess *Session, env snac.Envelope) error {
	msg, err := ParseSendICBM(env.Payload)
	if err != nil {
		c.Logger().Warn().Err(err).Str("screenname", sess.Screenname).Msg("malformed icbm")
		return nil
	}
	c.Logger().Info().
		Str("from", sess.Screenname).
		Str("to", msg.Recipient).
		Uint16("channel", msg.Channel).
		Str("text", msg.Text).
		Bool("recipient_online", s.registry.Online(msg.Recipient)).
		Msg("icbm not relayed")
	return nil
}

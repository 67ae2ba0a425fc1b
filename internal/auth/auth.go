// Package auth is the signon service: it challenges a client with a random
// salt, checks the salted MD5 login digest against the credential store, and
// hands successful logins a cookie plus the session service address.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/oscarctl/internal/observability"
	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/flap"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
	"github.com/danmuck/oscarctl/internal/store"
)

type Config struct {
	// BossAddr is the host:port clients dial after a successful login.
	BossAddr          string
	PasswordChangeURL string
	ErrorURL          string
	LatestBetaBuild   uint32
	LatestBetaVersion string
	LatestBetaDigest  string
}

func DefaultConfig() Config {
	return Config{
		BossAddr:          "127.0.0.1:5191",
		PasswordChangeURL: "http://127.0.0.1:8090/password",
		ErrorURL:          "http://127.0.0.1:8090/help/login",
		LatestBetaBuild:   0,
		LatestBetaVersion: "8.1.4",
		LatestBetaDigest:  strings.Repeat("a", 32),
	}
}

// Service implements oscar.Service for the signon endpoint.
type Service struct {
	cfg     Config
	creds   store.Credentials
	cookies store.Cookies
}

func NewService(cfg Config, creds store.Credentials, cookies store.Cookies) *Service {
	if strings.TrimSpace(cfg.BossAddr) == "" {
		cfg.BossAddr = DefaultConfig().BossAddr
	}
	return &Service{cfg: cfg, creds: creds, cookies: cookies}
}

func (s *Service) Name() string { return "auth" }

// handshake is the per-connection challenge state, owned by the Conn.
type handshake struct {
	salt       string
	screenname string
	challenged bool
}

func (s *Service) OnConnection(c *oscar.Conn) {
	c.SetValue(&handshake{})
	c.Handle(flap.TypeSignon, s.handleSignon)
	c.Handle(flap.TypeData, s.handleData)
	c.Handle(flap.TypeSignoff, func(context.Context, *oscar.Conn, flap.Frame) error {
		return oscar.ErrSignoff
	})
	if err := c.SendStart(); err != nil {
		c.Logger().Warn().Err(err).Msg("send start frame")
		c.Close(err)
	}
}

func (s *Service) handleSignon(_ context.Context, c *oscar.Conn, f flap.Frame) error {
	version, _, err := flap.ParseSignon(f.Payload)
	if err != nil {
		return err
	}
	return flap.CheckVersion(version)
}

func (s *Service) handleData(ctx context.Context, c *oscar.Conn, f flap.Frame) error {
	env, err := snac.Decode(f.Payload)
	if err != nil {
		return err
	}
	op := env.Op()
	observability.RecordSNAC(s.Name(), op.String())
	switch op {
	case snac.OpAuthMD5Request:
		return s.handleChallenge(c, env)
	case snac.OpAuthLoginRequest:
		return s.handleLogin(ctx, c, env)
	default:
		c.Logger().Info().Stringer("snac", env).Msg("unhandled snac")
		return fmt.Errorf("%w: %s", protocol.ErrUnknownOperation, env)
	}
}

func state(c *oscar.Conn) *handshake {
	hs, ok := c.Value().(*handshake)
	if !ok {
		hs = &handshake{}
		c.SetValue(hs)
	}
	return hs
}

func (s *Service) handleChallenge(c *oscar.Conn, env snac.Envelope) error {
	sn, err := ParseChallengeRequest(env.Payload)
	if err != nil {
		return err
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	hs := state(c)
	hs.salt = salt
	hs.screenname = sn
	hs.challenged = true

	c.Logger().Debug().Str("screenname", sn).Msg("issued challenge")
	return c.SendSNAC(env.Reply(snac.FamilyAuth, snac.AuthMD5Response, ChallengePayload(salt)))
}

func (s *Service) handleLogin(ctx context.Context, c *oscar.Conn, env snac.Envelope) error {
	hs := state(c)
	if !hs.challenged {
		return protocol.ErrMissingChallenge
	}
	req, err := ParseLoginRequest(env.Payload)
	if err != nil {
		return err
	}
	if !req.NewHash {
		return fmt.Errorf("%w: client did not set the new hash marker", protocol.ErrUnsupportedHash)
	}
	if req.Screenname != hs.screenname {
		return fmt.Errorf("%w: challenged %q, login for %q", protocol.ErrIdentityMismatch, hs.screenname, req.Screenname)
	}
	salt := hs.salt
	// one login attempt per challenge
	hs.challenged = false
	hs.salt = ""

	log := c.Logger().With().Str("screenname", req.Screenname).Str("client_id", req.ClientID).Logger()

	acct, known, err := s.lookup(ctx, req.Screenname)
	if err != nil {
		return err
	}
	expected := Digest(acct.Password, salt)
	match := subtle.ConstantTimeCompare(expected, req.Digest) == 1
	if !known || !match {
		observability.RecordLogin(false)
		log.Warn().Bool("known", known).Msg("login failed")
		reply := LoginFailure(req.Screenname, s.cfg.ErrorURL)
		return c.SendSNAC(env.Reply(snac.FamilyAuth, snac.AuthLoginReply, tlv.MustEncode(reply)))
	}

	cookie, err := s.cookies.Issue(ctx, acct.Screenname)
	if err != nil {
		return fmt.Errorf("auth: issue cookie: %w", err)
	}
	observability.RecordLogin(true)
	log.Info().Str("boss_addr", s.cfg.BossAddr).Msg("login accepted")

	reply := LoginSuccess{
		Screenname:        acct.Screenname,
		Email:             acct.Email,
		BossAddr:          s.cfg.BossAddr,
		Cookie:            cookie,
		PasswordChangeURL: s.cfg.PasswordChangeURL,
		LatestBetaBuild:   s.cfg.LatestBetaBuild,
		LatestBetaVersion: s.cfg.LatestBetaVersion,
		LatestBetaDigest:  s.cfg.LatestBetaDigest,
	}
	return c.SendSNAC(env.Reply(snac.FamilyAuth, snac.AuthLoginReply, tlv.MustEncode(reply.TLVs())))
}

// lookup resolves screenname. An unknown account still yields a zero Account
// so the digest is computed either way.
func (s *Service) lookup(ctx context.Context, screenname string) (store.Account, bool, error) {
	acct, err := s.creds.Lookup(ctx, screenname)
	if errors.Is(err, store.ErrNotFound) {
		return store.Account{}, false, nil
	}
	if err != nil {
		return store.Account{}, false, fmt.Errorf("auth: credential lookup: %w", err)
	}
	return acct, true, nil
}

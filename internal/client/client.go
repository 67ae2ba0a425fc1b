// Package client speaks the client side of the OSCAR login and session
// handshakes. It drives the command-line client and the end-to-end tests.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/oscarctl/internal/protocol/flap"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrNoStartFrame    = errors.New("client: server did not send a start frame")
	ErrSignedOff       = errors.New("client: server signed off")
)

type TLSConfig struct {
	Enabled            bool
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

type Config struct {
	ConnectTimeout time.Duration
	// IOTimeout bounds every read and write after connect.
	IOTimeout time.Duration
	TLS       TLSConfig
	// MaxConnectAttempts of zero or one means a single attempt.
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      10 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = def.IOTimeout
	}
	return c
}

// Conn is one client FLAP channel.
type Conn struct {
	nc  net.Conn
	cfg Config
	seq *flap.Sequencer
}

// Dial connects to addr and consumes the server's start frame. Failed
// attempts are retried with backoff up to cfg.MaxConnectAttempts.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 1; ; attempt++ {
		c, err := dialOnce(ctx, addr, cfg)
		if err == nil {
			return c, nil
		}
		if attempt >= cfg.MaxConnectAttempts || ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("dial failed, retrying")
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func dialOnce(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.TLS.Enabled {
		tlsCfg, err := clientTLSConfig(addr, cfg.TLS)
		if err != nil {
			_ = nc.Close()
			return nil, err
		}
		tc := tls.Client(nc, tlsCfg)
		hctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := tc.HandshakeContext(hctx); err != nil {
			_ = nc.Close()
			return nil, err
		}
		nc = tc
	}

	c := &Conn{nc: nc, cfg: cfg, seq: flap.NewSequencer(0)}
	start, err := c.ReadFrame()
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	if start.Type != flap.TypeSignon {
		_ = nc.Close()
		return nil, fmt.Errorf("%w: got %s", ErrNoStartFrame, start.Type)
	}
	log.Debug().Str("addr", addr).Bool("tls", cfg.TLS.Enabled).Msg("client connected")
	return c, nil
}

func clientTLSConfig(addr string, t TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(t.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(t.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("client: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) Send(t flap.Type, payload []byte) error {
	_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.IOTimeout))
	return flap.WriteFrame(c.nc, flap.Frame{Type: t, Sequence: c.seq.Next(), Payload: payload})
}

// Signon sends the client SIGNON frame with the protocol version and tlvs.
func (c *Conn) Signon(tlvs tlv.List) error {
	body, err := tlv.Encode(tlvs)
	if err != nil {
		return err
	}
	return c.Send(flap.TypeSignon, append(flap.StartPayload(), body...))
}

func (c *Conn) SendSNAC(env snac.Envelope) error {
	return c.Send(flap.TypeData, snac.Encode(env))
}

// Signoff tells the server the client is leaving and closes the socket.
func (c *Conn) Signoff() error {
	err := c.Send(flap.TypeSignoff, nil)
	if cerr := c.nc.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Conn) ReadFrame() (flap.Frame, error) {
	_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.IOTimeout))
	return flap.ReadFrame(c.nc)
}

// ReadSNAC returns the next SNAC, skipping keepalives.
func (c *Conn) ReadSNAC() (snac.Envelope, error) {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return snac.Envelope{}, err
		}
		switch f.Type {
		case flap.TypeData:
			return snac.Decode(f.Payload)
		case flap.TypeKeepAlive:
			continue
		case flap.TypeSignoff:
			return snac.Envelope{}, ErrSignedOff
		default:
			return snac.Envelope{}, fmt.Errorf("client: unexpected %s frame", f.Type)
		}
	}
}

// Expect reads one SNAC and checks its family and subtype.
func (c *Conn) Expect(family, subtype uint16) (snac.Envelope, error) {
	env, err := c.ReadSNAC()
	if err != nil {
		return env, err
	}
	if env.Family != family || env.Subtype != subtype {
		return env, fmt.Errorf("client: expected 0x%04x/0x%04x, got %s", family, subtype, env)
	}
	return env, nil
}

package oscar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/oscarctl/internal/observability"
	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/flap"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSignoff is returned by a handler to end the connection cleanly.
var ErrSignoff = errors.New("oscar: client signed off")

const readChunkSize = 4096

// State is the lifecycle position of a Conn.
type State int32

const (
	// StateConnected: accepted, start frame not yet sent.
	StateConnected State = iota
	// StateGreeted: start frame sent, waiting for the client SIGNON.
	StateGreeted
	// StateEstablished: signon accepted, DATA frames flow.
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateGreeted:
		return "greeted"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// HandlerFunc processes one decoded frame. A returned error closes the
// connection unless protocol.IsFatal reports it as recoverable.
type HandlerFunc func(ctx context.Context, c *Conn, f flap.Frame) error

// ConnConfig bounds transport I/O for one connection. Zero durations disable
// the corresponding deadline.
type ConnConfig struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Conn owns one accepted transport connection: its reassembly buffer, its
// outgoing sequence counter and the service state attached to it.
type Conn struct {
	id      string
	service string
	nc      net.Conn
	cfg     ConnConfig
	log     zerolog.Logger

	dec      flap.Decoder
	seq      *flap.Sequencer
	handlers map[flap.Type]HandlerFunc
	value    any

	state atomic.Int32

	writeMu sync.Mutex

	closeOnce sync.Once
	closeMu   sync.Mutex
	closeErr  error
	onClose   []func(error)
	done      chan struct{}
}

// NewConn wraps nc. service names the owning service in logs and metrics.
func NewConn(nc net.Conn, service string, cfg ConnConfig, logger zerolog.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:       id,
		service:  service,
		nc:       nc,
		cfg:      cfg,
		seq:      flap.NewSequencer(0),
		handlers: make(map[flap.Type]HandlerFunc),
		done:     make(chan struct{}),
	}
	c.log = logger.With().
		Str("service", service).
		Str("conn_id", id).
		Str("remote", remoteString(nc)).
		Logger()
	c.state.Store(int32(StateConnected))
	observability.RecordConnOpened(service)
	return c
}

func remoteString(nc net.Conn) string {
	if nc == nil || nc.RemoteAddr() == nil {
		return ""
	}
	return nc.RemoteAddr().String()
}

func (c *Conn) ID() string                         { return c.id }
func (c *Conn) Service() string                    { return c.service }
func (c *Conn) RemoteAddr() string                 { return remoteString(c.nc) }
func (c *Conn) Logger() *zerolog.Logger            { return &c.log }
func (c *Conn) State() State                       { return State(c.state.Load()) }
func (c *Conn) Done() <-chan struct{}              { return c.done }
func (c *Conn) Value() any                         { return c.value }
func (c *Conn) SetValue(v any)                     { c.value = v }
func (c *Conn) Handle(t flap.Type, fn HandlerFunc) { c.handlers[t] = fn }

// OnClose registers fn to run once the connection has closed. fn receives the
// close reason, nil for a clean close.
func (c *Conn) OnClose(fn func(error)) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Err returns the reason the connection closed, if any.
func (c *Conn) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// SendStart emits the FLAP version announcement. It must precede any frame
// the client sends.
func (c *Conn) SendStart() error {
	if c.State() != StateConnected {
		return fmt.Errorf("%w: start frame in state %s", protocol.ErrUnexpectedFrame, c.State())
	}
	if err := c.Send(flap.TypeSignon, flap.StartPayload()); err != nil {
		return err
	}
	c.state.CompareAndSwap(int32(StateConnected), int32(StateGreeted))
	return nil
}

// Send frames payload with the next sequence number and writes it.
func (c *Conn) Send(t flap.Type, payload []byte) error {
	if c.State() == StateClosed {
		return protocol.ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	b, err := flap.Encode(flap.Frame{Type: t, Sequence: c.seq.Next(), Payload: payload})
	if err != nil {
		return err
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := c.nc.Write(b); err != nil {
		return err
	}
	observability.RecordFrame(c.service, "out", t.String())
	return nil
}

// SendSNAC writes env inside a DATA frame.
func (c *Conn) SendSNAC(env snac.Envelope) error {
	c.log.Debug().Stringer("snac", env).Msg("send snac")
	return c.Send(flap.TypeData, snac.Encode(env))
}

// Feed pushes a transport chunk through reassembly and dispatches every
// complete frame it yields, in order. A non-nil error is connection-fatal.
func (c *Conn) Feed(ctx context.Context, chunk []byte) error {
	c.dec.Feed(chunk)
	for {
		if c.State() == StateClosed {
			return protocol.ErrConnClosed
		}
		f, ok, err := c.dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.dispatch(ctx, f); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, f flap.Frame) error {
	observability.RecordFrame(c.service, "in", f.Type.String())

	state := c.State()
	switch state {
	case StateConnected:
		return fmt.Errorf("%w: %s frame before start frame", protocol.ErrUnexpectedFrame, f.Type)
	case StateGreeted:
		if f.Type == flap.TypeData {
			return fmt.Errorf("%w: data frame before signon", protocol.ErrUnexpectedFrame)
		}
	case StateEstablished:
		if f.Type == flap.TypeSignon {
			return fmt.Errorf("%w: repeated signon", protocol.ErrUnexpectedFrame)
		}
	}

	fn, ok := c.handlers[f.Type]
	if !ok {
		c.log.Debug().Stringer("type", f.Type).Uint16("seq", f.Sequence).Int("len", len(f.Payload)).Msg("unhandled frame")
	} else if err := fn(ctx, c, f); err != nil {
		if protocol.IsFatal(err) {
			return err
		}
		c.log.Debug().Err(err).Stringer("type", f.Type).Msg("ignored")
	}

	if state == StateGreeted && f.Type == flap.TypeSignon {
		c.state.CompareAndSwap(int32(StateGreeted), int32(StateEstablished))
	}
	return nil
}

// Serve drives the connection until the peer disconnects, a fatal protocol
// error occurs, or ctx is cancelled. The start frame is sent first if the
// service has not already sent it. Serve always closes the connection before
// returning; the returned error is nil for a clean close.
func (c *Conn) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.Close(ctx.Err())
	})
	defer stop()

	if c.State() == StateConnected {
		if err := c.SendStart(); err != nil {
			c.Close(err)
			return cleanReason(err)
		}
	}

	buf := make([]byte, readChunkSize)
	for {
		if c.cfg.IdleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			if ferr := c.Feed(ctx, buf[:n]); ferr != nil {
				if c.State() != StateClosed && cleanReason(ferr) != nil {
					c.log.Warn().Err(ferr).Msg("protocol violation")
				}
				c.Close(ferr)
				return cleanReason(c.Err())
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.Close(err)
			return cleanReason(c.Err())
		}
	}
}

// Close tears down the transport. Only the first call records a reason.
func (c *Conn) Close(reason error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		_ = c.nc.Close()

		c.closeMu.Lock()
		c.closeErr = reason
		hooks := c.onClose
		c.onClose = nil
		c.closeMu.Unlock()

		observability.RecordConnClosed(c.service, closeLabel(reason))
		c.log.Info().AnErr("reason", reason).Msg("connection closed")
		close(c.done)
		for _, fn := range hooks {
			fn(reason)
		}
	})
}

func cleanReason(err error) error {
	switch {
	case err == nil,
		errors.Is(err, ErrSignoff),
		errors.Is(err, context.Canceled),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, protocol.ErrConnClosed):
		return nil
	}
	return err
}

func closeLabel(err error) string {
	var ne net.Error
	switch {
	case err == nil, errors.Is(err, ErrSignoff):
		return "clean"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "shutdown"
	case errors.As(err, &ne) && ne.Timeout():
		return "idle_timeout"
	case errors.Is(err, protocol.ErrAuthentication):
		return "auth"
	case errors.Is(err, protocol.ErrTruncated),
		errors.Is(err, protocol.ErrBadMarker),
		errors.Is(err, protocol.ErrUnknownFrameType),
		errors.Is(err, protocol.ErrUnexpectedFrame),
		errors.Is(err, protocol.ErrProtocolVersion),
		errors.Is(err, protocol.ErrIdentityMismatch),
		errors.Is(err, protocol.ErrMissingChallenge),
		errors.Is(err, protocol.ErrUnsupportedHash):
		return "protocol"
	default:
		return "transport"
	}
}

package oscar

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is the protocol logic behind one listening endpoint.
type Service interface {
	Name() string
	// OnConnection runs once per accepted connection before any frames are
	// fed. It registers handlers and normally sends the start frame.
	OnConnection(c *Conn)
}

// TLSConfig enables TLS on the listener when both files are set.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

func (t TLSConfig) Enabled() bool {
	return strings.TrimSpace(t.CertFile) != "" && strings.TrimSpace(t.KeyFile) != ""
}

type ServerConfig struct {
	ListenAddr string
	Conn       ConnConfig
	TLS        TLSConfig
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":5190",
		Conn: ConnConfig{
			IdleTimeout:  5 * time.Minute,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Server is the accept loop shared by every service. It owns no protocol
// logic.
type Server struct {
	svc Service
	cfg ServerConfig
	log zerolog.Logger

	connsMu sync.Mutex
	conns   map[*Conn]struct{}
	wg      sync.WaitGroup

	active atomic.Int64
}

func NewServer(svc Service, cfg ServerConfig) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServerConfig().ListenAddr
	}
	return &Server{
		svc:   svc,
		cfg:   cfg,
		log:   log.With().Str("service", svc.Name()).Logger(),
		conns: make(map[*Conn]struct{}),
	}
}

// Active reports the number of open connections.
func (s *Server) Active() int64 {
	return s.active.Load()
}

func (s *Server) Name() string       { return s.svc.Name() }
func (s *Server) ListenAddr() string { return s.cfg.ListenAddr }

// ListenAndServe binds the configured address and blocks until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds a TCP listener, wrapped in TLS when configured.
func (s *Server) Listen() (net.Listener, error) {
	if !s.cfg.TLS.Enabled() {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	})
}

// ErrListenerFailed closes the open connections of a server whose listener
// hit a permanent accept error.
var ErrListenerFailed = errors.New("oscar: listener failed")

const maxAcceptDelay = time.Second

// Serve accepts connections on ln until ctx is cancelled, then closes every
// tracked connection and waits for their workers to exit. Transient accept
// errors are retried with backoff. Any other accept error closes every
// tracked connection and is returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTransientAccept(err) {
				delay = nextAcceptDelay(delay)
				s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				continue
			}
			s.log.Error().Err(err).Msg("accept failed permanently")
			_ = ln.Close()
			s.closeAll(fmt.Errorf("%w: %v", ErrListenerFailed, err))
			return err
		}
		delay = 0
		c := NewConn(nc, s.svc.Name(), s.cfg.Conn, log.Logger)
		s.trackConn(c)
		s.wg.Add(1)
		go s.handleConn(ctx, c)
	}
}

// isTransientAccept reports accept errors that clear up on their own: fd
// exhaustion, aborted handshakes and timeouts.
func isTransientAccept(err error) bool {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

func (s *Server) closeAll(reason error) {
	for _, c := range s.Conns() {
		c.Close(reason)
	}
}

func (s *Server) handleConn(ctx context.Context, c *Conn) {
	defer s.wg.Done()
	defer s.untrackConn(c)
	active := s.active.Add(1)
	c.log.Info().Int64("active_clients", active).Msg("client connected")
	defer func() {
		remaining := s.active.Add(-1)
		c.log.Info().Int64("active_clients", remaining).Msg("client disconnected")
	}()

	s.svc.OnConnection(c)
	if err := c.Serve(ctx); err != nil {
		c.log.Warn().Err(err).Msg("connection ended with error")
	}
}

func (s *Server) trackConn(c *Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrackConn(c *Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, c)
}

// Conns returns a snapshot of open connections.
func (s *Server) Conns() []*Conn {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

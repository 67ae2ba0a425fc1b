package admin

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/oscarctl/internal/observability"
	"github.com/danmuck/oscarctl/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrActionNotFound  = errors.New("action not found")
)

// Pinger reports whether backing storage is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Config struct {
	Addr        string
	CORSOrigins []string
	// Token guards /services when set. Health and metrics stay open.
	Token string
	// Validator overrides Token when set.
	Validator Validator
}

func (c Config) validator() Validator {
	if c.Validator != nil {
		return c.Validator
	}
	if token := strings.TrimSpace(c.Token); token != "" {
		return StaticToken{Token: token}
	}
	return nil
}

// Server is the operator HTTP surface next to the OSCAR listeners.
type Server struct {
	cfg      Config
	router   *gin.Engine
	db       Pinger
	registry *services.ServiceRegistry
	started  time.Time
}

func New(cfg Config, db Pinger, registry *services.ServiceRegistry) *Server {
	observability.RegisterMetrics()
	if registry == nil {
		registry = services.NewServiceRegistry()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(log.Logger, "admin"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		router:   r,
		db:       db,
		registry: registry,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := true
		body := gin.H{"uptime": time.Since(s.started).String(), "version": version}
		if s.db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				ready = false
				body["error"] = err.Error()
			}
		}
		body["ready"] = ready
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, body)
	})

	guarded := s.router.Group("/services", requireToken(s.cfg.validator()))
	guarded.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": s.ListServices()})
	})
	guarded.GET("/:service", func(c *gin.Context) {
		svc, ok := s.registry.Get(c.Param("service"))
		if !ok || svc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrServiceNotFound.Error()})
			return
		}
		status, err := svc.Status()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"service": svc.Name(), "status": status})
	})
	guarded.POST("/:service/actions/:action", func(c *gin.Context) {
		out, err := s.ExecuteAction(c.Param("service"), c.Param("action"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrActionNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "output": out})
	})
}

func (s *Server) ExecuteAction(serviceName, actionName string) (string, error) {
	service, ok := s.registry.Get(serviceName)
	if !ok || service == nil {
		return "", ErrServiceNotFound
	}
	action, ok := service.Actions()[actionName]
	if !ok {
		return "", ErrActionNotFound
	}

	out, err := action()
	if err != nil {
		log.Error().
			Str("service", serviceName).
			Str("action", actionName).
			Err(err).
			Msg("service action failed")
		return "", err
	}
	log.Info().
		Str("service", serviceName).
		Str("action", actionName).
		Msg("service action executed")
	return out, nil
}

type ServiceInfo struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

func (s *Server) ListServices() []ServiceInfo {
	entries := s.registry.All()
	list := make([]ServiceInfo, 0, len(entries))
	for name, service := range entries {
		if service == nil {
			continue
		}
		actions := make([]string, 0, len(service.Actions()))
		for action := range service.Actions() {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		list = append(list, ServiceInfo{Name: name, Actions: actions})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

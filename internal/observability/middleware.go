package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouteGroup reduces a matched route to its first segment: "/services/:service"
// becomes "/services". Unmatched requests collapse to "unmatched".
func RouteGroup(route string) string {
	route = strings.TrimPrefix(route, "/")
	if route == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(route, '/'); i >= 0 {
		route = route[:i]
	}
	return "/" + route
}

// AdminRequests logs and counts each request to the admin surface of service.
// Operator actions carry their target service and action name in the log.
func AdminRequests(logger zerolog.Logger, service string) gin.HandlerFunc {
	logger = logger.With().Str("service", service).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		group := RouteGroup(route)
		if route == "" {
			route = c.Request.URL.Path
		}
		elapsed := time.Since(start)
		RecordHTTPRequest(service, group, c.Request.Method, status, elapsed)

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		} else if group == "/health" || group == "/metrics" || group == "/ready" {
			event = logger.Debug()
		}
		if target := c.Param("service"); target != "" {
			event = event.Str("target", target)
		}
		if action := c.Param("action"); action != "" {
			event = event.Str("action", action)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}

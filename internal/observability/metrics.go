package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Accepted client connections.",
		},
		[]string{"service"},
	)
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "oscar",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Currently open client connections.",
		},
		[]string{"service"},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "conn",
			Name:      "closed_total",
			Help:      "Closed client connections by reason.",
		},
		[]string{"service", "reason"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "flap",
			Name:      "frames_total",
			Help:      "FLAP frames by direction and type.",
		},
		[]string{"service", "direction", "type"},
	)
	snacs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "snac",
			Name:      "requests_total",
			Help:      "Inbound SNACs by classified operation.",
		},
		[]string{"service", "op"},
	)
	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		},
		[]string{"result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "group", "method", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oscar",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "group", "method", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsTotal, connectionsActive, connectionsClosed,
			frames, snacs, logins,
			httpRequests, httpDuration,
		)
	})
}

func RecordConnOpened(service string) {
	RegisterMetrics()
	connectionsTotal.WithLabelValues(service).Inc()
	connectionsActive.WithLabelValues(service).Inc()
}

func RecordConnClosed(service, reason string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(service).Dec()
	connectionsClosed.WithLabelValues(service, reason).Inc()
}

// RecordFrame counts one FLAP frame. direction is "in" or "out".
func RecordFrame(service, direction, frameType string) {
	RegisterMetrics()
	frames.WithLabelValues(service, direction, frameType).Inc()
}

func RecordSNAC(service, op string) {
	RegisterMetrics()
	snacs.WithLabelValues(service, op).Inc()
}

func RecordLogin(success bool) {
	RegisterMetrics()
	result := "failure"
	if success {
		result = "success"
	}
	logins.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts one admin request. group is the route group
// ("/services", "/health", ...), never the raw path, so labels stay bounded.
func RecordHTTPRequest(service, group, method string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, group, method, statusLabel).Inc()
	httpDuration.WithLabelValues(service, group, method, statusLabel).Observe(duration.Seconds())
}

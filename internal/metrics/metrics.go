package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorlink_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorlink_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	SocketsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentorlink_sockets_connected",
			Help: "Currently connected websocket clients",
		},
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorlink_connect_attempts_total",
			Help: "Client transport connect attempts",
		},
		[]string{"result"}, // "ok" or "error"
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorlink_messages_delivered_total",
			Help: "Live messages delivered by the hub",
		},
		[]string{"type"}, // TEXT, FILE or IMAGE
	)

	NotificationsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorlink_notifications_pushed_total",
			Help: "Server-pushed notifications",
		},
	)

	// Auth metrics
	RefreshCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorlink_token_refresh_total",
			Help: "Token refresh calls issued by clients",
		},
	)

	RefreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorlink_token_refresh_coalesced_total",
			Help: "Refresh attempts that joined an in-flight refresh",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorlink_auth_failures_total",
			Help: "Authentication failures",
		},
		[]string{"reason"}, // "expired", "blocked", "invalid"
	)
)

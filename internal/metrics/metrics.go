package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdeck_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	ChatsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdeck_chats_created_total",
			Help: "Total chats created",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"role"},
	)

	// Gateway metrics
	ProxyResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_proxy_responses_total",
			Help: "Responses relayed from upstreams",
		},
		[]string{"upstream", "status"},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_auth_failures_total",
			Help: "Rejected session cookies",
		},
		[]string{"reason"},
	)

	CSRFRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdeck_csrf_rejections_total",
			Help: "Requests rejected by the CSRF check",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatdeck_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdeck_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdeck_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"backend"},
	)
)

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_frames_total",
		Help: "Inbound websocket frames by type",
	}, []string{"type"})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "Websocket handshakes rejected during authentication",
	})
	DeliveryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_delivery_failures_total",
		Help: "Frames that were not delivered, by reason",
	}, []string{"reason"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rate_limited_frames_total",
		Help: "Inbound frames dropped by the per-identity rate limiter",
	})
	CallParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_call_participants",
		Help: "Current number of identities joined to call rooms",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsFramesTotal,
		WsMessagesTotal,
		AuthFailuresTotal,
		DeliveryFailuresTotal,
		RateLimitedTotal,
		CallParticipants,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware records basic request metrics for Prometheus.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HubSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rolechat_hub_subscribers",
		Help: "Current number of live room subscribers",
	})
	SnapshotsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rolechat_snapshots_published_total",
		Help: "Total number of room snapshots broadcast",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rolechat_messages_sent_total",
		Help: "Total number of chat messages persisted",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		HubSubscribers,
		SnapshotsPublished,
		MessagesSent,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Middleware records request counts and latencies using the route pattern
// so metric cardinality stays bounded.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"path":   path,
			"status": strconv.Itoa(status),
		}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
		return err
	}
}

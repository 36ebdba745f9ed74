package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests (Rate)",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP request errors",
		},
		[]string{"method", "path", "status", "error_type"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds (Duration)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var registered sync.Map

// Metrics records request rate, errors and duration per route. Unmatched
// requests are grouped under a single path label so scanners cannot blow up
// cardinality.
func Metrics(reg *prometheus.Registry) gin.HandlerFunc {
	if _, loaded := registered.LoadOrStore(reg, struct{}{}); !loaded {
		reg.MustRegister(httpRequestsTotal, httpRequestErrorsTotal, httpRequestDuration)
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		statusStr := strconv.Itoa(status)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
		switch {
		case status >= 500:
			httpRequestErrorsTotal.WithLabelValues(method, path, statusStr, "server").Inc()
		case status >= 400:
			httpRequestErrorsTotal.WithLabelValues(method, path, statusStr, "client").Inc()
		}
		httpRequestDuration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
	}
}

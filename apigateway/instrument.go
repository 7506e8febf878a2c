package gateway

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Instrumentation records request count, latency and sizes on reg. Calling
// it twice against the same registerer reuses the collectors already there.
func Instrumentation(reg prometheus.Registerer) gin.HandlerFunc {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counterVec := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crud",
		Subsystem: "request",
		Name:      "requests_count",
		Help:      "Number of requests per each endpoint",
	}, []string{"code", "method", "route"}))

	resTime := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crud",
		Subsystem: "response",
		Name:      "response_time_hist",
		Help:      "crud response duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}))

	resSize := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crud",
		Subsystem: "response",
		Name:      "size_histogram",
		Help:      "crud response size",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}))

	reqSize := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crud",
		Subsystem: "request",
		Name:      "size_hist",
		Help:      "Request size instrumenter",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}))

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start)) * 1e-6 // to millisecond

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		counterVec.WithLabelValues(status, c.Request.Method, route).Inc()
		resTime.Observe(duration)
		resSize.Observe(float64(c.Writer.Size()))
		if c.Request.ContentLength > 0 {
			reqSize.Observe(float64(c.Request.ContentLength))
		}
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

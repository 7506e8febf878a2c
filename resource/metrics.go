package resource

import (
	"net/http"
	"sync"
	"time"

	"github.com/adonese/crud/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	opMetricsOnce sync.Once
	opMetricsInst *opMetrics
)

type opMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		logrus.Warnf("prometheus counter register failed: %v", err)
	}
	return c
}

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		logrus.Warnf("prometheus histogram register failed: %v", err)
	}
	return c
}

// operationMetrics is shared by every resource; resources are told apart by
// the resource label.
func operationMetrics() *opMetrics {
	opMetricsOnce.Do(func() {
		opMetricsInst = &opMetrics{
			total: registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crud",
				Subsystem: "resource",
				Name:      "operations_total",
				Help:      "Number of generated CRUD operations served.",
			}, []string{"resource", "method", "result"})),
			duration: registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crud",
				Subsystem: "resource",
				Name:      "operation_duration_seconds",
				Help:      "Duration of generated CRUD operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"resource", "method"})),
		}
	})
	return opMetricsInst
}

func (m *opMetrics) observe(resource string, method Method, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(resource, string(method), result(err)).Inc()
	m.duration.WithLabelValues(resource, string(method)).Observe(d.Seconds())
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperr.Status(err) >= http.StatusInternalServerError:
		return "server_error"
	default:
		return "client_error"
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "examprep"

// Metrics holds the collectors of the attempt lifecycle.
type Metrics struct {
	AttemptsCreated      *prometheus.CounterVec
	AttemptsCompleted    prometheus.Counter
	AttemptsAbandoned    *prometheus.CounterVec
	ResultWriteFailures  *prometheus.CounterVec
	ResultsRecovered     prometheus.Counter
	PendingResults       prometheus.Gauge
	ReconcileGroupsFixed prometheus.Counter
	PoolExhausted        prometheus.Counter

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		AttemptsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_created_total",
			Help:      "Attempts returned by create, split by whether an active one was resumed.",
		}, []string{"resumed"}),
		AttemptsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_completed_total",
			Help:      "Attempts moved to completed.",
		}),
		AttemptsAbandoned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_abandoned_total",
			Help:      "Attempts moved to abandoned, by source.",
		}, []string{"source"}),
		ResultWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_write_failures_total",
			Help:      "Result writes that fell back to the local cache.",
		}, []string{"uncertain"}),
		ResultsRecovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_recovered_total",
			Help:      "Cached results persisted by recovery.",
		}),
		PendingResults: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "results_pending",
			Help:      "Results held in the local cache awaiting recovery.",
		}),
		ReconcileGroupsFixed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_groups_fixed_total",
			Help:      "User/test groups that held more than one in-progress attempt.",
		}),
		PoolExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assembler_pool_exhausted_total",
			Help:      "Assemblies that matched fewer questions than requested.",
		}),
		RequestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// NewDefault registers on the process-wide registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	if m.gatherer != nil {
		h = promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

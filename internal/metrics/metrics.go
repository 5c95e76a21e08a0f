package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome.",
		},
		[]string{"op", "result"},
	)

	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "escrow_layer",
			Subsystem: "tasks",
			Name:      "by_status",
			Help:      "Number of tasks per lifecycle status.",
		},
		[]string{"status"},
	)

	conservationDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escrow_layer",
			Subsystem: "ledger",
			Name:      "conservation_drift",
			Help:      "Deposits minus withdrawals minus balances and escrow; zero when the ledger balances.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		operations,
		tasksByStatus,
		conservationDrift,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation counts one engine operation and its outcome.
func RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}

// SetTaskStatusCount publishes the number of tasks in one status.
func SetTaskStatusCount(status string, count int) {
	tasksByStatus.WithLabelValues(status).Set(float64(count))
}

// SetConservationDrift publishes the latest reconciliation drift.
func SetConservationDrift(drift int64) {
	conservationDrift.Set(float64(drift))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "tasks":
		if len(parts) == 1 {
			return "/tasks"
		}
		if parts[1] == "count" {
			return "/tasks/count"
		}
		if len(parts) == 2 {
			return "/tasks/:id"
		}
		return "/tasks/:id/" + parts[2]
	case "ledger":
		if len(parts) >= 2 && parts[1] == "balances" {
			return "/ledger/balances/:account"
		}
		return "/" + trimmed
	default:
		return "/" + parts[0]
	}
}

package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Executions counts coordinator outcomes per rule cycle:
	// executed, gated, skipped, failed, halted.
	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_executions_total",
		Help: "Rule execution outcomes by result",
	}, []string{"result"})

	// PayoutAmount accumulates the total distributed across all rules, in
	// the smallest unit of the treasury asset.
	PayoutAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_payout_amount_total",
		Help: "Total amount distributed by executed rules",
	})

	// ActiveRules is the number of ACTIVE rules seen by the last poll cycle.
	ActiveRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "treasury_rules_active",
		Help: "Number of ACTIVE rules in the last poll cycle",
	})

	// CycleDuration observes full poll-cycle durations.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "treasury_cycle_duration_seconds",
		Help:    "Duration of coordinator poll cycles",
		Buckets: prometheus.DefBuckets,
	})

	// AuthRejections counts rejected rule-mutation authorizations by kind.
	AuthRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_auth_rejections_total",
		Help: "Rejected rule-mutation authorizations by kind",
	}, []string{"kind"})
)

func Init() {
	prometheus.MustRegister(httpReqs, httpDur, Executions, PayoutAmount,
		ActiveRules, CycleDuration, AuthRejections)
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

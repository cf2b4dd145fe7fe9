package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestDuration records how long each route takes to serve, labelled by path and status text, in
// the same spirit as the teacher daemon's request-latency histogram.
var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "catchmail",
	Subsystem: "httpapi",
	Name:      "request_duration_seconds",
	Help:      "Duration of HTTP query-surface requests.",
	Buckets:   prometheus.DefBuckets,
}, []string{"path", "status"})

// statusRecorder captures the status code a handler wrote, defaulting to 200 if WriteHeader was
// never called explicitly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RecordPrometheusStats wraps next so every request's duration and final status are recorded.
func RecordPrometheusStats(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		requestDuration.WithLabelValues(path, http.StatusText(rec.status)).Observe(time.Since(start).Seconds())
	}
}

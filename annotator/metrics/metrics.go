package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falldetect_http_requests_total",
			Help: "Total number of command invocations",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "falldetect_http_request_duration_seconds",
			Help:    "Duration of command invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	annotationsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falldetect_annotations_saved_total",
			Help: "Annotations written, by kind",
		},
		[]string{"kind"},
	)

	videosImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "falldetect_videos_imported_total",
			Help: "Video rows created by upload batches",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(annotationsSaved)
	prometheus.MustRegister(videosImported)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordAnnotationSaved(kind string) {
	annotationsSaved.WithLabelValues(kind).Inc()
}

func RecordVideosImported(count int) {
	videosImported.Add(float64(count))
}

func Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
	}
	return http.HandlerFunc(handler)
}

// Package metrics exposes Prometheus instrumentation for the HTTP API and
// the trajectory engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spitec_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spitec_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	trajectoriesBuilt = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spitec_trajectories_built_total",
			Help: "Trajectories projected from observation samples.",
		},
	)

	gapBreaksInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spitec_gap_breaks_inserted_total",
			Help: "Break groups inserted into trajectories at sampling gaps.",
		},
	)

	trajectoryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spitec_trajectory_cache_requests_total",
			Help: "Trajectory cache lookups by result.",
		},
		[]string{"result"},
	)

	regionSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spitec_region_selections_total",
			Help: "Region selections by shape.",
		},
		[]string{"shape"},
	)

	regionSelectedSites = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spitec_region_selected_sites",
			Help:    "Number of stations returned by a region selection.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		},
		[]string{"shape"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(trajectoriesBuilt)
	prometheus.MustRegister(gapBreaksInserted)
	prometheus.MustRegister(trajectoryCache)
	prometheus.MustRegister(regionSelections)
	prometheus.MustRegister(regionSelectedSites)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TrajectoryBuilt records one projected trajectory and its break groups.
func TrajectoryBuilt(breaks int) {
	trajectoriesBuilt.Inc()
	gapBreaksInserted.Add(float64(breaks))
}

// TrajectoryCacheLookup records a cache hit or miss.
func TrajectoryCacheLookup(hit bool) {
	if hit {
		trajectoryCache.WithLabelValues("hit").Inc()
		return
	}
	trajectoryCache.WithLabelValues("miss").Inc()
}

// RegionSelected records a selection of the given shape ("bbox" or "circle").
func RegionSelected(shape string, count int) {
	regionSelections.WithLabelValues(shape).Inc()
	regionSelectedSites.WithLabelValues(shape).Observe(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := routeLabel(r)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}

// routeLabel collapses parameterized paths to their chi route pattern so
// site and satellite names do not become label values.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}

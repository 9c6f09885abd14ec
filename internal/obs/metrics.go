// Package obs holds Prometheus metrics for the HTTP server and the poll domain.
package obs

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	PollsCreated   prometheus.Counter
	VotesCast      prometheus.Counter
	GateRejections *prometheus.CounterVec
	LiveClients    prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New(version string) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		PollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollbox_polls_created_total",
			Help: "Polls created.",
		}),
		VotesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollbox_votes_cast_total",
			Help: "Votes accepted.",
		}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbox_rejections_total",
			Help: "Rejected requests by error kind.",
		}, []string{"kind"}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pollbox_live_clients",
			Help: "Connected live-results websocket clients.",
		}),
	}
	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information.",
	}, []string{"version"})
	build.WithLabelValues(version).Set(1)

	m.reg.MustRegister(
		m.inFlight, m.requests, m.duration,
		m.PollsCreated, m.VotesCast, m.GateRejections, m.LiveClients,
		build,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Instrument measures in-flight requests, totals and latency.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := CanonicalPath(r.URL.Path)
		status := strconv.Itoa(sw.code)
		m.duration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(r.Method, path, status).Inc()
	})
}

const otherPath = "/other"

var (
	staticPaths = map[string]bool{
		"/api/csrf":         true,
		"/api/auth/signup":  true,
		"/api/auth/signin":  true,
		"/api/auth/signout": true,
		"/api/auth/user":    true,
		"/api/auth/session": true,
		"/api/polls":        true,
		"/healthz":          true,
		"/readyz":           true,
		"/metrics":          true,
	}
	pollSubpaths = map[string]bool{"votes": true, "results": true, "my-vote": true, "live": true}
)

// CanonicalPath maps a request path onto the route it matches, with poll ids
// collapsed. Anything outside the route set is reported as /other so label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if staticPaths[p] {
		return p
	}
	rest, ok := strings.CutPrefix(p, "/api/polls/")
	if !ok || rest == "" {
		return otherPath
	}
	id, sub, nested := strings.Cut(rest, "/")
	switch {
	case id == "":
		return otherPath
	case !nested:
		return "/api/polls/:id"
	case pollSubpaths[sub]:
		return "/api/polls/:id/" + sub
	}
	return otherPath
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Package metrics records per-run load metrics in a Prometheus registry and
// optionally exposes them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vvka-141/fanload/pkg/fanload"
)

const prefix = "fanload_"

// Metrics holds the collectors of one run. Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	files         *prometheus.CounterVec
	mismatches    prometheus.Counter
	rows          prometheus.Counter
	fileDuration  prometheus.Histogram
	claims        *prometheus.CounterVec
	fleetMembers  prometheus.Gauge
	activeWorkers prometheus.Gauge
	state         *prometheus.GaugeVec
}

// New creates Metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "files_total",
			Help: "Files processed, by recorded status",
		}, []string{"status"}),
		mismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "verification_mismatches_total",
			Help: "Files whose inserted count differed from the expected count",
		}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "rows_inserted_total",
			Help: "Rows reported by the destination as inserted",
		}),
		fileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "ingest_duration_seconds",
			Help:    "Time to ingest one claim",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		claims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "claims_total",
			Help: "Claim attempts, by result",
		}, []string{"result"}),
		fleetMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "fleet_members",
			Help: "Running fast-load servers",
		}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "active_workers",
			Help: "Workers currently processing a claim",
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "run_state",
			Help: "1 for the current run state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordFile(status fanload.Status, mismatch bool, inserted int64) {
	m.files.WithLabelValues(string(status)).Inc()
	if mismatch {
		m.mismatches.Inc()
	}
	if inserted > 0 {
		m.rows.Add(float64(inserted))
	}
}

func (m *Metrics) ObserveIngest(d time.Duration) {
	m.fileDuration.Observe(d.Seconds())
}

// RecordClaim counts a claim as "claimed", "empty" or "error".
func (m *Metrics) RecordClaim(result string) {
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) SetFleetMembers(n int) {
	m.fleetMembers.Set(float64(n))
}

func (m *Metrics) WorkerStarted()  { m.activeWorkers.Inc() }
func (m *Metrics) WorkerFinished() { m.activeWorkers.Dec() }

var allStates = []fanload.RunState{
	fanload.StateStartingFleet,
	fanload.StateRunning,
	fanload.StateDraining,
	fanload.StateStopped,
	fanload.StateFailedStart,
}

func (m *Metrics) SetState(s fanload.RunState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

// Server serves the registry at /metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
	err chan error
}

// Serve starts an HTTP server on addr exposing m.
func Serve(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
		err: make(chan error, 1),
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.err <- err
		}
		close(s.err)
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.err
}

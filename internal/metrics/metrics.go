// Package metrics exposes Prometheus instrumentation for the writer stage.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "l2writer"

// Stage holds the collectors updated by a stage worker. A nil *Stage records nothing.
type Stage struct {
	Items         *prometheus.CounterVec
	Batches       prometheus.Counter
	Files         prometheus.Counter
	Messages      prometheus.Counter
	SendFailures  prometheus.Counter
	WriteFailures prometheus.Counter
	Skipped       *prometheus.CounterVec
	LockWait      prometheus.Histogram
	FlushDuration prometheus.Histogram
	State         prometheus.Gauge
}

// NewStage creates the stage collectors and registers them with reg.
func NewStage(reg prometheus.Registerer) (*Stage, error) {
	s := &Stage{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "items_total",
			Help: "Work items taken from the queue by kind",
		}, []string{"kind"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "batch", Name: "flushed_total",
			Help: "Batches flushed at end-of-batch",
		}),
		Files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "files_total",
			Help: "Output files written",
		}),
		Messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "messages_total",
			Help: "Notifications sent",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "failures_total",
			Help: "Notifications that could not be sent",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "batch_failures_total",
			Help: "Batches whose deferred writes failed",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "skipped_total",
			Help: "Products or files skipped during staging by reason",
		}, []string{"reason"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "lock", Name: "wait_seconds",
			Help:    "Time spent waiting for the shared stage lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "batch", Name: "flush_seconds",
			Help:    "Duration of execute-all plus notification sending",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "state",
			Help: "Worker state (0=idle, 1=draining, 2=stopped)",
		}),
	}
	if reg == nil {
		return s, nil
	}
	for _, c := range []prometheus.Collector{
		s.Items, s.Batches, s.Files, s.Messages, s.SendFailures,
		s.WriteFailures, s.Skipped, s.LockWait, s.FlushDuration, s.State,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return s, nil
}

func (s *Stage) ItemProcessed(kind string) {
	if s != nil {
		s.Items.WithLabelValues(kind).Inc()
	}
}

func (s *Stage) BatchFlushed(files int, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.Batches.Inc()
	s.Files.Add(float64(files))
	s.FlushDuration.Observe(elapsed.Seconds())
}

func (s *Stage) WriteFailed() {
	if s != nil {
		s.WriteFailures.Inc()
	}
}

func (s *Stage) MessageSent() {
	if s != nil {
		s.Messages.Inc()
	}
}

func (s *Stage) SendFailed() {
	if s != nil {
		s.SendFailures.Inc()
	}
}

func (s *Stage) ProductSkipped(reason string) {
	if s != nil {
		s.Skipped.WithLabelValues(reason).Inc()
	}
}

func (s *Stage) LockWaited(d time.Duration) {
	if s != nil {
		s.LockWait.Observe(d.Seconds())
	}
}

func (s *Stage) SetState(v int) {
	if s != nil {
		s.State.Set(float64(v))
	}
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Server serves /metrics for a registry.
type Server struct {
	bind     string
	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// NewServer prepares a server; Start binds it.
func NewServer(bind string, registry *prometheus.Registry) *Server {
	return &Server{bind: bind, registry: registry}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("metrics server already running")
	}
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.bind, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.addr = ln.Addr().String()
	go func(srv *http.Server) {
		_ = srv.Serve(ln)
	}(s.server)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

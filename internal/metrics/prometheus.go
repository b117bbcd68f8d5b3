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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusConfig holds configuration for the Prometheus exporter.
type PrometheusConfig struct {
	// Listen is the address the metrics endpoint binds to (e.g. ":9646").
	Listen string

	// Path is the URL path for the metrics endpoint. Default: /metrics
	Path string

	// Namespace prefixes every metric. Default: sheetload
	Namespace string

	// Buckets are the request duration histogram buckets.
	Buckets []float64

	// Logger receives serve failures. Default: no-op
	Logger *zap.Logger
}

// PrometheusExporter publishes request samples on a scrape endpoint.
// It implements Sink so it can be attached to an Engine.
type PrometheusExporter struct {
	mu     sync.Mutex
	config PrometheusConfig

	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesTotal      prometheus.Counter
	activeUsers     prometheus.Gauge

	server   *http.Server
	ln       net.Listener
	running  bool
	serveErr error
}

// NewPrometheusExporter creates an exporter with its own registry.
func NewPrometheusExporter(config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "sheetload"
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	e := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	e.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_total",
			Help:      "Requests sent to the workbook service, by request name and result.",
		},
		[]string{"name", "result"},
	)
	e.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds.",
			Buckets:   config.Buckets,
		},
		[]string{"name"},
	)
	e.bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "response_bytes_total",
		Help:      "Response bytes received.",
	})
	e.activeUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "active_users",
		Help:      "Simulated users currently running.",
	})

	e.registry.MustRegister(e.requestsTotal, e.requestDuration, e.bytesTotal, e.activeUsers)
	return e
}

// Record implements Recorder.
func (e *PrometheusExporter) Record(s Sample) {
	result := "success"
	if !s.Success {
		result = "failure"
	}
	e.requestsTotal.WithLabelValues(s.Name, result).Inc()
	if s.Sent {
		e.requestDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
	}
	e.bytesTotal.Add(float64(s.Bytes))
}

// SetActiveUsers implements Sink.
func (e *PrometheusExporter) SetActiveUsers(n int) {
	e.activeUsers.Set(float64(n))
}

// Registry exposes the exporter's registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Start begins serving the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", e.config.Listen)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := e.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.serveErr = err
			e.mu.Unlock()
			e.config.Logger.Error("prometheus exporter stopped serving", zap.String("addr", ln.Addr().String()), zap.Error(err))
		}
	}()

	e.running = true
	return nil
}

// Addr returns the bound address, or "" when not running.
func (e *PrometheusExporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Stop shuts the metrics endpoint down. It also reports an earlier failure
// of the endpoint, if any.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	server := e.server
	e.mu.Unlock()

	shutdownErr := server.Shutdown(ctx)

	e.mu.Lock()
	serveErr := e.serveErr
	e.serveErr = nil
	e.mu.Unlock()

	if serveErr != nil {
		return fmt.Errorf("prometheus exporter: %w", serveErr)
	}
	return shutdownErr
}

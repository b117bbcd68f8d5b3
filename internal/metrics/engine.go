// Package metrics collects request statistics for a load test run.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sample is the outcome of a single request against the service under test.
type Sample struct {
	// Name groups samples in the breakdown (e.g. "edit_cell").
	Name       string
	Method     string
	Duration   time.Duration
	StatusCode int
	Bytes      int64
	Success    bool
	// Sent is false for calls that failed before reaching the network.
	// They count as failures but carry no latency.
	Sent bool
	// Reason describes why a failed sample failed.
	Reason string
}

// Recorder accepts request samples.
type Recorder interface {
	Record(s Sample)
}

// Sink receives everything the engine sees, e.g. an external exporter.
type Sink interface {
	Recorder
	SetActiveUsers(n int)
}

// Engine aggregates samples into HDR histograms and counters.
//
// Engine is safe for concurrent use. Counters are atomic and each histogram
// is guarded by its own mutex since hdrhistogram is not thread-safe.
type Engine struct {
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requests   map[string]*requestStats
	requestsMu sync.RWMutex

	failures   map[failureKey]int64
	failuresMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	activeUsers atomic.Int32

	sinks []Sink

	startTime time.Time
	config    EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

type requestStats struct {
	mu       sync.Mutex
	method   string
	hist     *hdrhistogram.Histogram
	requests int64
	failures int64
	bytes    int64
}

type failureKey struct {
	name   string
	reason string
}

// NewEngine creates a metrics engine with default configuration.
func NewEngine(sinks ...Sink) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), sinks...)
}

// NewEngineWithConfig creates a metrics engine with a custom configuration.
func NewEngineWithConfig(config EngineConfig, sinks ...Sink) *Engine {
	return &Engine{
		latencyHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requests:    make(map[string]*requestStats),
		failures:    make(map[failureKey]int64),
		sinks:       sinks,
		startTime:   time.Now(),
		config:      config,
	}
}

// Record adds a sample to the aggregate and forwards it to attached sinks.
func (e *Engine) Record(s Sample) {
	latencyMicros := s.Duration.Microseconds()
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	if s.Sent {
		e.latencyHistMu.Lock()
		_ = e.latencyHist.RecordValue(latencyMicros)
		e.latencyHistMu.Unlock()
	}

	rs := e.requestStatsFor(s.Name, s.Method)
	rs.mu.Lock()
	if s.Sent {
		_ = rs.hist.RecordValue(latencyMicros)
	}
	rs.requests++
	rs.bytes += s.Bytes
	if !s.Success {
		rs.failures++
	}
	rs.mu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)
	if s.Success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
		e.failuresMu.Lock()
		e.failures[failureKey{name: s.Name, reason: s.Reason}]++
		e.failuresMu.Unlock()
	}

	for _, sink := range e.sinks {
		sink.Record(s)
	}
}

func (e *Engine) requestStatsFor(name, method string) *requestStats {
	e.requestsMu.RLock()
	rs, ok := e.requests[name]
	e.requestsMu.RUnlock()
	if ok {
		return rs
	}

	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()
	if rs, ok = e.requests[name]; ok {
		return rs
	}
	rs = &requestStats{
		method: method,
		hist:   hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
	}
	e.requests[name] = rs
	return rs
}

// SetActiveUsers updates the running user count.
func (e *Engine) SetActiveUsers(n int) {
	e.activeUsers.Store(int32(n))
	for _, sink := range e.sinks {
		sink.SetActiveUsers(n)
	}
}

// ActiveUsers returns the running user count.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

// Snapshot returns a point-in-time view of all metrics.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsFromHistogram(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	total := e.totalRequests.Load()
	failed := e.failedRequests.Load()

	snap := &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failed,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		ActiveUsers:     e.ActiveUsers(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
	if elapsed > 0 {
		snap.RPS = float64(total) / elapsed.Seconds()
	}
	if total > 0 {
		snap.ErrorRate = float64(failed) / float64(total)
	}

	e.requestsMu.RLock()
	for name, rs := range e.requests {
		rs.mu.Lock()
		rb := RequestBreakdown{
			Name:     name,
			Method:   rs.method,
			Requests: rs.requests,
			Failures: rs.failures,
			Bytes:    rs.bytes,
			Latency:  statsFromHistogram(rs.hist),
		}
		rs.mu.Unlock()
		if elapsed > 0 {
			rb.RPS = float64(rb.Requests) / elapsed.Seconds()
		}
		snap.Requests = append(snap.Requests, rb)
	}
	e.requestsMu.RUnlock()
	sort.Slice(snap.Requests, func(i, j int) bool {
		return snap.Requests[i].Name < snap.Requests[j].Name
	})

	e.failuresMu.Lock()
	for k, n := range e.failures {
		snap.Failures = append(snap.Failures, FailureCount{Name: k.name, Reason: k.reason, Count: n})
	}
	e.failuresMu.Unlock()
	sort.Slice(snap.Failures, func(i, j int) bool {
		if snap.Failures[i].Count != snap.Failures[j].Count {
			return snap.Failures[i].Count > snap.Failures[j].Count
		}
		if snap.Failures[i].Name != snap.Failures[j].Name {
			return snap.Failures[i].Name < snap.Failures[j].Name
		}
		return snap.Failures[i].Reason < snap.Failures[j].Reason
	})

	return snap
}

// Reset clears all metrics and restarts the clock.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.requestsMu.Lock()
	e.requests = make(map[string]*requestStats)
	e.requestsMu.Unlock()

	e.failuresMu.Lock()
	e.failures = make(map[failureKey]int64)
	e.failuresMu.Unlock()

	e.totalRequests.Store(0)
	e.successRequests.Store(0)
	e.failedRequests.Store(0)
	e.totalBytes.Store(0)
	e.activeUsers.Store(0)
	e.startTime = time.Now()
}

func statsFromHistogram(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	TotalRequests   int64              `json:"totalRequests"`
	SuccessRequests int64              `json:"successRequests"`
	FailedRequests  int64              `json:"failedRequests"`
	TotalBytes      int64              `json:"totalBytes"`
	Latency         LatencyStats       `json:"latency"`
	RPS             float64            `json:"rps"`
	ErrorRate       float64            `json:"errorRate"`
	ActiveUsers     int                `json:"activeUsers"`
	Elapsed         time.Duration      `json:"elapsed"`
	StartTime       time.Time          `json:"startTime"`
	Timestamp       time.Time          `json:"timestamp"`
	Requests        []RequestBreakdown `json:"requests"`
	Failures        []FailureCount     `json:"failures,omitempty"`
}

// RequestBreakdown contains statistics for one request name.
type RequestBreakdown struct {
	Name     string       `json:"name"`
	Method   string       `json:"method"`
	Requests int64        `json:"requests"`
	Failures int64        `json:"failures"`
	Bytes    int64        `json:"bytes"`
	RPS      float64      `json:"rps"`
	Latency  LatencyStats `json:"latency"`
}

// FailureCount counts identical failures of one request name.
type FailureCount struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

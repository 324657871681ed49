// Package metrics aggregates request results produced by virtual users.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects request latencies and outcomes using HDR histograms.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms are protected by mutexes; RecordValue is not thread-safe.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requests   map[string]*requestEntry
	requestsMu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	activeUsers atomic.Int32

	observers []Observer

	startTime time.Time
	config    EngineConfig
}

// requestEntry holds the per-name breakdown.
type requestEntry struct {
	hist     *hdrhistogram.Histogram
	failures int64
	bytes    int64
}

// Observer receives every recorded request, e.g. to mirror it to an exporter.
type Observer interface {
	ObserveRequest(name string, duration time.Duration, success bool, bytes int64)
	ObserveActiveUsers(count int)
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
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine(observers ...Observer) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), observers...)
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig, observers ...Observer) *Engine {
	return &Engine{
		latencyHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requests:    make(map[string]*requestEntry),
		observers:   observers,
		startTime:   time.Now(),
		config:      config,
	}
}

// RecordLatency records the outcome of one request.
//
// Parameters:
//   - duration: The request latency
//   - requestName: Name for the per-request breakdown (empty string to skip)
//   - success: Whether the request succeeded
//   - bytes: Number of bytes received
func (e *Engine) RecordLatency(duration time.Duration, requestName string, success bool, bytes int64) {
	latencyMicros := e.clamp(duration.Microseconds())

	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if requestName != "" {
		e.recordRequest(requestName, latencyMicros, success, bytes)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	for _, o := range e.observers {
		o.ObserveRequest(requestName, duration, success, bytes)
	}
}

func (e *Engine) clamp(latencyMicros int64) int64 {
	if latencyMicros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return latencyMicros
}

func (e *Engine) recordRequest(name string, latencyMicros int64, success bool, bytes int64) {
	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	entry, exists := e.requests[name]
	if !exists {
		entry = &requestEntry{
			hist: hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		}
		e.requests[name] = entry
	}

	entry.hist.RecordValue(latencyMicros)
	entry.bytes += bytes
	if !success {
		entry.failures++
	}
}

// SetActiveUsers updates the active virtual user count.
func (e *Engine) SetActiveUsers(count int) {
	e.activeUsers.Store(int32(count))
	for _, o := range e.observers {
		o.ObserveActiveUsers(count)
	}
}

// ActiveUsers returns the current active virtual user count.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

// Snapshot returns a point-in-time view of the overall metrics.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	total := e.totalRequests.Load()
	failed := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(total) / elapsed.Seconds()
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failed,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		ErrorRate:       errorRate,
		ActiveUsers:     e.ActiveUsers(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// RequestStats returns per-request statistics sorted by name.
func (e *Engine) RequestStats() []RequestStats {
	e.requestsMu.RLock()
	defer e.requestsMu.RUnlock()

	result := make([]RequestStats, 0, len(e.requests))
	for name, entry := range e.requests {
		result = append(result, RequestStats{
			Name:     name,
			Failures: entry.failures,
			Bytes:    entry.bytes,
			Latency:  latencyStats(entry.hist),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
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
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes"`
	Latency         LatencyStats  `json:"latency"`
	RPS             float64       `json:"rps"`
	ErrorRate       float64       `json:"errorRate"`
	ActiveUsers     int           `json:"activeUsers"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}

// RequestStats is the breakdown for one request name, e.g. "POST /api/login".
type RequestStats struct {
	Name     string       `json:"name"`
	Failures int64        `json:"failures"`
	Bytes    int64        `json:"bytes"`
	Latency  LatencyStats `json:"latency"`
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

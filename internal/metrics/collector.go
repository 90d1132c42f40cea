// Package metrics provides Prometheus metrics for go-interp-driver.
//
// All series carry a language label; the number of languages is small, so
// cardinality stays bounded.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "interp_driver"

// Collector manages all Prometheus metrics for the driver.
type Collector struct {
	info *prometheus.GaugeVec

	// Runs
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runAttempts   *prometheus.HistogramVec
	eventsTotal   *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	runsInFlight  *prometheus.GaugeVec

	// Processes
	processStarts   *prometheus.CounterVec
	processRestarts *prometheus.CounterVec
	processExits    *prometheus.CounterVec
	processUptime   *prometheus.HistogramVec
	processAlive    *prometheus.GaugeVec
	linesRead       *prometheus.CounterVec

	// For summary generation
	mu            sync.Mutex
	startTime     time.Time
	totalStarts   int64
	totalRestarts int64
	exitCodes     map[int]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "Information about the driver (value always 1)",
		}, []string{"version"}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Cells executed, by outcome",
		}, []string{"language", "outcome"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a cell from write to completion",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"language"}),

		runAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_write_attempts",
			Help:      "Stdin write attempts per cell",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}, []string{"language"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Events yielded to callers, by kind",
		}, []string{"language", "kind"}),

		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stdin_write_failures_total",
			Help:      "Failed writes of code to interpreter stdin",
		}, []string{"language"}),

		runsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "runs_in_flight",
			Help:      "Cells currently executing",
		}, []string{"language"}),

		processStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "process_starts_total",
			Help:      "Interpreter subprocesses spawned",
		}, []string{"language"}),

		processRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "process_restarts_total",
			Help:      "Forced restarts after a failed write",
		}, []string{"language"}),

		processExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "process_exits_total",
			Help:      "Interpreter exits by category (success, error, signal)",
		}, []string{"language", "category"}),

		processUptime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "process_uptime_seconds",
			Help:      "Interpreter lifetime at exit",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"language"}),

		processAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "process_alive",
			Help:      "1 while the interpreter subprocess is running",
		}, []string{"language"}),

		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lines_read_total",
			Help:      "Raw lines read from interpreter pipes",
		}, []string{"language", "stream"}),

		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.runDuration,
		c.runAttempts,
		c.eventsTotal,
		c.writeFailures,
		c.runsInFlight,
		c.processStarts,
		c.processRestarts,
		c.processExits,
		c.processUptime,
		c.processAlive,
		c.linesRead,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version).Set(1)

	return c
}

// =============================================================================
// Run Recording Methods
// =============================================================================

// RunStarted marks a cell as executing.
func (c *Collector) RunStarted(lang string) {
	c.runsInFlight.WithLabelValues(lang).Inc()
}

// RunCompleted records the end of a cell.
func (c *Collector) RunCompleted(lang, outcome string, d time.Duration, attempts int) {
	c.runsInFlight.WithLabelValues(lang).Dec()
	c.runsTotal.WithLabelValues(lang, outcome).Inc()
	c.runDuration.WithLabelValues(lang).Observe(d.Seconds())
	if attempts > 0 {
		c.runAttempts.WithLabelValues(lang).Observe(float64(attempts))
	}
}

// EventYielded counts one event handed to a caller.
func (c *Collector) EventYielded(lang, kind string) {
	c.eventsTotal.WithLabelValues(lang, kind).Inc()
}

// WriteFailed counts a failed stdin write.
func (c *Collector) WriteFailed(lang string) {
	c.writeFailures.WithLabelValues(lang).Inc()
}

// LineRead counts one raw line from stream.
func (c *Collector) LineRead(lang, stream string) {
	c.linesRead.WithLabelValues(lang, stream).Inc()
}

// =============================================================================
// Process Recording Methods
// =============================================================================

// ProcessStarted records a spawn.
func (c *Collector) ProcessStarted(lang string) {
	c.processStarts.WithLabelValues(lang).Inc()
	c.processAlive.WithLabelValues(lang).Set(1)

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// ProcessRestarted records a forced restart.
func (c *Collector) ProcessRestarted(lang string) {
	c.processRestarts.WithLabelValues(lang).Inc()

	c.mu.Lock()
	c.totalRestarts++
	c.mu.Unlock()
}

// ProcessExited records an exit.
func (c *Collector) ProcessExited(lang string, exitCode int, uptime time.Duration) {
	c.processExits.WithLabelValues(lang, ExitCategory(exitCode)).Inc()
	c.processUptime.WithLabelValues(lang).Observe(uptime.Seconds())
	c.processAlive.WithLabelValues(lang).Set(0)

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.mu.Unlock()
}

// ExitCategory buckets an exit code as success, error or signal.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary
// =============================================================================

// ProcessSummary holds process counters for the exit summary.
type ProcessSummary struct {
	Uptime        time.Duration
	TotalStarts   int64
	TotalRestarts int64
	ExitCodes     map[int]int64
}

// Summary returns a snapshot of the process counters.
func (c *Collector) Summary() ProcessSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := ProcessSummary{
		Uptime:        time.Since(c.startTime),
		TotalStarts:   c.totalStarts,
		TotalRestarts: c.totalRestarts,
		ExitCodes:     make(map[int]int64, len(c.exitCodes)),
	}
	for code, n := range c.exitCodes {
		s.ExitCodes[code] = n
	}
	return s
}

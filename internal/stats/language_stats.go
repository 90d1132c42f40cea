// Package stats provides per-language and aggregated statistics for
// interpreter sessions.
//
// This file implements LanguageStats which tracks one language:
// - Run counts by outcome
// - Run duration percentiles (T-Digest)
// - Events yielded, write failures, restarts
// - Process starts and exits
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// LanguageStats holds statistics for one language.
//
// Thread-safe: counters are atomics, the outcome map and digest are guarded
// by mutexes.
type LanguageStats struct {
	Language  string
	StartTime time.Time

	Runs          atomic.Int64
	Events        atomic.Int64
	WriteFailures atomic.Int64
	Starts        atomic.Int64
	Restarts      atomic.Int64
	Exits         atomic.Int64

	outcomesMu sync.Mutex
	outcomes   map[string]int64

	durationMu     sync.Mutex // TDigest is not thread-safe
	durationDigest *tdigest.TDigest
	durationTotal  time.Duration
	durationMax    time.Duration
}

// NewLanguageStats creates stats for lang.
func NewLanguageStats(lang string) *LanguageStats {
	return &LanguageStats{
		Language:       lang,
		StartTime:      time.Now(),
		outcomes:       make(map[string]int64),
		durationDigest: tdigest.NewWithCompression(100),
	}
}

// RecordRun records one finished run.
func (s *LanguageStats) RecordRun(outcome string, d time.Duration) {
	s.Runs.Add(1)

	s.outcomesMu.Lock()
	s.outcomes[outcome]++
	s.outcomesMu.Unlock()

	s.durationMu.Lock()
	s.durationDigest.Add(float64(d.Nanoseconds()), 1)
	s.durationTotal += d
	if d > s.durationMax {
		s.durationMax = d
	}
	s.durationMu.Unlock()
}

// Outcomes returns a copy of the run counts by outcome.
func (s *LanguageStats) Outcomes() map[string]int64 {
	s.outcomesMu.Lock()
	defer s.outcomesMu.Unlock()

	out := make(map[string]int64, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

// Percentile returns the q-th quantile of run durations, or 0 with no runs.
func (s *LanguageStats) Percentile(q float64) time.Duration {
	if s.Runs.Load() == 0 {
		return 0
	}
	s.durationMu.Lock()
	defer s.durationMu.Unlock()
	return time.Duration(s.durationDigest.Quantile(q))
}

// Summary is a point-in-time snapshot of one language.
type Summary struct {
	Language      string
	Runs          int64
	Completed     int64
	Failed        int64
	Events        int64
	WriteFailures int64
	Starts        int64
	Restarts      int64
	AvgDuration   time.Duration
	MaxDuration   time.Duration
	P50           time.Duration
	P95           time.Duration
	P99           time.Duration
}

// GetSummary returns a snapshot of the stats.
func (s *LanguageStats) GetSummary() Summary {
	sum := Summary{
		Language:      s.Language,
		Runs:          s.Runs.Load(),
		Events:        s.Events.Load(),
		WriteFailures: s.WriteFailures.Load(),
		Starts:        s.Starts.Load(),
		Restarts:      s.Restarts.Load(),
	}

	outcomes := s.Outcomes()
	sum.Completed = outcomes["completed"]
	sum.Failed = sum.Runs - sum.Completed

	if sum.Runs > 0 {
		s.durationMu.Lock()
		sum.AvgDuration = s.durationTotal / time.Duration(sum.Runs)
		sum.MaxDuration = s.durationMax
		sum.P50 = time.Duration(s.durationDigest.Quantile(0.50))
		sum.P95 = time.Duration(s.durationDigest.Quantile(0.95))
		sum.P99 = time.Duration(s.durationDigest.Quantile(0.99))
		s.durationMu.Unlock()
	}
	return sum
}

package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// AggregatedStats holds metrics across all languages.
//
// This is a snapshot computed at the time of the Aggregate call.
type AggregatedStats struct {
	Timestamp time.Time
	Elapsed   time.Duration

	TotalRuns          int64
	TotalEvents        int64
	TotalWriteFailures int64
	TotalStarts        int64
	TotalRestarts      int64
	Outcomes           map[string]int64

	// SuccessRate is completed runs over all runs.
	SuccessRate float64

	// Run durations merged across languages
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
	DurationMax time.Duration

	// Sorted by language name
	PerLanguage []Summary
}

// Recorder collects LanguageStats keyed by language name.
type Recorder struct {
	mu        sync.RWMutex
	languages map[string]*LanguageStats
	startTime time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		languages: make(map[string]*LanguageStats),
		startTime: time.Now(),
	}
}

// Language returns the stats for lang, creating them on first use.
func (r *Recorder) Language(lang string) *LanguageStats {
	r.mu.RLock()
	s, ok := r.languages[lang]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.languages[lang]; ok {
		return s
	}
	s = NewLanguageStats(lang)
	r.languages[lang] = s
	return s
}

// LanguageCount returns how many languages have recorded anything.
func (r *Recorder) LanguageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.languages)
}

// Elapsed returns time since the recorder was created or reset.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.startTime)
}

// Reset drops all recorded stats.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages = make(map[string]*LanguageStats)
	r.startTime = time.Now()
}

// Aggregate computes a snapshot across all languages.
func (r *Recorder) Aggregate() *AggregatedStats {
	r.mu.RLock()
	langs := make([]*LanguageStats, 0, len(r.languages))
	for _, s := range r.languages {
		langs = append(langs, s)
	}
	start := r.startTime
	r.mu.RUnlock()

	now := time.Now()
	agg := &AggregatedStats{
		Timestamp: now,
		Elapsed:   now.Sub(start),
		Outcomes:  make(map[string]int64),
	}

	merged := tdigest.NewWithCompression(100)
	for _, s := range langs {
		sum := s.GetSummary()
		agg.PerLanguage = append(agg.PerLanguage, sum)

		agg.TotalRuns += sum.Runs
		agg.TotalEvents += sum.Events
		agg.TotalWriteFailures += sum.WriteFailures
		agg.TotalStarts += sum.Starts
		agg.TotalRestarts += sum.Restarts
		if sum.MaxDuration > agg.DurationMax {
			agg.DurationMax = sum.MaxDuration
		}
		for k, v := range s.Outcomes() {
			agg.Outcomes[k] += v
		}

		s.durationMu.Lock()
		merged.AddCentroidList(s.durationDigest.Centroids())
		s.durationMu.Unlock()
	}

	sort.Slice(agg.PerLanguage, func(i, j int) bool {
		return agg.PerLanguage[i].Language < agg.PerLanguage[j].Language
	})

	if agg.TotalRuns > 0 {
		agg.SuccessRate = float64(agg.Outcomes["completed"]) / float64(agg.TotalRuns)
		agg.DurationP50 = time.Duration(merged.Quantile(0.50))
		agg.DurationP95 = time.Duration(merged.Quantile(0.95))
		agg.DurationP99 = time.Duration(merged.Quantile(0.99))
	}
	return agg
}

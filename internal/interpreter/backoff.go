package interpreter

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for restart pacing.
// A zero Initial disables the delay entirely.
type BackoffConfig struct {
	Initial    time.Duration // Delay before the first restart (default: 50ms)
	Max        time.Duration // Maximum delay (default: 1s)
	Multiplier float64       // Multiplier for each attempt (default: 2)
	JitterPct  float64       // Jitter as a fraction of delay (default: 0.2 = ±10%)
}

// DefaultBackoffConfig returns sensible defaults for restart pacing.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential restart delays with jitter.
// It is reset at the start of every run.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff. The seed makes jitter reproducible in tests.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	if b.config.Initial <= 0 {
		return 0
	}

	mult := b.config.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.config.Initial) * math.Pow(mult, float64(b.attempts))

	if b.config.Max > 0 && delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

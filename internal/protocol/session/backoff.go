package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		mult := max(cfg.Multiplier, 1.0)
		delay *= math.Pow(mult, float64(attempt-1))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Retry counts consecutive failures for one router and hands out the
// matching delay. Not safe for concurrent use.
type Retry struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
	until    time.Time
}

func NewRetry(cfg BackoffConfig, rng *rand.Rand) *Retry {
	return &Retry{cfg: cfg, rng: rng}
}

// Fail records a failure at now and returns how long to hold off.
func (r *Retry) Fail(now time.Time) time.Duration {
	r.failures++
	delay := NextBackoffDelay(r.cfg, r.failures, r.rng)
	r.until = now.Add(delay)
	return delay
}

// Ready reports whether the hold-off from the last failure has passed.
func (r *Retry) Ready(now time.Time) bool {
	return !now.Before(r.until)
}

func (r *Retry) Failures() int {
	return r.failures
}

func (r *Retry) Reset() {
	r.failures = 0
	r.until = time.Time{}
}

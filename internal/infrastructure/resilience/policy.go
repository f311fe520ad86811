package resilience

import (
	"math/rand/v2"
	"time"
)

// Config tunes one Executor. Zero values fall back to DefaultConfig, except
// RetryJitter where zero means a fixed schedule.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	RetryJitter         float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits a single local model server: a few quick retries, and a
// breaker that opens once half of ten calls have failed.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()

	c.RetryMaxAttempts = positiveOr(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positiveOr(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	c.RetryJitter = min(max(c.RetryJitter, 0), 1)

	c.BreakerMinRequests = positiveOr(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}

// schedule yields the wait before each retry: exponential, capped, and spread
// by ±RetryJitter so that api and worker do not retry in lockstep.
type schedule struct {
	cfg  Config
	next time.Duration
	rand func() float64
}

func (c Config) schedule() *schedule {
	return &schedule{cfg: c, next: c.RetryInitialBackoff, rand: rand.Float64}
}

func (s *schedule) wait() time.Duration {
	base := min(s.next, s.cfg.RetryMaxBackoff)
	s.next = min(time.Duration(float64(s.next)*s.cfg.RetryMultiplier), s.cfg.RetryMaxBackoff)
	if s.cfg.RetryJitter == 0 {
		return base
	}
	spread := (s.rand()*2 - 1) * s.cfg.RetryJitter
	return time.Duration(float64(base) * (1 + spread))
}

func positiveOr[T int | uint32 | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

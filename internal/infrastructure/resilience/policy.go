package resilience

import (
	"strings"
	"time"
)

// Retry is the retry budget of one operation.
type Retry struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the fraction of each backoff that may be shaved off at random, in [0,1).
	Jitter float64
}

// Breaker configures the per-operation circuit breakers.
type Breaker struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry Retry
	// RetryOverrides replaces Retry for single operations. A key ending in "." matches every
	// operation with that prefix; the longest matching key wins. Zero fields inherit from Retry.
	RetryOverrides map[string]Retry
	Breaker        Breaker
}

func DefaultConfig() Config {
	return Config{
		Retry: Retry{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
			Jitter:         0.2,
		},
		Breaker: Breaker{
			Enabled:          true,
			MinRequests:      20,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// UploadPathRetry is meant for calls an HTTP upload waits on: one short retry, then the
// caller gets a 503 instead of a hanging request.
func UploadPathRetry() Retry {
	return Retry{
		MaxAttempts:    2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     1,
	}
}

func (c Config) retryFor(operation string) Retry {
	if r, ok := c.RetryOverrides[operation]; ok {
		return r
	}
	best, bestLen := c.Retry, 0
	for key, r := range c.RetryOverrides {
		if strings.HasSuffix(key, ".") && strings.HasPrefix(operation, key) && len(key) > bestLen {
			best, bestLen = r, len(key)
		}
	}
	return best
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := Config{
		Retry:   c.Retry.withDefaults(def.Retry),
		Breaker: c.Breaker.withDefaults(def.Breaker),
	}
	if len(c.RetryOverrides) > 0 {
		out.RetryOverrides = make(map[string]Retry, len(c.RetryOverrides))
		for op, r := range c.RetryOverrides {
			out.RetryOverrides[op] = r.withDefaults(out.Retry)
		}
	}
	return out
}

func (r Retry) withDefaults(def Retry) Retry {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1.0 {
		r.Multiplier = def.Multiplier
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		r.Jitter = 0
	}
	return r
}

// withDefaults leaves Enabled alone: a zero Breaker means breakers are off.
func (b Breaker) withDefaults(def Breaker) Breaker {
	if b.MinRequests == 0 {
		b.MinRequests = def.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return b
}

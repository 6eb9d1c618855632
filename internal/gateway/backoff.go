package gateway

import (
	"math"
	"time"

	"github.com/concord-chat/refnav/internal/config"
)

// Backoff is the feed's reconnect policy. Failed sessions wait an
// exponentially growing delay, capped at max, for at most retries
// attempts in a row. A READY resets the count.
type Backoff struct {
	retries int // negative retries forever
	initial time.Duration
	max     time.Duration
	factor  float64
}

// NewBackoff derives the reconnect policy from the gateway settings.
// Unset delays and factors fall back to the configuration defaults.
func NewBackoff(cfg config.Gateway) *Backoff {
	def := config.DefaultConfig().Gateway
	b := &Backoff{
		retries: cfg.MaxRetries,
		initial: millis(cfg.InitialDelayMs, def.InitialDelayMs),
		max:     millis(cfg.MaxDelayMs, def.MaxDelayMs),
		factor:  cfg.BackoffFactor,
	}
	if b.factor < 1 {
		b.factor = def.BackoffFactor
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	return b
}

func millis(ms, fallback int) time.Duration {
	if ms <= 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Delay returns the wait before retry attempt (zero based)
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.initial) * math.Pow(b.factor, float64(attempt))
	if d >= float64(b.max) {
		return b.max
	}
	return time.Duration(d)
}

// Allow reports whether retry attempt may run
func (b *Backoff) Allow(attempt int) bool {
	return b.retries < 0 || attempt < b.retries
}

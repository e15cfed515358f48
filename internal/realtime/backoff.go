package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// ReconnectPolicy describes the delay before reconnect attempt n (1-based):
// min(BaseDelay * 2^n, MaxDelay). After MaxAttempts failed attempts the
// channel gives up. Zero fields take the defaults; a negative MaxAttempts
// disables reconnecting.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// NewBackOff returns a backoff.BackOff yielding the policy's delays and
// backoff.Stop once the ceiling is reached.
func (p ReconnectPolicy) NewBackOff() backoff.BackOff {
	p = p.withDefaults()
	if p.MaxAttempts < 0 {
		return &backoff.StopBackOff{}
	}

	eb := backoff.NewExponentialBackOff()
	// the first retry already counts as attempt 1
	eb.InitialInterval = min(2*p.BaseDelay, p.MaxDelay)
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithMaxRetries(eb, uint64(p.MaxAttempts))
}

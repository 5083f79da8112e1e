package lifecycle

import (
	"time"

	"github.com/zhaopengme/hiperboot/pkg/config"
)

// DefaultConnectRetryDelay is the minimum wait after a Connect call that
// failed outright, so an unreachable network does not spin.
const DefaultConnectRetryDelay = 2 * time.Second

// Policy decides how long to wait before the next connect attempt. The zero
// value reconnects immediately and never gives up.
type Policy struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func PolicyFromConfig(cfg config.ReconnectConfig) Policy {
	return Policy{
		Delay:       cfg.Delay(),
		MaxDelay:    cfg.MaxDelay(),
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Backoff returns the wait before retry number failures (1-based),
// doubling from Delay and capped at MaxDelay when set.
func (p Policy) Backoff(failures int) time.Duration {
	if p.Delay <= 0 || failures <= 0 {
		return 0
	}
	d := p.Delay
	for i := 1; i < failures; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether failures consecutive closes exceed the ceiling.
func (p Policy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures > p.MaxAttempts
}

// Package backoff holds the process-wide cooldown state guarding the
// AI text-generation capability. Both polling loops consult it, so all
// state is mutex-guarded.
package backoff

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	initialCooldown = 60 * time.Second
	maxCooldown     = 300 * time.Second
)

// Controller tracks whether the AI capability is inside a cooldown
// window. Cooldowns double on every rate-limit signal (60s up to a
// 300s cap) and reset to zero on the first success.
type Controller struct {
	mu      sync.Mutex
	exp     *backoff.ExponentialBackOff
	until   time.Time
	current time.Duration
}

func NewController() *Controller {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialCooldown
	exp.MaxInterval = maxCooldown
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0 // never give up, the cap bounds the window
	exp.Reset()
	return &Controller{exp: exp}
}

// IsCoolingDown reports whether calls to the AI capability should be
// skipped at the given instant.
func (c *Controller) IsCoolingDown(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.until)
}

// RecordFailure starts (or extends) a cooldown window after a
// rate-limit signal and returns its duration.
func (c *Controller) RecordFailure(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.exp.NextBackOff()
	if d == backoff.Stop || d > maxCooldown {
		d = maxCooldown
	}
	c.current = d
	c.until = now.Add(d)
	return d
}

// RecordSuccess resets the cooldown to zero.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exp.Reset()
	c.current = 0
	c.until = time.Time{}
}

// CurrentCooldown returns the duration of the active window, zero when
// no failure has been recorded since the last success.
func (c *Controller) CurrentCooldown() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Remaining returns how long the active window still has to run.
func (c *Controller) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.until) {
		return 0
	}
	return c.until.Sub(now)
}

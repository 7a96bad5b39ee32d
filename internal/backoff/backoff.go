// Package backoff implements the global rate-limit state machine of spec
// §4.5: a single full-jitter exponential backoff shared across every
// worker, plus the safety-valve counter that kills fetches outright once
// too many 429s have been seen.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	base                = 1 * time.Second
	defaultCap          = 1800 * time.Second
	resetAfterSuccesses = 10
)

// Controller holds the attempt count, the shortest Retry-After hint seen,
// and the safety-valve hit counter. All mutation happens under a single
// lock (spec §4.5 "all mutate under a single lock").
type Controller struct {
	mu sync.Mutex

	cap                time.Duration
	attempts           int
	retryAfter         *time.Duration
	consecutiveSuccess int
	rateLimitHits      int
	rateLimitHitsCap   int
}

// New builds a Controller with the given cap (spec default 1800s, smaller
// in tests) and safety threshold (spec default 5).
func New(cap time.Duration, safetyThreshold int) *Controller {
	if cap <= 0 {
		cap = defaultCap
	}
	return &Controller{cap: cap, rateLimitHitsCap: safetyThreshold}
}

// IncrAttempts records one more failed/backed-off attempt.
func (c *Controller) IncrAttempts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	c.consecutiveSuccess = 0
}

// SetRetryAfter folds a server-suggested wait into the controller, keeping
// the shortest one seen (spec: "None replaced by r", otherwise min).
func (c *Controller) SetRetryAfter(r time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryAfter == nil || r < *c.retryAfter {
		c.retryAfter = &r
	}
}

// RecordSuccess is the Open-Question (a) resolution: a run of
// resetAfterSuccesses consecutive non-rate-limited successes resets the
// controller, so a long crawl does not get stuck at the backoff cap
// forever. See DESIGN.md for the rationale.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveSuccess++
	if c.consecutiveSuccess >= resetAfterSuccesses {
		c.attempts = 0
		c.retryAfter = nil
		c.consecutiveSuccess = 0
	}
}

// GetBackoff computes the wait a worker must sleep before its next fetch.
// Zero attempts means zero wait; otherwise a full-jitter exponential draw,
// clamped further by any outstanding Retry-After hint.
func (c *Controller) GetBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempts == 0 {
		return 0
	}

	ceiling := time.Duration(math.Pow(2, float64(c.attempts-1))) * base
	if ceiling > c.cap {
		ceiling = c.cap
	}
	jitter := time.Duration(rand.Int63n(int64(ceiling) + 1))

	if c.retryAfter != nil && *c.retryAfter < jitter {
		return *c.retryAfter
	}
	return jitter
}

// IncrRateLimitHits bumps the global 429 counter. Returns the new total.
func (c *Controller) IncrRateLimitHits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitHits++
	return c.rateLimitHits
}

// SafetyTripped reports whether the 429 counter has reached the configured
// threshold — the kill-switch of spec §4.5.
func (c *Controller) SafetyTripped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimitHits >= c.rateLimitHitsCap
}

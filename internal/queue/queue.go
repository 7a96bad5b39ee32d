// Package queue implements the two-tier work queue of spec §4.2: a primary
// FIFO for seeds and batched detail fetches, a secondary FIFO for retries
// and flushed staging work, and the precedence rule a worker uses to pick
// its next item.
package queue

import (
	"sync"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

// Fabric owns the primary and secondary queues plus the in-flight counter
// the orchestrator needs to decide termination (spec §4.1, §5).
//
// Both queues are simple mutex-guarded slices rather than buffered channels:
// spec's termination predicate needs an instantaneous "is it empty right
// now" read, which a channel's len() gives imprecisely once goroutines are
// blocked on it. A slice plus a condition variable gives liveness (workers
// never busy-spin on an empty-but-not-done queue) without that ambiguity.
type Fabric struct {
	mu        sync.Mutex
	cond      *sync.Cond
	primary   []spotify.Endpoint
	secondary []spotify.Endpoint
	inFlight  int
	closed    bool
}

// New builds an empty Fabric.
func New() *Fabric {
	f := &Fabric{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// PushPrimary enqueues ep onto primary. Used for seeds and for the
// coalescer's bulk /artists?ids=... requests (spec: "high priority").
func (f *Fabric) PushPrimary(ep spotify.Endpoint) {
	f.mu.Lock()
	f.primary = append(f.primary, ep)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// PushSecondary enqueues ep onto secondary. Used for reinjected transient
// failures and flushed staging work.
func (f *Fabric) PushSecondary(ep spotify.Endpoint) {
	f.mu.Lock()
	f.secondary = append(f.secondary, ep)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// PushSecondaryBatch enqueues many endpoints onto secondary in one locked
// section, used by the scheduler's flush.
func (f *Fabric) PushSecondaryBatch(eps []spotify.Endpoint) {
	if len(eps) == 0 {
		return
	}
	f.mu.Lock()
	f.secondary = append(f.secondary, eps...)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Pop returns the next endpoint per the precedence rule (primary before
// secondary) and marks one unit of work in-flight. ok is false only when the
// fabric has been closed with nothing left to hand out.
func (f *Fabric) Pop() (ep spotify.Endpoint, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if len(f.primary) > 0 {
			ep = f.primary[0]
			f.primary = f.primary[1:]
			f.inFlight++
			return ep, true
		}
		if len(f.secondary) > 0 {
			ep = f.secondary[0]
			f.secondary = f.secondary[1:]
			f.inFlight++
			return ep, true
		}
		if f.closed {
			return spotify.Endpoint{}, false
		}
		f.cond.Wait()
	}
}

// Done signals that one previously popped item has finished processing
// (spec §4.1 "signal task done"). Must be called exactly once per Pop.
func (f *Fabric) Done() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Idle reports whether both queues are empty and no item is in flight — half
// of the termination predicate (spec §2 "Terminal condition").
func (f *Fabric) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.primary) == 0 && len(f.secondary) == 0 && f.inFlight == 0
}

// PrimaryEmpty reports whether primary alone is empty, without taking an
// item. The orchestrator's supervisor uses it to decide when to flush
// staging.
func (f *Fabric) PrimaryEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.primary) == 0
}

// Close wakes every blocked Pop so workers can observe cancellation instead
// of waiting forever on an empty queue.
func (f *Fabric) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

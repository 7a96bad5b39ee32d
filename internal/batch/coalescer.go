// Package batch implements the batching coalescer of spec §4.4: an
// accumulator that turns single artist-id lookups into a bulk request once
// enough ids have piled up.
package batch

import (
	"sort"
	"strings"
	"sync"
)

// DefaultSize is the API's batch cap (spec §4.4: "the API cap is 50").
const DefaultSize = 50

// Coalescer accumulates unique artist ids under a single lock; Build is
// atomic with respect to Add so no id is ever lost or duplicated across
// concurrent callers (spec invariant in §4.4, property P3).
type Coalescer struct {
	mu      sync.Mutex
	size    int
	pending map[string]struct{}
}

// New builds a Coalescer with the given capacity.
func New(size int) *Coalescer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Coalescer{size: size, pending: make(map[string]struct{})}
}

// Add idempotently inserts id into the pending set.
func (c *Coalescer) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = struct{}{}
}

// IsFull reports whether the pending count has reached the configured size.
func (c *Coalescer) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) >= c.size
}

// Build atomically snapshots the pending set, resets it to empty, and
// returns the ids joined by commas — the wire format /artists?ids=... wants.
// The ids are sorted before joining purely to make Build's output
// deterministic for tests; the API treats the list as unordered.
func (c *Coalescer) Build() string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	sort.Strings(ids)
	return strings.Join(ids, ",")
}

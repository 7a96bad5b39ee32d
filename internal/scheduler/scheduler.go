// Package scheduler implements the prioritizer of spec §4.3: one staging
// queue per route kind, a mutable priority order over route kinds, and the
// put/flush/set_priority operations the orchestrator and dispatcher use to
// move discovered endpoints toward the secondary queue.
package scheduler

import (
	"sync"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

// DefaultFlushBudget is the spec's flush(n=100) default.
const DefaultFlushBudget = 100

// Prioritizer holds the per-route staging queues, all guarded by one shared
// lock, and the priority order, guarded by a separate lock.
type Prioritizer struct {
	queueMu sync.Mutex // guards queues and size; a single mutex suffices since
	// flush must already visit every route queue under one critical section
	// to produce a single deterministic snapshot (spec P5).
	queues map[spotify.RouteKind][]spotify.Endpoint
	size   int

	priorityMu sync.Mutex
	priority   []spotify.RouteKind
}

// New seeds one empty staging queue per route kind and an initial priority
// equal to spec's declaration order.
func New() *Prioritizer {
	p := &Prioritizer{
		queues:   make(map[spotify.RouteKind][]spotify.Endpoint),
		priority: append([]spotify.RouteKind{}, spotify.AllRouteKinds...),
	}
	for _, k := range spotify.AllRouteKinds {
		p.queues[k] = nil
	}
	return p
}

// Put appends ep to its route kind's staging queue.
func (p *Prioritizer) Put(kind spotify.RouteKind, ep spotify.Endpoint) {
	p.queueMu.Lock()
	p.queues[kind] = append(p.queues[kind], ep)
	p.size++
	p.queueMu.Unlock()
}

// Empty reports whether every staging queue is empty.
func (p *Prioritizer) Empty() bool {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return p.size == 0
}

// SetPriority sorts route kinds by scores[k] descending and installs the new
// order atomically (spec §4.3).
func (p *Prioritizer) SetPriority(scores map[spotify.RouteKind]float64) {
	order := append([]spotify.RouteKind{}, spotify.AllRouteKinds...)
	sortByScoreDesc(order, scores)

	p.priorityMu.Lock()
	p.priority = order
	p.priorityMu.Unlock()
}

func sortByScoreDesc(order []spotify.RouteKind, scores map[spotify.RouteKind]float64) {
	// Insertion sort: the route kind set is fixed at nine entries, so this
	// stays O(1)-ish in practice and needs no extra import.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && scores[order[j]] > scores[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}

// Flush pops up to num endpoints total, visiting route kinds in current
// priority order; from each route it takes min(remaining budget, queue
// length) off the head. Returns the concatenated list for the orchestrator
// to push onto secondary.
func (p *Prioritizer) Flush(num int) []spotify.Endpoint {
	if num <= 0 {
		num = DefaultFlushBudget
	}

	p.priorityMu.Lock()
	order := append([]spotify.RouteKind{}, p.priority...)
	p.priorityMu.Unlock()

	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	output := make([]spotify.Endpoint, 0, num)
	for _, kind := range order {
		if len(output) >= num {
			break
		}
		remaining := num - len(output)
		q := p.queues[kind]
		take := remaining
		if take > len(q) {
			take = len(q)
		}
		output = append(output, q[:take]...)
		p.queues[kind] = q[take:]
	}
	p.size -= len(output)
	return output
}

// Package metrics tracks the per-route yield statistics the scheduler uses
// to reprioritize staging queues (spec §3 "Route metrics", §4.3).
package metrics

import (
	"sync"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

// Route is one route kind's accumulated stats.
type Route struct {
	TotalTime float64
	Calls     int
	Added     int
	Batched   int
}

// Score computes (added + 0.5*batched) / calls, or 0 when calls is zero
// (spec §3).
func (r Route) Score() float64 {
	if r.Calls == 0 {
		return 0
	}
	return (float64(r.Added) + 0.5*float64(r.Batched)) / float64(r.Calls)
}

// Store holds one Route per kind, guarded by a single lock. The spec notes
// metrics are safe without a lock under cooperative scheduling "because no
// suspension occurs mid-update," but also requires a lock "on a preemptive
// scheduler" — this implementation runs goroutines preemptively, so it
// always locks (spec §5).
type Store struct {
	mu    sync.Mutex
	byKey map[spotify.RouteKind]*Route
}

// NewStore seeds one zeroed Route per known route kind.
func NewStore() *Store {
	s := &Store{byKey: make(map[spotify.RouteKind]*Route)}
	for _, k := range spotify.AllRouteKinds {
		s.byKey[k] = &Route{}
	}
	return s
}

// Record charges one completed call to kind's metrics.
func (s *Store) Record(kind spotify.RouteKind, callTime float64, added, batched int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.byKey[kind]
	r.TotalTime += callTime
	r.Calls++
	r.Added += added
	r.Batched += batched
}

// Scores returns the current (added + 0.5*batched)/calls score for every
// route kind, for SetPriority to consume.
func (s *Store) Scores() map[spotify.RouteKind]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[spotify.RouteKind]float64, len(s.byKey))
	for k, r := range s.byKey {
		out[k] = r.Score()
	}
	return out
}

// Snapshot returns a copy of the current Route for kind, for tests and
// diagnostics.
func (s *Store) Snapshot(kind spotify.RouteKind) Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.byKey[kind]
}

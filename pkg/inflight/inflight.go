// Package inflight tracks the set of tweet IDs with an outstanding fetch,
// preventing duplicate concurrent requests for the same tweet. A single
// mutex-owning Tracker instance is shared by everything that dispatches
// fetches.
package inflight

import "sync"

// Tracker is the serialized owner of the in-flight ID set. An ID enters
// the set when a fetch for it is dispatched and leaves when the tweet
// lands in the store or is sealed unavailable.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]struct{})}
}

// Claim atomically adds every ID not already in flight and returns the
// ones that were added. IDs already claimed by an earlier dispatch are
// filtered out, which is the no-duplicate-fetch guarantee.
func (t *Tracker) Claim(ids []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	accepted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, exists := t.pending[id]; exists {
			continue
		}
		t.pending[id] = struct{}{}
		accepted = append(accepted, id)
	}
	return accepted
}

// Release removes the given IDs from the in-flight set. Unknown IDs are
// ignored.
func (t *Tracker) Release(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.pending, id)
	}
}

// Contains reports whether an ID is currently in flight.
func (t *Tracker) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Len returns the number of in-flight IDs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Package subscription implements the forward/reverse subscription
// indexes and the filter/matcher (spec.md §4.7, §4.8). Read-mostly hot
// path, guarded by a single RWMutex per index instance, the same
// granularity the teacher uses for its RoomManager's rooms map
// (internal/websocket/services/room.go).
package subscription

import "sync"

// Index is one instance of the forward/reverse structure, keyed by
// either system_id or character_id depending on which Index the
// caller constructs (spec.md §4.7: "two instances of the same
// structure").
type Index struct {
	mu      sync.RWMutex
	forward map[int64]map[string]struct{} // entity_id -> set<subscription_id>
	reverse map[string][]int64            // subscription_id -> entity_ids
}

// NewIndex builds an empty Index.
func NewIndex() *Index {
	return &Index{
		forward: make(map[int64]map[string]struct{}),
		reverse: make(map[string][]int64),
	}
}

// Add registers subscriptionID under every entity in entityIDs.
func (idx *Index) Add(subscriptionID string, entityIDs []int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range entityIDs {
		if idx.forward[e] == nil {
			idx.forward[e] = make(map[string]struct{})
		}
		idx.forward[e][subscriptionID] = struct{}{}
	}
	idx.reverse[subscriptionID] = append([]int64(nil), entityIDs...)
}

// Update replaces subscriptionID's entity set, applying only the
// symmetric difference against the prior set (spec.md §4.7).
func (idx *Index) Update(subscriptionID string, newEntityIDs []int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.reverse[subscriptionID]
	oldSet := toSet(old)
	newSet := toSet(newEntityIDs)

	for _, e := range old {
		if _, keep := newSet[e]; !keep {
			idx.removeFromForwardLocked(e, subscriptionID)
		}
	}
	for _, e := range newEntityIDs {
		if _, existed := oldSet[e]; !existed {
			if idx.forward[e] == nil {
				idx.forward[e] = make(map[string]struct{})
			}
			idx.forward[e][subscriptionID] = struct{}{}
		}
	}

	if len(newEntityIDs) == 0 {
		delete(idx.reverse, subscriptionID)
	} else {
		idx.reverse[subscriptionID] = append([]int64(nil), newEntityIDs...)
	}
}

// Remove deletes subscriptionID from every entity bucket it appears in.
func (idx *Index) Remove(subscriptionID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range idx.reverse[subscriptionID] {
		idx.removeFromForwardLocked(e, subscriptionID)
	}
	delete(idx.reverse, subscriptionID)
}

func (idx *Index) removeFromForwardLocked(entityID int64, subscriptionID string) {
	bucket, ok := idx.forward[entityID]
	if !ok {
		return
	}
	delete(bucket, subscriptionID)
	if len(bucket) == 0 {
		delete(idx.forward, entityID)
	}
}

// Lookup returns every subscription registered for entityID.
func (idx *Index) Lookup(entityID int64) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket := idx.forward[entityID]
	out := make([]string, 0, len(bucket))
	for subID := range bucket {
		out = append(out, subID)
	}
	return out
}

// LookupMany returns the deduplicated union of Lookup over every
// entity in entityIDs.
func (idx *Index) LookupMany(entityIDs []int64) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, e := range entityIDs {
		for subID := range idx.forward[e] {
			if _, ok := seen[subID]; !ok {
				seen[subID] = struct{}{}
				out = append(out, subID)
			}
		}
	}
	return out
}

// Sweep removes every empty forward bucket, a periodic safety net
// against races (spec.md §4.7).
func (idx *Index) Sweep() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for e, bucket := range idx.forward {
		if len(bucket) == 0 {
			delete(idx.forward, e)
			removed++
		}
	}
	return removed
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

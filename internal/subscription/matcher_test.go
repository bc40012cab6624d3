package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wandererkills/internal/killmail"
)

func i64(n int64) *int64 { return &n }

// TestSubscriptionRoutingS3 mirrors spec.md §8 scenario S3.
func TestSubscriptionRoutingS3(t *testing.T) {
	m := NewManager()
	m.Create(&Subscription{ID: "X", SystemIDs: []int64{30000142}})
	m.Create(&Subscription{ID: "Y", CharacterIDs: []int64{999}})

	kmA := &killmail.Killmail{SolarSystemID: 30000999, Victim: killmail.Victim{CharacterID: i64(999)}}
	assert.ElementsMatch(t, []string{"Y"}, m.Match(kmA))

	kmB := &killmail.Killmail{SolarSystemID: 30000142, Victim: killmail.Victim{CharacterID: i64(1)}}
	assert.ElementsMatch(t, []string{"X"}, m.Match(kmB))

	kmC := &killmail.Killmail{SolarSystemID: 30000142, Victim: killmail.Victim{CharacterID: i64(999)}}
	assert.ElementsMatch(t, []string{"X", "Y"}, m.Match(kmC))
}

func TestWildcardSubscriptionMatchesEverything(t *testing.T) {
	m := NewManager()
	m.Create(&Subscription{ID: "W"})

	km := &killmail.Killmail{SolarSystemID: 30000142}
	assert.ElementsMatch(t, []string{"W"}, m.Match(km))
}

func TestIndexForwardReverseConsistency(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", []int64{1, 2, 3})
	idx.Update("s1", []int64{2, 3, 4})

	assert.Empty(t, idx.Lookup(1))
	assert.Contains(t, idx.Lookup(2), "s1")
	assert.Contains(t, idx.Lookup(3), "s1")
	assert.Contains(t, idx.Lookup(4), "s1")

	idx.Remove("s1")
	assert.Empty(t, idx.Lookup(2))
	assert.Empty(t, idx.Lookup(3))
	assert.Empty(t, idx.Lookup(4))
}

func TestIndexUpdateToEmptyDeletesReverseEntry(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", []int64{1})
	idx.Update("s1", nil)
	assert.Empty(t, idx.Lookup(1))
}

func TestIndexLookupManyDeduplicates(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", []int64{1, 2})
	idx.Add("s2", []int64{2, 3})

	got := idx.LookupMany([]int64{1, 2, 3})
	assert.ElementsMatch(t, []string{"s1", "s2"}, got)
}

func TestIndexSweepRemovesEmptyBuckets(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", []int64{1})
	idx.Remove("s1")
	// Remove already drops emptied buckets; seed one directly so Sweep
	// has something to remove.
	idx.forward[2] = make(map[string]struct{})
	removed := idx.Sweep()
	assert.Equal(t, 1, removed)
	assert.Empty(t, idx.Lookup(1))
}

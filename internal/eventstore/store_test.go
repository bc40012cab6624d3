package eventstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/broker"
	"wandererkills/internal/killmail"
	"wandererkills/internal/platform/clock"
)

func newTestStore() *Store {
	return New(clock.Real{}, broker.New(8, nil, nil), 10000, nil)
}

func km(id, systemID int64) *killmail.Killmail {
	return &killmail.Killmail{KillmailID: id, SolarSystemID: systemID}
}

// TestInsertFetchS1 mirrors spec.md §8 scenario S1.
func TestInsertFetchS1(t *testing.T) {
	s := newTestStore()

	eventID, inserted := s.Insert(context.Background(), 30000142, km(1001, 30000142))
	require.True(t, inserted)
	require.Equal(t, int64(1), eventID)

	events := s.FetchForClient("c1", []int64{30000142})
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].EventID)
	assert.Equal(t, int64(30000142), events[0].SystemID)
	assert.Equal(t, int64(1001), events[0].Killmail.KillmailID)

	again := s.FetchForClient("c1", []int64{30000142})
	assert.Empty(t, again)
}

// TestTwoSystemsSelectiveFetchS2 mirrors spec.md §8 scenario S2.
func TestTwoSystemsSelectiveFetchS2(t *testing.T) {
	s := newTestStore()

	s.Insert(context.Background(), 30000142, km(2001, 30000142))
	s.Insert(context.Background(), 30000144, km(2002, 30000144))

	first := s.FetchForClient("c2", []int64{30000144})
	require.Len(t, first, 1)
	assert.Equal(t, int64(2002), first[0].Killmail.KillmailID)

	second := s.FetchForClient("c2", []int64{30000142, 30000144})
	require.Len(t, second, 1)
	assert.Equal(t, int64(2001), second[0].Killmail.KillmailID)
}

func TestInsertIdempotentByKillmailID(t *testing.T) {
	s := newTestStore()

	id1, inserted1 := s.Insert(context.Background(), 1, km(5, 1))
	id2, inserted2 := s.Insert(context.Background(), 1, km(5, 1))

	assert.True(t, inserted1)
	assert.False(t, inserted2)
	assert.Equal(t, id1, id2)
	assert.Len(t, s.ListBySystem(1), 1)
}

// TestGCBoundsS4 mirrors spec.md §8 scenario S4.
func TestGCBoundsS4(t *testing.T) {
	s := newTestStore()

	for i := int64(1); i <= 200; i++ {
		s.Insert(context.Background(), 30000142, km(i, 30000142))
	}

	// client c3 has fetched through event 50.
	s.clientOffsets["c3"] = map[int64]int64{30000142: 50}

	s.GarbageCollect()

	for _, e := range s.events {
		assert.Greater(t, e.EventID, int64(50))
	}
	assert.LessOrEqual(t, len(s.events), 150)
}

func TestGCNoClientsDeletesNothing(t *testing.T) {
	s := newTestStore()
	for i := int64(1); i <= 5; i++ {
		s.Insert(context.Background(), 1, km(i, 1))
	}
	s.GarbageCollect()
	assert.Len(t, s.events, 5)
}

func TestMonotonicEventIDsUnderConcurrency(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	ids := make(chan int64, 100)
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			eventID, _ := s.Insert(context.Background(), 1, km(i, 1))
			ids <- eventID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		require.False(t, seen[id], "event_id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}

func TestOffsetNonRegression(t *testing.T) {
	s := newTestStore()
	s.Insert(context.Background(), 1, km(1, 1))
	s.Insert(context.Background(), 1, km(2, 1))

	first := s.FetchForClient("c1", []int64{1})
	require.Len(t, first, 2)

	offsetAfterFirst := s.clientOffsets["c1"][1]

	s.Insert(context.Background(), 1, km(3, 1))
	second := s.FetchForClient("c1", []int64{1})
	require.Len(t, second, 1)

	offsetAfterSecond := s.clientOffsets["c1"][1]
	assert.GreaterOrEqual(t, offsetAfterSecond, offsetAfterFirst)
}

func TestFetchOneReturnsSmallestEventID(t *testing.T) {
	s := newTestStore()
	s.Insert(context.Background(), 1, km(1, 1))
	s.Insert(context.Background(), 2, km(2, 2))

	event, ok := s.FetchOne("c1", []int64{1, 2})
	require.True(t, ok)
	assert.Equal(t, int64(1), event.EventID)

	event2, ok := s.FetchOne("c1", []int64{1, 2})
	require.True(t, ok)
	assert.Equal(t, int64(2), event2.EventID)

	_, ok = s.FetchOne("c1", []int64{1, 2})
	assert.False(t, ok)
}

func TestRecentlyFetched(t *testing.T) {
	frozen := clock.NewFrozen(time.Now())
	s := New(frozen, broker.New(8, nil, nil), 10000, nil)

	assert.False(t, s.RecentlyFetched(1, 5*time.Second))

	s.SetFetchTimestamp(1)
	assert.True(t, s.RecentlyFetched(1, 5*time.Second))

	frozen.Advance(6 * time.Second)
	assert.False(t, s.RecentlyFetched(1, 5*time.Second))
}

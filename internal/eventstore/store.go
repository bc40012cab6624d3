// Package eventstore is the per-system in-memory event log (spec.md
// §4.6): monotonic event IDs, per-client offsets, and garbage
// collection. Concurrency strategy is grounded in the teacher's
// ConnectionManager/RoomManager idiom of one guarding mutex per
// manager (internal/websocket/services/{connection,room}.go): a single
// sync.RWMutex guards every table spec.md §4.6 names.
package eventstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"wandererkills/internal/broker"
	"wandererkills/internal/killmail"
	"wandererkills/internal/platform/clock"
)

// Event is the stored tuple (event_id, system_id, killmail).
type Event struct {
	EventID  int64
	SystemID int64
	Killmail *killmail.Killmail
}

// Store is the concurrent-safe event log.
type Store struct {
	mu sync.RWMutex

	events       []Event // ordered by EventID ascending
	killmails    map[int64]*killmail.Killmail
	systemKills  map[int64][]int64 // system_id -> killmail_id, newest first
	systemCounts map[int64]int64
	clientOffsets map[string]map[int64]int64

	fetchTimestamps map[int64]time.Time

	counter atomic.Int64

	clk           clock.Clock
	pub           *broker.Broker
	maxPerSystem  int
	log           *slog.Logger
}

// New builds an empty Store.
func New(clk clock.Clock, pub *broker.Broker, maxEventsPerSystem int, log *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		killmails:       make(map[int64]*killmail.Killmail),
		systemKills:     make(map[int64][]int64),
		systemCounts:    make(map[int64]int64),
		clientOffsets:   make(map[string]map[int64]int64),
		fetchTimestamps: make(map[int64]time.Time),
		clk:             clk,
		pub:             pub,
		maxPerSystem:    maxEventsPerSystem,
		log:             log,
	}
}

// Insert assigns the next event_id and stores km under system_id,
// publishing to the broker. It is idempotent by killmail_id: a second
// insert of an already-known killmail_id is ignored and returns the
// existing event_id with inserted=false (spec.md §4.6).
func (s *Store) Insert(ctx context.Context, systemID int64, km *killmail.Killmail) (eventID int64, inserted bool) {
	s.mu.Lock()

	if existing, ok := s.killmails[km.KillmailID]; ok {
		_ = existing
		s.mu.Unlock()
		return s.existingEventID(km.KillmailID), false
	}

	eventID = s.counter.Add(1)
	s.killmails[km.KillmailID] = km
	s.systemKills[systemID] = append([]int64{km.KillmailID}, s.systemKills[systemID]...)
	s.systemCounts[systemID]++
	count := s.systemCounts[systemID]
	s.events = append(s.events, Event{EventID: eventID, SystemID: systemID, Killmail: km})

	s.mu.Unlock()

	if s.pub != nil {
		s.pub.Publish(systemID, km)
		s.pub.PublishCount(systemID, count)
	}
	return eventID, true
}

// existingEventID finds the event_id already assigned to a killmail_id.
// Called with s.mu already released; re-acquires a read lock.
func (s *Store) existingEventID(killmailID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.Killmail.KillmailID == killmailID {
			return e.EventID
		}
	}
	return 0
}

// ListBySystem returns every currently stored killmail for a system,
// newest first.
func (s *Store) ListBySystem(systemID int64) []*killmail.Killmail {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.systemKills[systemID]
	out := make([]*killmail.Killmail, 0, len(ids))
	for _, id := range ids {
		if km, ok := s.killmails[id]; ok {
			out = append(out, km)
		}
	}
	return out
}

// KillCount returns the number of killmails inserted for a system since
// the store was created. GarbageCollect does not lower it.
func (s *Store) KillCount(systemID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemCounts[systemID]
}

// GetKillmail returns a single killmail by ID.
func (s *Store) GetKillmail(killmailID int64) (*killmail.Killmail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	km, ok := s.killmails[killmailID]
	return km, ok
}

// FetchForClient returns every event with event_id > the client's
// recorded offset for each requested system, ascending by event_id,
// then advances the client's offsets to the max event_id seen per
// system. No partial advance: offsets only move after the read
// succeeds (spec.md §4.6).
func (s *Store) FetchForClient(clientID string, systemIDs []int64) []Event {
	if len(systemIDs) == 0 {
		return nil
	}

	wanted := make(map[int64]struct{}, len(systemIDs))
	for _, id := range systemIDs {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := s.clientOffsets[clientID]

	var matched []Event
	maxSeen := make(map[int64]int64)
	for _, e := range s.events {
		if _, ok := wanted[e.SystemID]; !ok {
			continue
		}
		prior := int64(0)
		if offsets != nil {
			prior = offsets[e.SystemID]
		}
		if e.EventID <= prior {
			continue
		}
		matched = append(matched, e)
		if e.EventID > maxSeen[e.SystemID] {
			maxSeen[e.SystemID] = e.EventID
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].EventID < matched[j].EventID })

	if len(maxSeen) > 0 {
		if offsets == nil {
			offsets = make(map[int64]int64)
			s.clientOffsets[clientID] = offsets
		}
		for sysID, maxID := range maxSeen {
			if maxID > offsets[sysID] {
				offsets[sysID] = maxID
			}
		}
	}

	return matched
}

// FetchOne returns only the smallest-event_id match across the
// requested systems and advances only that system's offset.
func (s *Store) FetchOne(clientID string, systemIDs []int64) (Event, bool) {
	if len(systemIDs) == 0 {
		return Event{}, false
	}

	wanted := make(map[int64]struct{}, len(systemIDs))
	for _, id := range systemIDs {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := s.clientOffsets[clientID]

	var best *Event
	for i := range s.events {
		e := &s.events[i]
		if _, ok := wanted[e.SystemID]; !ok {
			continue
		}
		prior := int64(0)
		if offsets != nil {
			prior = offsets[e.SystemID]
		}
		if e.EventID <= prior {
			continue
		}
		if best == nil || e.EventID < best.EventID {
			best = e
		}
	}

	if best == nil {
		return Event{}, false
	}

	if offsets == nil {
		offsets = make(map[int64]int64)
		s.clientOffsets[clientID] = offsets
	}
	if best.EventID > offsets[best.SystemID] {
		offsets[best.SystemID] = best.EventID
	}

	return *best, true
}

// SetFetchTimestamp records the wall-clock instant a system was last
// fetched from zKB.
func (s *Store) SetFetchTimestamp(systemID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchTimestamps[systemID] = s.clk.Now()
}

// GetFetchTimestamp returns the last recorded fetch instant, if any.
func (s *Store) GetFetchTimestamp(systemID int64) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.fetchTimestamps[systemID]
	return t, ok
}

// RecentlyFetched reports whether systemID was fetched within threshold.
func (s *Store) RecentlyFetched(systemID int64, threshold time.Duration) bool {
	t, ok := s.GetFetchTimestamp(systemID)
	if !ok {
		return false
	}
	return s.clk.Now().Sub(t) < threshold
}

// GarbageCollect computes the minimum offset across all known clients
// and systems, deletes every event at or below it, trims
// system_kills to maxPerSystem, and drops killmails no longer
// referenced by any system or event (spec.md §4.6).
func (s *Store) GarbageCollect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	minOffset, haveClients := s.minOffsetLocked()
	if !haveClients {
		minOffset = 0
	}

	kept := s.events[:0:0]
	for _, e := range s.events {
		if haveClients && e.EventID <= minOffset {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept

	for sysID, ids := range s.systemKills {
		if len(ids) > s.maxPerSystem {
			s.systemKills[sysID] = ids[:s.maxPerSystem]
		}
	}

	referenced := make(map[int64]struct{}, len(s.events))
	for _, e := range s.events {
		referenced[e.Killmail.KillmailID] = struct{}{}
	}
	for _, ids := range s.systemKills {
		for _, id := range ids {
			referenced[id] = struct{}{}
		}
	}
	for id := range s.killmails {
		if _, ok := referenced[id]; !ok {
			delete(s.killmails, id)
		}
	}
}

func (s *Store) minOffsetLocked() (int64, bool) {
	if len(s.clientOffsets) == 0 {
		return 0, false
	}

	var min int64 = -1
	found := false
	for _, systems := range s.clientOffsets {
		for _, offset := range systems {
			if !found || offset < min {
				min = offset
				found = true
			}
		}
	}
	return min, found
}

// Filter/Matcher (spec.md §4.8): evaluates a killmail against every
// affected subscription via the system and character indexes.
package subscription

import "wandererkills/internal/killmail"

// Manager owns the system and character indexes plus the subscription
// registry, and implements the matcher.
type Manager struct {
	bySystem    *Index
	byCharacter *Index

	registry *registry
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{
		bySystem:    NewIndex(),
		byCharacter: NewIndex(),
		registry:    newRegistry(),
	}
}

// Match returns every subscription ID whose criteria the killmail
// satisfies: system_index.lookup(s) ∪ character_index.lookup_many(C),
// OR semantics, plus every wildcard subscription (spec.md §4.8).
func (m *Manager) Match(km *killmail.Killmail) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}

	add(m.bySystem.Lookup(km.SolarSystemID))
	add(m.byCharacter.LookupMany(km.CharacterIDs()))
	add(m.registry.wildcardIDs())

	return out
}

// MatchBatch filters a list of killmails against every subscription,
// returning a map subscription_id -> matched killmails (spec.md §4.8).
func (m *Manager) MatchBatch(kms []*killmail.Killmail) map[string][]*killmail.Killmail {
	out := make(map[string][]*killmail.Killmail)
	for _, km := range kms {
		for _, subID := range m.Match(km) {
			out[subID] = append(out[subID], km)
		}
	}
	return out
}

// Create registers a new subscription and indexes it.
func (m *Manager) Create(sub *Subscription) {
	m.registry.put(sub)
	if len(sub.SystemIDs) > 0 {
		m.bySystem.Add(sub.ID, sub.SystemIDs)
	}
	if len(sub.CharacterIDs) > 0 {
		m.byCharacter.Add(sub.ID, sub.CharacterIDs)
	}
}

// Update replaces a subscription's criteria in both indexes.
func (m *Manager) Update(subID string, systemIDs, characterIDs []int64) {
	m.bySystem.Update(subID, systemIDs)
	m.byCharacter.Update(subID, characterIDs)
	m.registry.updateCriteria(subID, systemIDs, characterIDs)
}

// Remove deletes a subscription from both indexes and the registry.
func (m *Manager) Remove(subID string) {
	m.bySystem.Remove(subID)
	m.byCharacter.Remove(subID)
	m.registry.delete(subID)
}

// Get returns a subscription by ID.
func (m *Manager) Get(subID string) (*Subscription, bool) {
	return m.registry.get(subID)
}

// List returns every known subscription.
func (m *Manager) List() []*Subscription {
	return m.registry.list()
}

// Sweep runs the periodic empty-bucket safety sweep on both indexes
// (spec.md §4.7).
func (m *Manager) Sweep() (systemRemoved, characterRemoved int) {
	return m.bySystem.Sweep(), m.byCharacter.Sweep()
}

// Enrichment stages (spec.md §4.2 steps 6-7): victim and attacker
// reference-data lookups through the cache. Attacker lookups fan out
// with bounded concurrency once the attacker count passes a threshold,
// grounded in the teacher's worker-pool idiom (see
// other_examples/.../internal-worker-pool.go for the bounded Job/Pool
// shape this generalizes) but scoped down to a single per-killmail
// fan-out rather than a standing pool.
package killmail

import (
	"context"
	"log/slog"
	"sync"

	"wandererkills/internal/esi"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/refcache"
)

// Enricher resolves character/corporation/alliance/ship references on
// a Killmail via the shared reference cache.
type Enricher struct {
	cache *refcache.Cache
	cfg   config.EnrichConfig
	log   *slog.Logger
}

// NewEnricher builds an Enricher bound to a reference cache.
func NewEnricher(cache *refcache.Cache, cfg config.EnrichConfig, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{cache: cache, cfg: cfg, log: log}
}

// Enrich fills in km.Victim and every km.Attackers[i]'s Character/
// Corporation/Alliance/Ship sub-records. Per spec.md §4.2, lookup
// failures never fail the killmail: a failed lookup yields a nil
// sub-record.
func (e *Enricher) Enrich(ctx context.Context, km *Killmail) {
	e.enrichVictim(ctx, &km.Victim)

	if len(km.Attackers) >= e.cfg.MinAttackersForParallel {
		e.enrichAttackersParallel(ctx, km.Attackers)
	} else {
		for i := range km.Attackers {
			e.enrichAttacker(ctx, &km.Attackers[i])
		}
	}

	flatten(km)
}

func (e *Enricher) enrichVictim(ctx context.Context, v *Victim) {
	v.Character = e.lookup(ctx, refcache.KindCharacter, v.CharacterID)
	v.Corporation = e.lookup(ctx, refcache.KindCorporation, v.CorporationID)
	v.Alliance = e.lookup(ctx, refcache.KindAlliance, v.AllianceID)
	shipID := v.ShipTypeID
	v.Ship = e.lookup(ctx, refcache.KindShipType, &shipID)
}

func (e *Enricher) enrichAttacker(ctx context.Context, a *Attacker) {
	a.Character = e.lookup(ctx, refcache.KindCharacter, a.CharacterID)
	a.Corporation = e.lookup(ctx, refcache.KindCorporation, a.CorporationID)
	a.Alliance = e.lookup(ctx, refcache.KindAlliance, a.AllianceID)
	a.Ship = e.lookup(ctx, refcache.KindShipType, a.ShipTypeID)
}

// enrichAttackersParallel runs enrichAttacker over the attacker slice
// with at most MaxConcurrency workers in flight, each bounded by
// TaskTimeout. A task that times out leaves its attacker's sub-records
// nil rather than blocking the batch (spec.md §4.2 step 7, S5).
func (e *Enricher) enrichAttackersParallel(ctx context.Context, attackers []Attacker) {
	sem := make(chan struct{}, e.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i := range attackers {
		wg.Add(1)
		sem <- struct{}{}
		go func(a *Attacker) {
			defer wg.Done()
			defer func() { <-sem }()

			taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				defer func() {
					if r := recover(); r != nil {
						e.log.Error("attacker enrichment panicked", "character_id", a.CharacterID, "panic", r)
					}
				}()
				e.enrichAttacker(taskCtx, a)
			}()

			select {
			case <-done:
			case <-taskCtx.Done():
				e.log.Warn("attacker enrichment timed out", "character_id", a.CharacterID)
			}
		}(&attackers[i])
	}

	wg.Wait()
}

func (e *Enricher) lookup(ctx context.Context, kind refcache.Kind, id *int64) *Entity {
	if id == nil || *id == 0 {
		return nil
	}

	value, found, err := e.cache.Get(ctx, kind, *id)
	if err != nil || !found {
		if err != nil {
			e.log.Debug("reference lookup failed", "kind", kind, "id", *id, "error", err)
		}
		return nil
	}

	return toEntity(*id, value)
}

// toEntity extracts the display name from whichever ESI reference
// type the cache returned, per spec.md §4.3's kind-keyed store.
func toEntity(id int64, value any) *Entity {
	switch v := value.(type) {
	case *esi.Character:
		return &Entity{ID: id, Name: v.Name}
	case *esi.Corporation:
		return &Entity{ID: id, Name: v.Name}
	case *esi.Alliance:
		return &Entity{ID: id, Name: v.Name}
	case *esi.ShipType:
		return &Entity{ID: id, Name: v.Name}
	default:
		return &Entity{ID: id}
	}
}

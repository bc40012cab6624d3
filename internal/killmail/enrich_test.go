package killmail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wandererkills/internal/platform/clock"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/refcache"
)

// TestEnrichAttackersParallelTimeoutYieldsPartialResult mirrors spec.md
// §8 scenario S5: one of five attacker lookups sleeps far past the
// per-task timeout; Enrich must still return promptly, without a
// panic/crash, with all five attackers kept.
func TestEnrichAttackersParallelTimeoutYieldsPartialResult(t *testing.T) {
	slowCharacterID := int64(999)

	cache := refcache.New(clock.Real{}, time.Hour, time.Hour, time.Minute,
		func(ctx context.Context, kind refcache.Kind, id int64) (any, error) {
			if kind == refcache.KindCharacter && id == slowCharacterID {
				select {
				case <-time.After(500 * time.Millisecond):
				case <-ctx.Done():
				}
				return nil, ctx.Err()
			}
			return nil, nil
		})

	enricher := NewEnricher(cache, config.EnrichConfig{
		MinAttackersForParallel: 3,
		MaxConcurrency:          2,
		TaskTimeout:             50 * time.Millisecond,
	}, nil)

	ids := []int64{1, 2, 3, 4, slowCharacterID}
	attackers := make([]Attacker, len(ids))
	for i, id := range ids {
		id := id
		attackers[i] = Attacker{CharacterID: &id}
	}

	km := &Killmail{Attackers: attackers}

	done := make(chan struct{})
	go func() {
		enricher.Enrich(context.Background(), km)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enrich did not return; likely blocked on the slow lookup")
	}

	assert.Equal(t, 5, km.AttackerCount)
}

// TestEnrichAttackersParallelRecoversFromPanic mirrors spec.md §4.2
// step 7's second failure mode: a crashed worker yields a nil attacker
// sub-record rather than taking down the process. One of five lookups
// panics; Enrich must still return with all five attackers kept and
// the panicking attacker's Character left nil.
func TestEnrichAttackersParallelRecoversFromPanic(t *testing.T) {
	panicCharacterID := int64(13)

	cache := refcache.New(clock.Real{}, time.Hour, time.Hour, time.Minute,
		func(ctx context.Context, kind refcache.Kind, id int64) (any, error) {
			if kind == refcache.KindCharacter && id == panicCharacterID {
				panic("simulated loader panic")
			}
			return nil, nil
		})

	enricher := NewEnricher(cache, config.EnrichConfig{
		MinAttackersForParallel: 3,
		MaxConcurrency:          2,
		TaskTimeout:             time.Second,
	}, nil)

	ids := []int64{1, 2, 3, 4, panicCharacterID}
	attackers := make([]Attacker, len(ids))
	for i, id := range ids {
		id := id
		attackers[i] = Attacker{CharacterID: &id}
	}

	km := &Killmail{Attackers: attackers}

	done := make(chan struct{})
	go func() {
		enricher.Enrich(context.Background(), km)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enrich did not return; panic likely escaped the worker")
	}

	assert.Equal(t, 5, km.AttackerCount)
	for i, a := range km.Attackers {
		if ids[i] == panicCharacterID {
			assert.Nil(t, a.Character, "panicking lookup should leave the attacker's sub-record nil")
		}
	}
}

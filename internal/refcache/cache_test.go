package refcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/platform/clock"
)

func TestCacheHitAvoidsReload(t *testing.T) {
	var calls int32
	load := func(ctx context.Context, kind Kind, id int64) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "Some Name", nil
	}

	c := New(clock.Real{}, time.Minute, time.Hour, time.Second, load)

	v1, found1, err1 := c.Get(context.Background(), KindCharacter, 42)
	require.NoError(t, err1)
	assert.True(t, found1)
	assert.Equal(t, "Some Name", v1)

	v2, found2, err2 := c.Get(context.Background(), KindCharacter, 42)
	require.NoError(t, err2)
	assert.True(t, found2)
	assert.Equal(t, "Some Name", v2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheNegativeResultCached(t *testing.T) {
	var calls int32
	load := func(ctx context.Context, kind Kind, id int64) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	c := New(clock.Real{}, time.Minute, time.Hour, time.Minute, load)

	_, found, err := c.Get(context.Background(), KindAlliance, 7)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.Get(context.Background(), KindAlliance, 7)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheExpiryTriggersReload(t *testing.T) {
	frozen := clock.NewFrozen(time.Now())
	var calls int32
	load := func(ctx context.Context, kind Kind, id int64) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	c := New(frozen, time.Second, time.Hour, time.Second, load)

	_, _, err := c.Get(context.Background(), KindCorporation, 1)
	require.NoError(t, err)

	frozen.Advance(2 * time.Second)

	_, _, err = c.Get(context.Background(), KindCorporation, 1)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheCoalescesConcurrentLoads(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	load := func(ctx context.Context, kind Kind, id int64) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}

	c := New(clock.Real{}, time.Minute, time.Hour, time.Second, load)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := c.Get(context.Background(), KindCharacter, 99)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCachePurgeRemovesExpired(t *testing.T) {
	frozen := clock.NewFrozen(time.Now())
	load := func(ctx context.Context, kind Kind, id int64) (any, error) {
		return "v", nil
	}
	c := New(frozen, time.Second, time.Hour, time.Second, load)

	_, _, err := c.Get(context.Background(), KindCharacter, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	frozen.Advance(2 * time.Second)
	removed := c.Purge()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Len())
}

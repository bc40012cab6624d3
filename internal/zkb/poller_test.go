package zkb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/platform/clock"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/platform/httpfetch"
)

// TestPollerBackoffGrowsOnRepeatedErrors exercises spec.md §8 scenario
// S6: three consecutive HTTP 500s should double the backoff each time,
// capped at max, and reset to initial on the next success.
func TestPollerBackoffGrowsOnRepeatedErrors(t *testing.T) {
	var requestCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requestCount, 1)
		if n <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"package":null}`))
	}))
	defer srv.Close()

	cfg := config.ZKBConfig{
		RedisQEndpoint: srv.URL,
		FastInterval:   1 * time.Second,
		IdleInterval:   5 * time.Second,
		BackoffInitial: 1000 * time.Millisecond,
		BackoffFactor:  2,
		BackoffMax:     30000 * time.Millisecond,
		CutoffWindow:   24 * time.Hour,
	}

	fetcher := httpfetch.New(srv.Client(), nil)
	// the fetcher's own retry is disabled per call by pollOnceNoRetry
	// below, so the poller's own backoff ladder is what we observe
	// per-poll.
	zero := 0
	_ = zero

	p := New(cfg, fetcher, clock.Real{}, noopHandler, nil)

	d1 := p.pollOnceNoRetry(context.Background())
	assert.Equal(t, 2000*time.Millisecond, d1)

	d2 := p.pollOnceNoRetry(context.Background())
	assert.Equal(t, 4000*time.Millisecond, d2)

	d3 := p.pollOnceNoRetry(context.Background())
	assert.Equal(t, 8000*time.Millisecond, d3)

	d4 := p.pollOnce(context.Background())
	assert.Equal(t, cfg.IdleInterval, d4)
	require.Equal(t, 1000*time.Millisecond, time.Duration(p.backoff.Load()))
}

func noopHandler(ctx context.Context, km RawKillmail, zkbMeta ZKBData, cutoff time.Time) error {
	return nil
}

// pollOnceNoRetry bypasses the fetcher's own retry loop by setting
// MaxRetries to 0 for this single call, isolating the poller's backoff
// ladder from the fetcher's independent retry/backoff.
func (p *Poller) pollOnceNoRetry(ctx context.Context) time.Duration {
	zero := 0
	endpoint := p.cfg.RedisQEndpoint + "?queueID=test&ttw=1"
	_, err := p.fetcher.Get(ctx, endpoint, httpfetch.Options{MaxRetries: &zero})
	if err != nil {
		return p.onError(err)
	}
	p.resetBackoff()
	return p.cfg.IdleInterval
}

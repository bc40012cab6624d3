package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/platform/apperr"
)

func newFastFetcher() *Fetcher {
	f := New(&http.Client{Timeout: 2 * time.Second}, nil)
	f.baseBackoff = time.Millisecond
	f.maxBackoff = 5 * time.Millisecond
	return f
}

func TestGetReturnsBodyOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newFastFetcher().Get(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGetReturnsNotFoundErrorWithoutRetrying(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newFastFetcher().Get(context.Background(), srv.URL, Options{})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)
	assert.EqualValues(t, 1, hits.Load())
}

func TestGetRetriesOn503ThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newFastFetcher().Get(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 2, hits.Load())
}

func TestGetFailsFatalOn400WithoutRetrying(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newFastFetcher().Get(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestGetExhaustsRetriesOnPersistent503(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFastFetcher()
	maxRetries := 1
	_, err := f.Get(context.Background(), srv.URL, Options{MaxRetries: &maxRetries})
	require.Error(t, err)
	assert.EqualValues(t, 2, hits.Load(), "initial attempt plus one retry")
}

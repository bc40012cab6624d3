package esi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/platform/config"
	"wandererkills/internal/platform/httpfetch"
	"wandererkills/internal/platform/ratelimit"
	"wandererkills/internal/refcache"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fetcher := httpfetch.New(srv.Client(), ratelimit.NewLimiter())
	return New(fetcher, config.ESIConfig{Base: srv.URL, UserAgent: "test"})
}

func TestGetCharacterDecodesResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/characters/123/", r.URL.Path)
		w.Write([]byte(`{"name":"Test Pilot","corporation_id":456}`))
	})

	char, err := client.GetCharacter(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, "Test Pilot", char.Name)
	assert.EqualValues(t, 456, char.CorporationID)
}

func TestLoaderReturnsNilOnNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	v, err := client.Loader()(context.Background(), refcache.KindCharacter, 123)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLoaderPropagatesUnexpectedErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Loader()(context.Background(), refcache.KindShipType, 1)
	assert.Error(t, err)
}

func TestLoaderRejectsUnknownKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not issue a request for an unknown kind")
	})

	_, err := client.Loader()(context.Background(), refcache.Kind("bogus"), 1)
	assert.Error(t, err)
}

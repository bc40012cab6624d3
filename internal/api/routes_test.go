package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/broker"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/killmail"
	"wandererkills/internal/platform/clock"
	"wandererkills/internal/subscription"
)

func newTestRouter(t *testing.T) (*chi.Mux, *eventstore.Store, *subscription.Manager) {
	t.Helper()
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "1.0.0"))

	store := eventstore.New(clock.Real{}, broker.New(8, nil, nil), 1000, nil)
	manager := subscription.NewManager()

	routes := NewRoutes(store, manager, nil, nil, nil, nil)
	routes.Register(api)

	return router, store, manager
}

func TestGetKillmailNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/killmail/12345", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetKillmailFound(t *testing.T) {
	router, store, _ := newTestRouter(t)
	km := &killmail.Killmail{KillmailID: 99, SolarSystemID: 30000142, KillTime: time.Now()}
	store.Insert(context.Background(), km.SolarSystemID, km)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/killmail/99", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body killmail.Killmail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(99), body.KillmailID)
}

func TestSystemKillCountReflectsInserts(t *testing.T) {
	router, store, _ := newTestRouter(t)
	store.Insert(context.Background(), 30000142, &killmail.Killmail{KillmailID: 1, SolarSystemID: 30000142})
	store.Insert(context.Background(), 30000142, &killmail.Killmail{KillmailID: 2, SolarSystemID: 30000142})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system_kill_count/30000142", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body CountBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Count)
}

func TestCreateSubscriptionRejectsMalformedCallbackURL(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// present and non-empty, so huma's own required-string schema check
	// passes; the validator package's "url,startswith=http" rule is what
	// must reject this.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"subscriber_id":"sub-1","system_ids":[30000142],"callback_url":"not-a-url"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSubscriptionRejectsOutOfRangeSystemID(t *testing.T) {
	router, _, manager := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"subscriber_id":"sub-1","system_ids":[999999999],"callback_url":"https://example.invalid/hook"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, manager.List())
}

func TestCreateSubscriptionRejectsOutOfRangeCharacterID(t *testing.T) {
	router, _, manager := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"subscriber_id":"sub-1","character_ids":[9999999999],"callback_url":"https://example.invalid/hook"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, manager.List())
}

func TestCreateSubscriptionAcceptsValidBody(t *testing.T) {
	router, _, manager := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"subscriber_id":"sub-1","system_ids":[30000142],"callback_url":"https://example.invalid/hook"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, manager.List(), 1)
}

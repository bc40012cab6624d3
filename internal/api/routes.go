package api

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wandererkills/internal/broker"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/refcache"
	"wandererkills/internal/subscription"
	"wandererkills/internal/wsapi"
	"wandererkills/internal/zkb"
)

// Routes registers the Polling API and Subscriptions CRUD on a huma
// API instance (spec.md §4.11, §6), the way every teacher module's
// routes.go registers onto the shared huma.API.
type Routes struct {
	store    *eventstore.Store
	manager  *subscription.Manager
	poller   *zkb.Poller
	hub      *wsapi.Hub
	brokerH  *broker.Broker
	cache    *refcache.Cache
	validate *validator.Validate
}

// NewRoutes builds a Routes bound to the service's core components.
func NewRoutes(store *eventstore.Store, manager *subscription.Manager, poller *zkb.Poller, hub *wsapi.Hub, b *broker.Broker, cache *refcache.Cache) *Routes {
	return &Routes{store: store, manager: manager, poller: poller, hub: hub, brokerH: b, cache: cache, validate: validator.New()}
}

// Register wires every operation named in spec.md §6's HTTP surface.
func (rt *Routes) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      "GET",
		Path:        "/ping",
		Summary:     "Liveness probe",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "pong"}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
	}, rt.health)

	huma.Register(api, huma.Operation{
		OperationID: "metrics",
		Method:      "GET",
		Path:        "/metrics",
		Summary:     "Process metrics",
	}, rt.metrics)

	huma.Register(api, huma.Operation{
		OperationID: "get-killmail",
		Method:      "GET",
		Path:        "/killmail/{id}",
		Summary:     "Fetch a single killmail by ID",
	}, rt.getKillmail)

	huma.Register(api, huma.Operation{
		OperationID: "system-killmails",
		Method:      "GET",
		Path:        "/system_killmails/{system_id}",
		Summary:     "List killmails currently stored for a system",
	}, rt.systemKillmails)

	huma.Register(api, huma.Operation{
		OperationID: "system-kill-count",
		Method:      "GET",
		Path:        "/system_kill_count/{system_id}",
		Summary:     "Current kill count for a system",
	}, rt.systemKillCount)

	huma.Register(api, huma.Operation{
		OperationID: "killfeed-poll",
		Method:      "GET",
		Path:        "/api/killfeed",
		Summary:     "Batch poll for new events since the client's offset",
	}, rt.killfeed)

	huma.Register(api, huma.Operation{
		OperationID: "killfeed-next",
		Method:      "GET",
		Path:        "/api/killfeed/next",
		Summary:     "Poll for the single next event since the client's offset",
	}, rt.killfeedNext)

	huma.Register(api, huma.Operation{
		OperationID:   "create-subscription",
		Method:        "POST",
		Path:          "/api/v1/subscriptions",
		Summary:       "Create a webhook subscription",
		DefaultStatus: 201,
	}, rt.createSubscription)

	huma.Register(api, huma.Operation{
		OperationID: "list-subscriptions",
		Method:      "GET",
		Path:        "/api/v1/subscriptions",
		Summary:     "List all subscriptions",
	}, rt.listSubscriptions)

	huma.Register(api, huma.Operation{
		OperationID: "delete-subscription",
		Method:      "DELETE",
		Path:        "/api/v1/subscriptions/{subscriber_id}",
		Summary:     "Delete a subscriber's subscription",
	}, rt.deleteSubscription)
}

func (rt *Routes) health(ctx context.Context, _ *struct{}) (*struct{ Body HealthBody }, error) {
	state := "unknown"
	if rt.poller != nil {
		state = rt.poller.Status().State
	}
	sockets := 0
	if rt.hub != nil {
		sockets = rt.hub.ActiveSessions()
	}

	healthy := state == "running" || state == "idle"
	status := "ok"
	if !healthy {
		status = "unhealthy"
	}

	body := HealthBody{Status: status, PollerState: state, ActiveSockets: sockets}
	if !healthy {
		return nil, huma.Error503ServiceUnavailable("poller not running")
	}
	return &struct{ Body HealthBody }{Body: body}, nil
}

func (rt *Routes) metrics(ctx context.Context, _ *struct{}) (*struct{ Body MetricsBody }, error) {
	body := MetricsBody{}
	if rt.poller != nil {
		st := rt.poller.Status()
		body.KillsReceived = st.KillsReceived
		body.KillsSkippedOld = st.KillsSkippedOld
		body.PollerErrors = st.Errors
	}
	if rt.hub != nil {
		body.ActiveSockets = rt.hub.ActiveSessions()
	}
	if rt.brokerH != nil {
		body.LaggedDeliveries = rt.brokerH.LaggedCount()
	}
	if rt.cache != nil {
		body.CacheEntries = rt.cache.Len()
	}
	return &struct{ Body MetricsBody }{Body: body}, nil
}

func (rt *Routes) getKillmail(ctx context.Context, in *GetKillmailInput) (*GetKillmailOutput, error) {
	km, ok := rt.store.GetKillmail(in.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("killmail %d not found", in.ID))
	}
	return &GetKillmailOutput{Body: km}, nil
}

func (rt *Routes) systemKillmails(ctx context.Context, in *SystemKillmailsInput) (*SystemKillmailsOutput, error) {
	return &SystemKillmailsOutput{Body: rt.store.ListBySystem(in.SystemID)}, nil
}

func (rt *Routes) systemKillCount(ctx context.Context, in *SystemKillCountInput) (*SystemKillCountOutput, error) {
	return &SystemKillCountOutput{Body: CountBody{Count: rt.store.KillCount(in.SystemID)}}, nil
}

func (rt *Routes) killfeed(ctx context.Context, in *KillfeedInput) (*KillfeedOutput, error) {
	events := rt.store.FetchForClient(in.ClientID, in.Systems)
	if len(events) == 0 {
		return &KillfeedOutput{Body: nil}, nil
	}

	out := make([]EventDTO, len(events))
	for i, e := range events {
		out[i] = EventDTO{EventID: e.EventID, SystemID: e.SystemID, Killmail: e.Killmail}
	}
	return &KillfeedOutput{Body: &KillfeedBody{Events: out}}, nil
}

func (rt *Routes) killfeedNext(ctx context.Context, in *KillfeedInput) (*KillfeedNextOutput, error) {
	event, ok := rt.store.FetchOne(in.ClientID, in.Systems)
	if !ok {
		return &KillfeedNextOutput{Body: nil}, nil
	}
	return &KillfeedNextOutput{Body: &EventDTO{EventID: event.EventID, SystemID: event.SystemID, Killmail: event.Killmail}}, nil
}

func (rt *Routes) createSubscription(ctx context.Context, in *CreateSubscriptionInput) (*CreateSubscriptionOutput, error) {
	body := in.Body
	if len(body.SystemIDs) == 0 && len(body.CharacterIDs) == 0 {
		return nil, huma.Error400BadRequest("at least one of system_ids/character_ids is required")
	}
	if err := rt.validate.Struct(body); err != nil {
		return nil, huma.Error400BadRequest("invalid subscription", err)
	}

	sub := &subscription.Subscription{
		ID:           uuid.NewString(),
		SubscriberID: body.SubscriberID,
		SystemIDs:    body.SystemIDs,
		CharacterIDs: body.CharacterIDs,
		CallbackURL:  body.CallbackURL,
		CreatedAt:    time.Now(),
	}
	rt.manager.Create(sub)

	return &CreateSubscriptionOutput{Body: CreateSubscriptionResponseBody{SubscriptionID: sub.ID}}, nil
}

func (rt *Routes) listSubscriptions(ctx context.Context, _ *struct{}) (*ListSubscriptionsOutput, error) {
	subs := rt.manager.List()
	out := make([]SubscriptionDTO, len(subs))
	for i, s := range subs {
		out[i] = SubscriptionDTO{
			SubscriptionID: s.ID,
			SubscriberID:   s.SubscriberID,
			SystemIDs:      s.SystemIDs,
			CharacterIDs:   s.CharacterIDs,
			CallbackURL:    s.CallbackURL,
		}
	}
	return &ListSubscriptionsOutput{Body: out}, nil
}

func (rt *Routes) deleteSubscription(ctx context.Context, in *DeleteSubscriptionInput) (*struct{}, error) {
	for _, s := range rt.manager.List() {
		if s.SubscriberID == in.SubscriberID {
			rt.manager.Remove(s.ID)
		}
	}
	return nil, nil
}

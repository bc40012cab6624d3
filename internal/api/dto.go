// Package api exposes the Polling API and Subscriptions CRUD over
// HTTP (spec.md §4.11, §6), wired with chi + huma the way the teacher
// registers every module's routes (see e.g.
// internal/sitemap/routes/routes.go and internal/corporation/dto).
package api

import "wandererkills/internal/killmail"

// GetKillmailInput is the path parameters for GET /killmail/{id}.
type GetKillmailInput struct {
	ID int64 `path:"id" minimum:"1" description:"Killmail ID"`
}

// GetKillmailOutput wraps a single killmail.
type GetKillmailOutput struct {
	Body *killmail.Killmail
}

// SystemKillmailsInput is the path parameters for
// GET /system_killmails/{system_id}.
type SystemKillmailsInput struct {
	SystemID int64 `path:"system_id" minimum:"30000000" maximum:"50000000" description:"Solar system ID"`
}

// SystemKillmailsOutput wraps a list of killmails for a system.
type SystemKillmailsOutput struct {
	Body []*killmail.Killmail
}

// SystemKillCountInput is the path parameters for
// GET /system_kill_count/{system_id}.
type SystemKillCountInput struct {
	SystemID int64 `path:"system_id" minimum:"30000000" maximum:"50000000"`
}

// CountBody is the JSON body {count}.
type CountBody struct {
	Count int64 `json:"count"`
}

// SystemKillCountOutput wraps a count.
type SystemKillCountOutput struct {
	Body CountBody
}

// KillfeedInput is the query parameters shared by /api/killfeed and
// /api/killfeed/next.
type KillfeedInput struct {
	ClientID string `query:"client_id" pattern:"^[A-Za-z0-9_-]{1,100}$" required:"true"`
	Systems  []int64 `query:"systems" required:"true"`
}

// EventDTO is the JSON shape of one (event_id, system_id, killmail) tuple.
type EventDTO struct {
	EventID  int64              `json:"event_id"`
	SystemID int64              `json:"system_id"`
	Killmail *killmail.Killmail `json:"killmail"`
}

// KillfeedBody is the JSON body for GET /api/killfeed.
type KillfeedBody struct {
	Events []EventDTO `json:"events"`
}

// KillfeedOutput wraps the batch poll body; Body is nil for a 204.
type KillfeedOutput struct {
	Body *KillfeedBody
}

// KillfeedNextOutput wraps a single event; Body is nil for a 204.
type KillfeedNextOutput struct {
	Body *EventDTO
}

// CreateSubscriptionBody is the POST /api/v1/subscriptions request
// body. The validate tags are enforced by internal/api's validator
// pass in addition to huma's own JSON-schema validation.
type CreateSubscriptionBody struct {
	SubscriberID string  `json:"subscriber_id" required:"true" validate:"required"`
	SystemIDs    []int64 `json:"system_ids,omitempty" validate:"max=10000,dive,max=50000000"`
	CharacterIDs []int64 `json:"character_ids,omitempty" validate:"max=50000,dive,max=3000000000"`
	CallbackURL  string  `json:"callback_url" required:"true" validate:"required,url,startswith=http"`
}

// CreateSubscriptionInput is the request for POST /api/v1/subscriptions.
type CreateSubscriptionInput struct {
	Body CreateSubscriptionBody
}

// CreateSubscriptionResponseBody is the 201 response body.
type CreateSubscriptionResponseBody struct {
	SubscriptionID string `json:"subscription_id"`
}

// CreateSubscriptionOutput wraps the creation response.
type CreateSubscriptionOutput struct {
	Body CreateSubscriptionResponseBody
}

// SubscriptionDTO is the JSON shape of one subscription in listings.
type SubscriptionDTO struct {
	SubscriptionID string  `json:"subscription_id"`
	SubscriberID   string  `json:"subscriber_id"`
	SystemIDs      []int64 `json:"system_ids,omitempty"`
	CharacterIDs   []int64 `json:"character_ids,omitempty"`
	CallbackURL    string  `json:"callback_url"`
}

// ListSubscriptionsOutput wraps every known subscription.
type ListSubscriptionsOutput struct {
	Body []SubscriptionDTO
}

// DeleteSubscriptionInput is the path parameter for
// DELETE /api/v1/subscriptions/{subscriber_id}.
type DeleteSubscriptionInput struct {
	SubscriberID string `path:"subscriber_id"`
}

// HealthBody is the JSON body for GET /health.
type HealthBody struct {
	Status        string `json:"status"`
	PollerState   string `json:"poller_state"`
	ActiveSockets int    `json:"active_sockets"`
}

// MetricsBody is the JSON body for GET /metrics.
type MetricsBody struct {
	KillsReceived    int64 `json:"kills_received"`
	KillsSkippedOld  int64 `json:"kills_skipped_old"`
	PollerErrors     int64 `json:"poller_errors"`
	ActiveSockets    int   `json:"active_sockets"`
	LaggedDeliveries int64 `json:"lagged_deliveries"`
	CacheEntries     int   `json:"cache_entries"`
}

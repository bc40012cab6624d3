// Package wsapi implements the WebSocket session protocol (spec.md
// §4.10, §6): join/subscribe_systems/unsubscribe_systems/get_status
// from the client, killmail_update/kill_count_update pushes from the
// server. Connection/session lifecycle is grounded in the teacher's
// ConnectionManager (internal/websocket/services/connection.go) using
// gorilla/websocket + a uuid connection id.
package wsapi

import "time"

// ClientEvent names the recognized C→S event types (spec.md §4.10).
type ClientEvent string

const (
	EventJoin              ClientEvent = "join"
	EventSubscribeSystems   ClientEvent = "subscribe_systems"
	EventUnsubscribeSystems ClientEvent = "unsubscribe_systems"
	EventGetStatus          ClientEvent = "get_status"
)

// ServerEvent names the recognized S→C event types.
type ServerEvent string

const (
	EventKillmailUpdate  ServerEvent = "killmail_update"
	EventKillCountUpdate ServerEvent = "kill_count_update"
)

// ClientMessage is the envelope every inbound message is decoded into.
type ClientMessage struct {
	Event   ClientEvent     `json:"event"`
	Topic   string          `json:"topic,omitempty"`
	Payload ClientPayload   `json:"payload"`
}

// ClientPayload carries the union of fields any client message might
// send; unused fields are simply absent.
type ClientPayload struct {
	Systems []int64 `json:"systems,omitempty"`
}

// JoinReply answers a successful join/subscribe_systems/
// unsubscribe_systems.
type JoinReply struct {
	SubscriptionID    string  `json:"subscription_id,omitempty"`
	SubscribedSystems []int64 `json:"subscribed_systems"`
	Status            string  `json:"status,omitempty"`
}

// StatusReply answers get_status.
type StatusReply struct {
	SubscriptionID    string    `json:"subscription_id"`
	SubscribedSystems []int64   `json:"subscribed_systems"`
	ConnectedAt       time.Time `json:"connected_at"`
	UserID            string    `json:"user_id"`
}

// KillmailUpdate is a server push of one or more killmails for a system.
type KillmailUpdate struct {
	SystemID  int64       `json:"system_id"`
	Killmails []any       `json:"killmails"`
	Timestamp time.Time   `json:"timestamp"`
	Preload   bool        `json:"preload"`
}

// KillCountUpdate is a server push of a system's current kill count.
type KillCountUpdate struct {
	SystemID  int64     `json:"system_id"`
	Count     int64     `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorReply is sent back on a malformed or rejected client message.
type ErrorReply struct {
	Error string `json:"error"`
}

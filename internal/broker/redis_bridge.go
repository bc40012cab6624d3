// RedisBridge cross-publishes killmail events to other service
// instances over go-redis pub/sub, the way the teacher's RedisHub
// (internal/websocket/services/redis.go) bridges WebSocket messages
// across instances. It is additive: core fan-out correctness does not
// depend on it (spec.md §9's in-process broker is sufficient alone).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"wandererkills/internal/killmail"
)

const channelPrefix = "wandererkills:system:"

// RedisBridge implements Bridge over a shared go-redis client.
type RedisBridge struct {
	client   *redis.Client
	serverID string
	log      *slog.Logger
}

// NewRedisBridge builds a RedisBridge bound to addr.
func NewRedisBridge(addr, serverID string, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		serverID: serverID,
		log:      log,
	}
}

type wireMessage struct {
	ServerID string             `json:"server_id"`
	SystemID int64              `json:"system_id"`
	Killmail *killmail.Killmail `json:"killmail,omitempty"`
	Count    int64              `json:"count,omitempty"`
	Detailed bool               `json:"detailed"`
}

// Publish publishes msg to this system's Redis channel, tagged with
// this instance's server ID so Subscribe can ignore its own echoes.
// Detailed (killmail_update) and count-only (kill_count_update)
// messages go to distinct channels, mirroring the in-process broker's
// separate system:<id> and system:<id>:detailed topics.
func (b *RedisBridge) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(wireMessage{
		ServerID: b.serverID,
		SystemID: msg.SystemID,
		Killmail: msg.Killmail,
		Count:    msg.Count,
		Detailed: msg.Detailed,
	})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(msg.SystemID, msg.Detailed), payload).Err()
}

func channelFor(systemID int64, detailed bool) string {
	if detailed {
		return fmt.Sprintf("%s%d:detailed", channelPrefix, systemID)
	}
	return fmt.Sprintf("%s%d", channelPrefix, systemID)
}

// Subscribe listens for cross-instance messages on a system's detailed
// or count channel and invokes onMessage for every message not
// originated by this instance. It runs until ctx is cancelled.
func (b *RedisBridge) Subscribe(ctx context.Context, systemID int64, detailed bool, onMessage func(Message)) {
	pubsub := b.client.Subscribe(ctx, channelFor(systemID, detailed))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var wm wireMessage
			if err := json.Unmarshal([]byte(redisMsg.Payload), &wm); err != nil {
				b.log.Warn("failed to decode broker bridge message", "error", err)
				continue
			}
			if wm.ServerID == b.serverID {
				continue
			}
			onMessage(Message{SystemID: wm.SystemID, Killmail: wm.Killmail, Count: wm.Count, Detailed: wm.Detailed})
		}
	}
}

// Close releases the underlying Redis client.
func (b *RedisBridge) Close() error { return b.client.Close() }

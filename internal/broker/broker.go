// Package broker is the in-process fan-out pub/sub over
// system:<system_id> and system:<system_id>:detailed topics (spec.md
// §4.9). Its bounded-channel, drop-oldest-on-lag backpressure policy is
// grounded on the teacher's RedisHub in
// internal/websocket/services/redis.go, whose
// PublishToRoom/BroadcastToAllInstances fan-out this generalizes from
// a Redis-backed bridge into a local, in-process subscriber table
// with an equivalent optional Redis bridge for cross-instance delivery.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"wandererkills/internal/killmail"
)

// Message is one published update, tagged with its system. Killmail is
// set for a detailed (system:<id>:detailed) publish and nil for a
// count-only (system:<id>) publish, whose current count is carried in
// Count instead.
type Message struct {
	SystemID int64
	Killmail *killmail.Killmail
	Count    int64
	Detailed bool
}

type subscriber struct {
	id string
	ch chan Message
	mu sync.Mutex
}

// Broker is the process-wide publish/subscribe hub.
type Broker struct {
	mu          sync.RWMutex
	topics      map[string]map[string]*subscriber
	bufferSize  int
	laggedCount atomic.Int64

	serverID string
	log      *slog.Logger

	bridge Bridge
}

// Bridge is the optional cross-instance fan-out, implemented by
// internal/broker's Redis bridge (BROKER_REDIS_ENABLED), grounded on
// the teacher's RedisHub.
type Bridge interface {
	Publish(ctx context.Context, msg Message) error
}

// New builds a Broker with a given per-subscriber channel buffer size.
func New(bufferSize int, bridge Bridge, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		topics:     make(map[string]map[string]*subscriber),
		bufferSize: bufferSize,
		serverID:   uuid.NewString(),
		log:        log,
		bridge:     bridge,
	}
}

func topicName(systemID int64, detailed bool) string {
	if detailed {
		return fmt.Sprintf("system:%d:detailed", systemID)
	}
	return fmt.Sprintf("system:%d", systemID)
}

// Subscription is a handle a caller (typically a WebSocket session)
// uses to receive messages for one topic and to unsubscribe.
type Subscription struct {
	ch     <-chan Message
	topic  string
	subID  string
	broker *Broker
}

// Receive returns the channel to read published messages from.
func (s *Subscription) Receive() <-chan Message { return s.ch }

// Close unsubscribes from the topic.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s.topic, s.subID)
}

// Subscribe registers a new bounded-channel subscriber on
// system:<systemID>:detailed, the full-killmail feed behind
// killmail_update pushes.
func (b *Broker) Subscribe(systemID int64) *Subscription {
	return b.subscribeTopic(topicName(systemID, true))
}

// SubscribeCounts registers a subscriber on system:<systemID>, the
// lightweight feed behind kill_count_update pushes.
func (b *Broker) SubscribeCounts(systemID int64) *Subscription {
	return b.subscribeTopic(topicName(systemID, false))
}

func (b *Broker) subscribeTopic(topic string) *Subscription {
	sub := &subscriber{id: uuid.NewString(), ch: make(chan Message, b.bufferSize)}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*subscriber)
	}
	b.topics[topic][sub.id] = sub
	b.mu.Unlock()

	return &Subscription{ch: sub.ch, topic: topic, subID: sub.id, broker: b}
}

func (b *Broker) unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.topics[topic]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Publish delivers km to every subscriber of system:<systemID>:detailed.
// The broker never blocks the publisher: if a subscriber's buffer is
// full, the oldest queued message is dropped to make room and the
// lagged counter is incremented (spec.md §4.9).
func (b *Broker) Publish(systemID int64, km *killmail.Killmail) {
	b.publish(topicName(systemID, true), Message{SystemID: systemID, Killmail: km, Detailed: true})
}

// PublishCount delivers the system's current kill count to every
// subscriber of system:<systemID> (spec.md §4.9's lightweight topic,
// behind kill_count_update).
func (b *Broker) PublishCount(systemID, count int64) {
	b.publish(topicName(systemID, false), Message{SystemID: systemID, Count: count})
}

func (b *Broker) publish(topic string, msg Message) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	bridge := b.bridge
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, msg)
	}

	if bridge != nil {
		go func() {
			if err := bridge.Publish(context.Background(), msg); err != nil {
				b.log.Warn("broker bridge publish failed", "error", err)
			}
		}()
	}
}

func (b *Broker) deliver(s *subscriber, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- msg:
		return
	default:
	}

	select {
	case <-s.ch:
		b.laggedCount.Add(1)
	default:
	}

	select {
	case s.ch <- msg:
	default:
	}
}

// LaggedCount reports how many messages have been dropped for lag,
// process-wide, for /metrics.
func (b *Broker) LaggedCount() int64 { return b.laggedCount.Load() }

// ServerID identifies this broker instance to a cross-instance bridge.
func (b *Broker) ServerID() string { return b.serverID }

// SetBridge attaches a cross-instance bridge after construction, for
// the case where the bridge needs the broker's own ServerID to tag its
// messages (see broker.NewRedisBridge).
func (b *Broker) SetBridge(bridge Bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = bridge
}

package wsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wandererkills/internal/broker"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/killmail"
	"wandererkills/internal/subscription"
)

const (
	preloadWindow = 24 * time.Hour
	preloadLimit  = 5
)

// Session is one WebSocket connection's server-side state: its
// gorilla connection, its subscription in the matcher, and its live
// broker subscriptions (two per followed system: the detailed feed and
// the count feed). Concurrent
// writes are serialized through writeMu, mirroring the teacher's
// ConnectionManager write-lock-per-connection discipline.
type Session struct {
	id          string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	connectedAt time.Time

	manager *subscription.Manager
	store   *eventstore.Store
	broker  *broker.Broker

	mu              sync.Mutex
	subscriptionID  string
	systems         map[int64]struct{}
	brokerSubs      map[int64]*broker.Subscription
	countSubs       map[int64]*broker.Subscription

	log *slog.Logger
}

// NewSession wraps an accepted WebSocket connection.
func NewSession(conn *websocket.Conn, manager *subscription.Manager, store *eventstore.Store, b *broker.Broker, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		connectedAt: time.Now(),
		manager:     manager,
		store:       store,
		broker:      b,
		systems:     make(map[int64]struct{}),
		brokerSubs:  make(map[int64]*broker.Subscription),
		countSubs:   make(map[int64]*broker.Subscription),
		log:         log,
	}
}

// Run drives the session's read loop until the connection closes or
// ctx is cancelled, then tears down its subscription and broker feeds
// (spec.md §4.10: "On disconnect, the session removes its subscription
// from both indexes and unsubscribes all broker topics").
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.writeJSON(ErrorReply{Error: "invalid_format"})
			continue
		}

		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Event {
	case EventJoin:
		s.join(ctx, msg.Payload.Systems)
	case EventSubscribeSystems:
		s.subscribeSystems(ctx, msg.Payload.Systems)
	case EventUnsubscribeSystems:
		s.unsubscribeSystems(msg.Payload.Systems)
	case EventGetStatus:
		s.getStatus()
	default:
		s.writeJSON(ErrorReply{Error: "unknown_event"})
	}
}

func (s *Session) join(ctx context.Context, systems []int64) {
	s.mu.Lock()
	if s.subscriptionID == "" {
		s.subscriptionID = uuid.NewString()
		s.manager.Create(&subscription.Subscription{ID: s.subscriptionID, CreatedAt: s.connectedAt})
	}
	subID := s.subscriptionID
	s.mu.Unlock()

	s.addSystems(ctx, subID, systems)

	s.writeJSON(JoinReply{
		SubscriptionID:    subID,
		SubscribedSystems: s.subscribedSystems(),
		Status:            "connected",
	})
}

func (s *Session) subscribeSystems(ctx context.Context, systems []int64) {
	s.mu.Lock()
	subID := s.subscriptionID
	s.mu.Unlock()
	if subID == "" {
		s.writeJSON(ErrorReply{Error: "not_joined"})
		return
	}

	s.addSystems(ctx, subID, systems)
	s.writeJSON(JoinReply{SubscribedSystems: s.subscribedSystems()})
}

func (s *Session) unsubscribeSystems(systems []int64) {
	s.mu.Lock()
	for _, sys := range systems {
		if brokerSub, ok := s.brokerSubs[sys]; ok {
			brokerSub.Close()
			delete(s.brokerSubs, sys)
		}
		if countSub, ok := s.countSubs[sys]; ok {
			countSub.Close()
			delete(s.countSubs, sys)
		}
		delete(s.systems, sys)
	}
	subID := s.subscriptionID
	all := s.systemsLocked()
	s.mu.Unlock()

	if subID != "" {
		s.manager.Update(subID, all, nil)
	}
	s.writeJSON(JoinReply{SubscribedSystems: all})
}

func (s *Session) getStatus() {
	s.mu.Lock()
	subID := s.subscriptionID
	s.mu.Unlock()

	s.writeJSON(StatusReply{
		SubscriptionID:    subID,
		SubscribedSystems: s.subscribedSystems(),
		ConnectedAt:       s.connectedAt,
		UserID:            s.id,
	})
}

// addSystems registers newly followed systems in the index, opens the
// detailed and count broker feeds for each, and preloads up to 5 recent kills per system
// from the past 24h (spec.md §4.10).
func (s *Session) addSystems(ctx context.Context, subID string, systems []int64) {
	var fresh []int64

	s.mu.Lock()
	for _, sys := range systems {
		if _, already := s.systems[sys]; already {
			continue
		}
		s.systems[sys] = struct{}{}
		fresh = append(fresh, sys)
	}
	all := s.systemsLocked()
	s.mu.Unlock()

	if subID != "" {
		s.manager.Update(subID, all, nil)
	}

	for _, sys := range fresh {
		s.followBrokerTopic(ctx, sys)
		s.followCountTopic(ctx, sys)
		s.preload(sys)
	}
}

func (s *Session) followBrokerTopic(ctx context.Context, systemID int64) {
	// A session built without a broker (NewSession's b is nil) opens
	// no feeds.
	if s.broker == nil {
		return
	}
	sub := s.broker.Subscribe(systemID)

	s.mu.Lock()
	s.brokerSubs[systemID] = sub
	s.mu.Unlock()

	go s.forwardBrokerMessages(ctx, systemID, sub)
}

func (s *Session) followCountTopic(ctx context.Context, systemID int64) {
	if s.broker == nil {
		return
	}
	sub := s.broker.SubscribeCounts(systemID)

	s.mu.Lock()
	s.countSubs[systemID] = sub
	s.mu.Unlock()

	go s.forwardCountMessages(ctx, systemID, sub)
}

func (s *Session) forwardBrokerMessages(ctx context.Context, systemID int64, sub *broker.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive():
			if !ok {
				return
			}
			s.writeJSON(KillmailUpdate{
				SystemID:  systemID,
				Killmails: []any{msg.Killmail},
				Timestamp: time.Now(),
				Preload:   false,
			})
		}
	}
}

func (s *Session) forwardCountMessages(ctx context.Context, systemID int64, sub *broker.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive():
			if !ok {
				return
			}
			s.writeJSON(KillCountUpdate{
				SystemID:  systemID,
				Count:     msg.Count,
				Timestamp: time.Now(),
			})
		}
	}
}

func (s *Session) preload(systemID int64) {
	if s.store == nil {
		return
	}
	cutoff := time.Now().Add(-preloadWindow)

	all := s.store.ListBySystem(systemID)
	var recent []*killmail.Killmail
	for _, km := range all {
		if km.KillTime.Before(cutoff) {
			continue
		}
		recent = append(recent, km)
		if len(recent) >= preloadLimit {
			break
		}
	}
	if len(recent) == 0 {
		return
	}

	payload := make([]any, len(recent))
	for i, km := range recent {
		payload[i] = km
	}

	s.writeJSON(KillmailUpdate{
		SystemID:  systemID,
		Killmails: payload,
		Timestamp: time.Now(),
		Preload:   true,
	})
}

func (s *Session) systemsLocked() []int64 {
	out := make([]int64, 0, len(s.systems))
	for sys := range s.systems {
		out = append(out, sys)
	}
	return out
}

func (s *Session) subscribedSystems() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemsLocked()
}

func (s *Session) writeJSON(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Debug("websocket write failed", "session_id", s.id, "error", err)
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	subID := s.subscriptionID
	subs := s.brokerSubs
	counts := s.countSubs
	s.brokerSubs = nil
	s.countSubs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Close()
		}
	}
	for _, sub := range counts {
		if sub != nil {
			sub.Close()
		}
	}
	if subID != "" {
		s.manager.Remove(subID)
	}
	s.conn.Close()
}

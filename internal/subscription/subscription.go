package subscription

import "time"

// Limits from spec.md §3.
const (
	MaxSystemIDs    = 10000
	MaxCharacterIDs = 50000
	MaxSystemID     = 50_000_000
	MaxCharacterID  = 3_000_000_000
)

// Subscription is one subscriber's interest in systems and/or
// characters. It holds no delivery sink: a WebSocket session delivers
// through its own broker feeds, and CallbackURL is only stored for
// subscriptions created over HTTP.
type Subscription struct {
	ID            string
	SubscriberID  string
	SystemIDs     []int64
	CharacterIDs  []int64
	CallbackURL   string
	CreatedAt     time.Time
}

// IsWildcard reports whether both ID sets are empty: a wildcard
// subscription matches every killmail (spec.md §3, §4.8).
func (s *Subscription) IsWildcard() bool {
	return len(s.SystemIDs) == 0 && len(s.CharacterIDs) == 0
}

package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/killmail"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := New(4, nil, nil)
	sub := b.Subscribe(30000142)
	defer sub.Close()

	km := &killmail.Killmail{KillmailID: 1}
	b.Publish(30000142, km)

	msg := <-sub.Receive()
	assert.Equal(t, int64(30000142), msg.SystemID)
	assert.Equal(t, int64(1), msg.Killmail.KillmailID)
}

func TestBrokerDropsOldestWhenBufferFull(t *testing.T) {
	b := New(2, nil, nil)
	sub := b.Subscribe(1)
	defer sub.Close()

	b.Publish(1, &killmail.Killmail{KillmailID: 1})
	b.Publish(1, &killmail.Killmail{KillmailID: 2})
	b.Publish(1, &killmail.Killmail{KillmailID: 3})

	require.Equal(t, int64(1), b.LaggedCount())

	first := <-sub.Receive()
	second := <-sub.Receive()
	assert.Equal(t, int64(2), first.Killmail.KillmailID)
	assert.Equal(t, int64(3), second.Killmail.KillmailID)
}

func TestBrokerPublishNeverBlocksWithoutSubscribers(t *testing.T) {
	b := New(1, nil, nil)
	assert.NotPanics(t, func() {
		b.Publish(999, &killmail.Killmail{KillmailID: 1})
	})
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4, nil, nil)
	sub := b.Subscribe(5)
	sub.Close()

	b.Publish(5, &killmail.Killmail{KillmailID: 1})

	select {
	case <-sub.Receive():
		t.Fatal("expected no message after unsubscribe")
	default:
	}
}

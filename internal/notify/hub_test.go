package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RoutesOnlyToMatchingAccount(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()

	aliceSub := hub.Subscribe(alice)
	bobSub := hub.Subscribe(bob)
	defer aliceSub.Close()
	defer bobSub.Close()

	n := hub.Deliver(Event{Type: EventConsulting, AccountID: alice, Message: "It's your turn!"})
	assert.Equal(t, 1, n)

	select {
	case ev := <-aliceSub.C:
		assert.Equal(t, EventConsulting, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive her event")
	}

	select {
	case ev := <-bobSub.C:
		t.Fatalf("bob received someone else's event: %+v", ev)
	default:
	}
}

func TestHub_MultipleSubscriptionsPerAccount(t *testing.T) {
	hub := NewHub()
	account := uuid.New()

	phone := hub.Subscribe(account)
	laptop := hub.Subscribe(account)
	require.Equal(t, 2, hub.SubscriberCount(account))

	require.NoError(t, hub.Publish(context.Background(), Event{Type: EventCompleted, AccountID: account}))
	assert.Len(t, phone.C, 1)
	assert.Len(t, laptop.C, 1)

	phone.Close()
	laptop.Close()
	assert.Equal(t, 0, hub.SubscriberCount(account))
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub()
	account := uuid.New()
	sub := hub.Subscribe(account)
	defer sub.Close()

	for i := 0; i < defaultBuffer; i++ {
		require.Equal(t, 1, hub.Deliver(Event{AccountID: account}))
	}
	assert.Equal(t, 0, hub.Deliver(Event{AccountID: account}))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(uuid.New())

	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestRedisBroker_RelayDeliversToHub(t *testing.T) {
	hub := NewHub()
	broker := NewRedisBroker(nil, "clinic:notifications", hub, zerolog.Nop())

	account := uuid.New()
	sub := hub.Subscribe(account)
	defer sub.Close()

	appointmentID := uuid.New()
	payload, err := json.Marshal(Event{
		Type:          EventCompleted,
		Message:       "Your appointment has been completed.",
		AppointmentID: appointmentID,
		AccountID:     account,
	})
	require.NoError(t, err)

	broker.relay(string(payload))
	broker.relay("{not json")

	require.Len(t, sub.C, 1)
	ev := <-sub.C
	assert.Equal(t, appointmentID, ev.AppointmentID)
	assert.Equal(t, EventCompleted, ev.Type)
}

// Package notify fans lifecycle events out to the patient they concern.
// The Hub routes by account id; RedisBroker relays events between API
// instances; the websocket handler maps subscriptions onto live connections.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCompleted  EventType = "completed"
	EventConsulting EventType = "consulting"
)

// Event is addressed to exactly one account.
type Event struct {
	Type          EventType `json:"type"`
	Message       string    `json:"message"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	AccountID     uuid.UUID `json:"accountId"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher hands an event to the fan-out. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

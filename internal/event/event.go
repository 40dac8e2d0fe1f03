package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserRegistered     Type = "user.registered"
	TypeUserCreated        Type = "user.created"
	TypeUserLoggedIn       Type = "user.logged_in"
	TypeLoginFailed        Type = "user.login_failed"
	TypeSessionRefreshed   Type = "session.refreshed"
	TypeSessionRevoked     Type = "session.revoked"
	TypePatientCreated     Type = "patient.created"
	TypePatientPaired      Type = "patient.paired"
	TypeDeviceLoggedIn     Type = "device.logged_in"
	TypeDevicePrimarySet   Type = "device.primary_set"
	TypeDeviceUpdated      Type = "device.updated"
	TypeDeviceRevoked      Type = "device.revoked"
	TypePairingCodeCreated Type = "pairing_code.created"
	TypePairingCodeRevoked Type = "pairing_code.revoked"
)

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
	ActorID   string      `json:"actor_id,omitempty"` // Who triggered the event
}

func New(typ Type, actorID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Discard drops every event. Services use it when no bus is wired.
type Discard struct{}

func (Discard) Publish(Event) {}

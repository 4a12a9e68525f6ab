package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/session-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered       EventType = "user_registered"
	EventUserLoggedIn         EventType = "user_logged_in"
	EventLoginFailed          EventType = "login_failed"
	EventAccessTokenRefreshed EventType = "access_token_refreshed"
	EventRefreshRejected      EventType = "refresh_rejected"
	EventSessionLoggedOut     EventType = "session_logged_out"
)

// AllEventTypes lists every session event type.
func AllEventTypes() []EventType {
	return []EventType{
		EventUserRegistered,
		EventUserLoggedIn,
		EventLoginFailed,
		EventAccessTokenRefreshed,
		EventRefreshRejected,
		EventSessionLoggedOut,
	}
}

// Actor identifies the account an event is about, when known.
type Actor struct {
	UserID   string      `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Role     domain.Role `json:"role,omitempty"`
}

// ActorFromUser builds an actor from a stored user.
func ActorFromUser(user *domain.User) Actor {
	if user == nil {
		return Actor{}
	}
	return Actor{UserID: user.ID, Username: user.Username, Role: user.Role}
}

// Event represents a session lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType EventType, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// RefreshRejectedPayload payload.
type RefreshRejectedPayload struct {
	Kind   domain.TokenKind `json:"kind"`
	Reason string           `json:"reason"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/leadwatch/internal/models"
)

// EventType represents different event types in the system
type EventType string

const (
	// EventCredentialsUpdated is broadcast after login or a successful refresh
	EventCredentialsUpdated EventType = "credentials_updated"
	// EventLoginRequired is broadcast whenever credentials were cleared because authentication is dead
	EventLoginRequired EventType = "login_required"
	// EventJobSnapshot carries a monitor snapshot after each applied fetch
	EventJobSnapshot EventType = "job_snapshot"
	// EventJobsReloaded carries the refreshed active job list
	EventJobsReloaded EventType = "jobs_reloaded"
	// EventStatusChanged carries the bridge status after a sign-in state change
	EventStatusChanged EventType = "status_changed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// CredentialsUpdatedPayload is the payload of EventCredentialsUpdated. It never carries tokens.
type CredentialsUpdatedPayload struct {
	Source    string    `json:"source"` // "login", "register" or "refresh"
	Rotated   bool      `json:"rotated"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginRequiredPayload is the payload of EventLoginRequired
type LoginRequiredPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// JobsReloadedPayload is the payload of EventJobsReloaded
type JobsReloadedPayload struct {
	Jobs     []models.Job `json:"jobs"`
	LoadedAt time.Time    `json:"loaded_at"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type. The returned func removes this subscription and is safe to call twice.
	Subscribe(eventType EventType, handler EventHandler) (func(), error)

	// Publish an event to all subscribers without waiting for them
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}

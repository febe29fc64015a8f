package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
)

// AllEventTypes lists every event the application publishes
var AllEventTypes = []interfaces.EventType{
	interfaces.EventCredentialsUpdated,
	interfaces.EventLoginRequired,
	interfaces.EventJobSnapshot,
	interfaces.EventJobsReloaded,
	interfaces.EventStatusChanged,
}

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case interfaces.CredentialsUpdatedPayload:
			logEvent = logEvent.Str("source", payload.Source).Bool("rotated", payload.Rotated)
		case interfaces.LoginRequiredPayload:
			logEvent = logEvent.Str("path", payload.Path).Str("reason", payload.Reason)
		case interfaces.JobsReloadedPayload:
			logEvent = logEvent.Int("jobs", len(payload.Jobs))
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types.
// Job snapshots are skipped: they are published on every poll tick.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	count := 0
	for _, eventType := range AllEventTypes {
		if eventType == interfaces.EventJobSnapshot {
			continue
		}
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
		count++
	}

	logger.Debug().
		Int("event_type_count", count).
		Msg("Logger subscribed to event types")

	return nil
}

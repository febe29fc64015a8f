package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
)

func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	assert.NoError(t, subscriber(ctx, interfaces.Event{
		Type:    interfaces.EventLoginRequired,
		Payload: interfaces.LoginRequiredPayload{Path: "/login", Reason: "refresh failed"},
	}))
	assert.NoError(t, subscriber(ctx, interfaces.Event{Type: interfaces.EventJobsReloaded}))
}

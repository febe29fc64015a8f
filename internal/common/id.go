package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a poll session ID with the "poll_" prefix.
// It is used as the logger correlation id for every fetch of the session.
func NewSessionID() string {
	return "poll_" + uuid.New().String()
}

// NewInstanceID generates the bridge instance ID reported by /api/status
func NewInstanceID() string {
	return uuid.New().String()
}

package handlers

import (
	"context"

	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/ternarybob/leadwatch/internal/services/status"
)

// StatusProvider reports the bridge status
type StatusProvider interface {
	GetStatus(ctx context.Context) status.Status
}

// JobTable is the active job list served on /api/jobs
type JobTable interface {
	View() monitor.JobListView
	Load(ctx context.Context) error
	Cancel(ctx context.Context, jobID string) error
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

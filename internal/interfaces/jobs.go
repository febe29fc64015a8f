package interfaces

import (
	"context"

	"github.com/ternarybob/leadwatch/internal/models"
)

// JobsAPI is the backend job contract consumed by the monitors.
// Every call goes through the session gateway.
type JobsAPI interface {
	// GetJob fetches status, progress and the full log to date
	GetJob(ctx context.Context, jobID string) (*models.JobDetail, error)

	// ListJobs lists job descriptors, optionally scoped to a lead
	ListJobs(ctx context.Context, opts models.JobListOptions) ([]models.Job, error)

	// CancelJob requests cancellation; only valid while queued or running
	CancelJob(ctx context.Context, jobID string) (*models.CancelResult, error)

	// VerifyLead queues a verification job for the lead
	VerifyLead(ctx context.Context, leadID int64) (*models.VerifyResult, error)

	// LeadVerificationLog resolves the most recent verification job of a lead
	LeadVerificationLog(ctx context.Context, leadID int64) (*models.LeadLog, error)
}

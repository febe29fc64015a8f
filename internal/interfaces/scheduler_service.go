package interfaces

import (
	"context"
	"time"
)

// ScheduledTask is one run of a scheduled job. ctx ends when the scheduler
// stops or the run exceeds its timeout.
type ScheduledTask func(ctx context.Context) error

// ScheduledJobStatus represents the current status of a scheduled job
type ScheduledJobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}

// SchedulerService manages cron-based scheduling
type SchedulerService interface {
	// Start the scheduler
	Start() error

	// Stop the scheduler and wait for running jobs
	Stop() error

	// RegisterJob registers a job; overlapping runs of the same job are skipped
	RegisterJob(name, schedule string, task ScheduledTask) error

	// TriggerNow runs a registered job immediately
	TriggerNow(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*ScheduledJobStatus, error)
}

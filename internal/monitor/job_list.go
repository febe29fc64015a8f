package monitor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// MessageSuperadminOnly replaces the backend text when a cancel is forbidden
const MessageSuperadminOnly = "Only superadmin can cancel jobs."

// JobListView is the jobs table state
type JobListView struct {
	Jobs       []models.Job `json:"jobs"`
	Loading    bool         `json:"loading"`
	Error      string       `json:"error,omitempty"`
	Cancelling []string     `json:"cancelling,omitempty"`
	LoadedAt   time.Time    `json:"loaded_at"`
}

// JobList keeps the table of active jobs. Overlapping loads apply in issue
// order; an older response never replaces a newer one.
type JobList struct {
	api    interfaces.JobsAPI
	logger arbor.ILogger

	mu         sync.Mutex
	seq        uint64
	applied    uint64
	jobs       []models.Job
	loading    bool
	err        string
	cancelling map[string]bool
	loadedAt   time.Time
	onLoad     func([]models.Job, time.Time)
}

// NewJobList creates an empty table
func NewJobList(api interfaces.JobsAPI, logger arbor.ILogger) *JobList {
	return &JobList{
		api:        api,
		logger:     logger,
		jobs:       []models.Job{},
		cancelling: map[string]bool{},
	}
}

// OnLoad registers the callback invoked after every applied load
func (l *JobList) OnLoad(fn func(jobs []models.Job, loadedAt time.Time)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLoad = fn
}

// Load fetches active jobs and replaces the table
func (l *JobList) Load(ctx context.Context) error {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.loading = true
	l.mu.Unlock()

	jobs, err := l.api.ListJobs(ctx, models.JobListOptions{ActiveOnly: true})

	l.mu.Lock()
	if seq < l.applied {
		l.mu.Unlock()
		return err
	}
	l.applied = seq
	if seq == l.seq {
		l.loading = false
	}
	if err != nil {
		l.err = models.DisplayMessage(err, "Could not load jobs")
		l.mu.Unlock()
		l.logger.Warn().Err(err).Msg("Failed to load jobs")
		return err
	}
	l.jobs = jobs
	l.err = ""
	l.loadedAt = time.Now()
	loadedAt, fn := l.loadedAt, l.onLoad
	l.mu.Unlock()

	l.logger.Debug().Int("jobs", len(jobs)).Msg("Jobs loaded")
	if fn != nil {
		fn(append([]models.Job(nil), jobs...), loadedAt)
	}
	return nil
}

// Cancel requests cancellation of jobID and reloads the table on success.
// A forbidden cancel is reported as a superadmin-only restriction.
func (l *JobList) Cancel(ctx context.Context, jobID string) error {
	l.mu.Lock()
	if l.cancelling[jobID] {
		l.mu.Unlock()
		return nil
	}
	l.cancelling[jobID] = true
	l.err = ""
	l.mu.Unlock()

	_, err := l.api.CancelJob(ctx, jobID)

	l.mu.Lock()
	delete(l.cancelling, jobID)
	if err != nil {
		l.err = cancelMessage(err)
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancel request failed")
		return err
	}
	return l.Load(ctx)
}

func cancelMessage(err error) string {
	if models.IsBackendCode(err, "FORBIDDEN") {
		return MessageSuperadminOnly
	}
	msg := models.DisplayMessage(err, "Could not cancel job")
	if strings.Contains(strings.ToLower(msg), "superadmin") {
		return MessageSuperadminOnly
	}
	return msg
}

// View returns a copy of the table state
func (l *JobList) View() JobListView {
	l.mu.Lock()
	defer l.mu.Unlock()

	view := JobListView{
		Jobs:     append([]models.Job{}, l.jobs...),
		Loading:  l.loading,
		Error:    l.err,
		LoadedAt: l.loadedAt,
	}
	for id := range l.cancelling {
		view.Cancelling = append(view.Cancelling, id)
	}
	slices.Sort(view.Cancelling)
	return view
}

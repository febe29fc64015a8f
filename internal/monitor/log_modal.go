package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"golang.org/x/sync/errgroup"
)

// ModalView is what the log viewer renders
type ModalView struct {
	Title      string   `json:"title"`
	LeadID     *int64   `json:"lead_id,omitempty"`
	Open       bool     `json:"open"`
	Loading    bool     `json:"loading"`
	Error      string   `json:"error,omitempty"`
	Cancelling bool     `json:"cancelling"`
	CanCancel  bool     `json:"can_cancel"`
	Position   string   `json:"position"`
	HasPrev    bool     `json:"has_prev"`
	HasNext    bool     `json:"has_next"`
	Snapshot   Snapshot `json:"snapshot"`
}

// LogModal shows the log of one job of a group and moves between siblings.
//
// ops serializes Open, Navigate and Close so a session is never started for a
// modal that has since closed. mu only guards fields and is never held while
// calling into the monitor, so update callbacks may call View.
type LogModal struct {
	ctx     context.Context
	api     interfaces.JobsAPI
	monitor *Monitor
	logger  arbor.ILogger

	ops sync.Mutex

	mu         sync.Mutex
	gen        uint64
	open       bool
	lead       *int64
	group      *Group
	loading    bool
	err        string
	cancelling bool
}

// NewLogModal creates a closed modal. Sessions it starts live under ctx.
func NewLogModal(ctx context.Context, api interfaces.JobsAPI, monitor *Monitor, logger arbor.ILogger) *LogModal {
	return &LogModal{
		ctx:     ctx,
		api:     api,
		monitor: monitor,
		logger:  logger,
	}
}

// Monitor exposes the underlying poll session owner
func (l *LogModal) Monitor() *Monitor {
	return l.monitor
}

// Open shows the most recent verification job of a lead. Siblings are the
// lead's other jobs; failing to list them leaves a single-job group.
func (l *LogModal) Open(ctx context.Context, leadID int64) error {
	l.ops.Lock()
	defer l.ops.Unlock()

	gen := l.reset(true)
	l.mu.Lock()
	l.lead = &leadID
	l.loading = true
	l.mu.Unlock()

	var leadLog *models.LeadLog
	var siblings []models.Job

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leadLog, err = l.api.LeadVerificationLog(gctx, leadID)
		return err
	})
	g.Go(func() error {
		jobs, err := l.api.ListJobs(gctx, models.JobListOptions{LeadID: &leadID})
		if err != nil {
			l.logger.Debug().Err(err).Int64("lead_id", leadID).Msg("Sibling jobs unavailable")
			return nil
		}
		siblings = jobs
		return nil
	})
	err := g.Wait()

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return nil
	}
	l.loading = false
	if err != nil {
		l.err = models.DisplayMessage(err, "No log available")
		l.mu.Unlock()
		l.logger.Warn().Err(err).Int64("lead_id", leadID).Msg("Failed to resolve verification log")
		return err
	}
	if leadLog.JobID == "" {
		l.err = "No log available"
		l.mu.Unlock()
		return fmt.Errorf("lead %d has no verification job", leadID)
	}
	l.group = NewGroup(siblings, leadLog.JobID)
	l.mu.Unlock()

	l.monitor.Watch(l.ctx, leadLog.JobID)
	return nil
}

// OpenJob shows job directly. Its group is the jobs sharing its lead;
// a job without a lead stands alone.
func (l *LogModal) OpenJob(job models.Job, jobs []models.Job) {
	l.ops.Lock()
	defer l.ops.Unlock()

	l.reset(true)

	siblings := []models.Job{job}
	if job.LeadID != nil {
		siblings = siblings[:0]
		for _, other := range jobs {
			if other.ID == job.ID || other.SameParent(job) {
				siblings = append(siblings, other)
			}
		}
	}

	l.mu.Lock()
	l.lead = job.LeadID
	l.group = NewGroup(siblings, job.ID)
	l.mu.Unlock()

	l.monitor.Watch(l.ctx, job.ID)
}

// Navigate moves to the previous or next sibling. The previous session is
// torn down before the next one starts. Returns false at a boundary.
func (l *LogModal) Navigate(dir Direction) bool {
	l.ops.Lock()
	defer l.ops.Unlock()

	l.mu.Lock()
	if !l.open || l.group == nil {
		l.mu.Unlock()
		return false
	}
	job, ok := l.group.Move(dir)
	if !ok {
		l.mu.Unlock()
		return false
	}
	l.gen++ // results of a cancel still in flight belong to the job left behind
	l.err = ""
	l.cancelling = false
	l.mu.Unlock()

	l.monitor.Watch(l.ctx, job.ID)
	return true
}

// Cancel requests cancellation of the job being shown. On success the log is
// refetched at once; on failure an inline error is shown and polling carries on.
func (l *LogModal) Cancel(ctx context.Context) error {
	snap := l.monitor.Snapshot()

	l.mu.Lock()
	if !l.open || snap.JobID == "" || !snap.Status.IsCancellable() || l.cancelling {
		l.mu.Unlock()
		return nil
	}
	gen := l.gen
	l.cancelling = true
	l.err = ""
	l.mu.Unlock()

	_, err := l.api.CancelJob(ctx, snap.JobID)

	l.mu.Lock()
	stale := l.gen != gen
	if !stale {
		l.cancelling = false
		if err != nil {
			l.err = models.DisplayMessage(err, "Could not cancel job")
		}
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn().Err(err).Str("job_id", snap.JobID).Msg("Cancel request failed")
		return err
	}
	if stale {
		return nil
	}
	return l.monitor.Refetch(ctx)
}

// Close tears down the session and forgets the group. Idempotent.
func (l *LogModal) Close() {
	l.ops.Lock()
	defer l.ops.Unlock()
	l.reset(false)
}

// reset stops polling and clears modal state, returning the new generation
func (l *LogModal) reset(open bool) uint64 {
	l.monitor.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.open = open
	l.lead = nil
	l.group = nil
	l.loading = false
	l.err = ""
	l.cancelling = false
	return l.gen
}

// Title renders the heading: job kind, short id and position in the group
func (l *LogModal) Title() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.titleLocked()
}

func (l *LogModal) titleLocked() string {
	if l.group == nil {
		return "Log"
	}
	job, ok := l.group.Current()
	if !ok {
		return "Log"
	}
	kind := string(job.Kind)
	if kind == "" {
		kind = "job"
	}
	return fmt.Sprintf("Log — %s (%s…) %s", kind, job.ShortID(), l.group.Position())
}

// View combines modal state with the current poll snapshot
func (l *LogModal) View() ModalView {
	snap := l.monitor.Snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()

	view := ModalView{
		Title:      l.titleLocked(),
		LeadID:     l.lead,
		Open:       l.open,
		Loading:    l.loading || snap.Loading,
		Error:      l.err,
		Cancelling: l.cancelling,
		CanCancel:  snap.Status.IsCancellable() && !l.cancelling,
		Position:   "0/0",
		Snapshot:   snap,
	}
	if view.Error == "" {
		view.Error = snap.Error
	}
	if l.group != nil {
		view.Position = l.group.Position()
		view.HasPrev = l.group.Index() > 0
		view.HasNext = l.group.Index() < l.group.Len()-1
	}
	return view
}

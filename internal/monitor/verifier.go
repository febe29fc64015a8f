package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// Verifier status messages
const (
	MessageQueueing  = "Queueing..."
	MessageVerifying = "Verifying... (waiting for worker)."
	MessageSucceeded = "Done. Email updated."
	MessageCancelled = "Cancelled."
)

// VerifierOptions controls how long each kind of message stays visible
type VerifierOptions struct {
	SuccessMessage     time.Duration
	ErrorMessage       time.Duration
	VerifyErrorMessage time.Duration
	ShortMessage       time.Duration
}

// VerifyView is the inline status shown next to a lead
type VerifyView struct {
	LeadID  *int64   `json:"lead_id,omitempty"`
	JobID   string   `json:"job_id,omitempty"`
	Active  bool     `json:"active"`
	Message string   `json:"message,omitempty"`
	Lines   []string `json:"log_lines"`
}

// Verifier triggers a lead verification and follows its job until it settles.
// A new Verify supersedes the previous one, including its pending message timers.
type Verifier struct {
	ctx     context.Context
	api     interfaces.JobsAPI
	monitor *Monitor
	opts    VerifierOptions
	logger  arbor.ILogger

	// ops orders monitor Stop/Watch against gen changes
	ops sync.Mutex

	mu         sync.Mutex
	gen        uint64
	lead       *int64
	jobID      string
	active     bool
	message    string
	lines      []string
	completed  bool
	clearTimer *time.Timer
	settled    chan struct{}
	onChange   func(VerifyView)
	onComplete func(leadID int64)
}

// NewVerifier wires a verifier to its own monitor. The monitor's update
// callback is taken over by the verifier.
func NewVerifier(ctx context.Context, api interfaces.JobsAPI, monitor *Monitor, opts VerifierOptions, logger arbor.ILogger) *Verifier {
	settled := make(chan struct{})
	close(settled)
	v := &Verifier{
		ctx:     ctx,
		api:     api,
		monitor: monitor,
		opts:    opts,
		logger:  logger,
		lines:   []string{},
		settled: settled,
	}
	monitor.OnUpdate(v.onSnapshot)
	return v
}

// OnChange registers the callback invoked with every view change
func (v *Verifier) OnChange(fn func(VerifyView)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// OnComplete registers the callback fired once per successful verification
func (v *Verifier) OnComplete(fn func(leadID int64)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onComplete = fn
}

// Settled is closed once the current verification has finished and its message has cleared
func (v *Verifier) Settled() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settled
}

// View returns the current inline status
func (v *Verifier) View() VerifyView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewLocked()
}

// Verify queues a verification job for leadID and starts following it
func (v *Verifier) Verify(ctx context.Context, leadID int64) error {
	v.ops.Lock()
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.stopTimerLocked()
	select {
	case <-v.settled:
		v.settled = make(chan struct{})
	default:
	}
	v.lead = &leadID
	v.jobID = ""
	v.active = true
	v.completed = false
	v.message = MessageQueueing
	v.lines = []string{}
	view, fn := v.viewLocked(), v.onChange
	v.mu.Unlock()

	v.monitor.Stop()
	v.ops.Unlock()
	notifyView(fn, view)

	result, err := v.api.VerifyLead(ctx, leadID)

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return err
	}
	if err != nil {
		var backendErr *models.BackendError
		hold := v.opts.ShortMessage
		if errors.As(err, &backendErr) {
			v.message = "Error: " + models.DisplayMessage(err, "")
			hold = v.opts.VerifyErrorMessage
		} else {
			v.message = models.DisplayMessage(err, "Error")
		}
		v.active = false
		v.scheduleClearLocked(gen, hold)
		view, fn = v.viewLocked(), v.onChange
		v.mu.Unlock()

		v.logger.Warn().Err(err).Int64("lead_id", leadID).Msg("Verification trigger failed")
		notifyView(fn, view)
		return err
	}
	v.jobID = result.JobID
	v.message = MessageVerifying
	view, fn = v.viewLocked(), v.onChange
	v.mu.Unlock()

	v.logger.Info().Int64("lead_id", leadID).Str("job_id", result.JobID).Msg("Verification queued")
	notifyView(fn, view)

	v.ops.Lock()
	defer v.ops.Unlock()
	v.mu.Lock()
	current := v.gen == gen
	v.mu.Unlock()
	if !current {
		return nil
	}
	v.monitor.Watch(v.ctx, result.JobID)
	return nil
}

// Reset abandons the current verification and clears the inline status
func (v *Verifier) Reset() {
	v.ops.Lock()
	v.mu.Lock()
	v.gen++
	v.stopTimerLocked()
	v.clearLocked()
	view, fn := v.viewLocked(), v.onChange
	v.mu.Unlock()

	v.monitor.Stop()
	v.ops.Unlock()
	notifyView(fn, view)
}

func (v *Verifier) onSnapshot(snap Snapshot) {
	v.mu.Lock()
	if !v.active || snap.JobID == "" || snap.JobID != v.jobID {
		v.mu.Unlock()
		return
	}
	gen := v.gen
	if len(snap.Lines) > 0 {
		v.lines = snap.Lines
	}

	var complete func(int64)
	var leadID int64
	switch snap.State {
	case StateTerminal:
		v.active = false
		switch snap.Status {
		case models.JobStatusSucceeded:
			v.message = MessageSucceeded
			v.scheduleClearLocked(gen, v.opts.SuccessMessage)
			if !v.completed && v.lead != nil {
				v.completed = true
				complete, leadID = v.onComplete, *v.lead
			}
		case models.JobStatusFailed:
			jobErr := snap.JobError
			if jobErr == "" {
				jobErr = "Job failed"
			}
			v.message = "Error: " + jobErr
			v.scheduleClearLocked(gen, v.opts.ErrorMessage)
		default:
			v.message = MessageCancelled
			v.scheduleClearLocked(gen, v.opts.ShortMessage)
		}
	case StateAborted:
		if snap.StopReason == StopTimeout {
			v.clearLocked()
		} else {
			v.active = false
			v.message = snap.Error
			v.lines = []string{}
			v.scheduleClearLocked(gen, v.opts.ShortMessage)
		}
	}
	view, fn := v.viewLocked(), v.onChange
	v.mu.Unlock()

	notifyView(fn, view)
	if complete != nil {
		complete(leadID)
	}
}

func (v *Verifier) scheduleClearLocked(gen uint64, after time.Duration) {
	v.stopTimerLocked()
	v.clearTimer = time.AfterFunc(after, func() {
		v.mu.Lock()
		if v.gen != gen || v.active {
			v.mu.Unlock()
			return
		}
		v.clearLocked()
		view, fn := v.viewLocked(), v.onChange
		v.mu.Unlock()
		notifyView(fn, view)
	})
}

func (v *Verifier) stopTimerLocked() {
	if v.clearTimer != nil {
		v.clearTimer.Stop()
		v.clearTimer = nil
	}
}

func (v *Verifier) clearLocked() {
	v.active = false
	v.lead = nil
	v.jobID = ""
	v.message = ""
	v.lines = []string{}
	select {
	case <-v.settled:
	default:
		close(v.settled)
	}
}

func (v *Verifier) viewLocked() VerifyView {
	return VerifyView{
		LeadID:  v.lead,
		JobID:   v.jobID,
		Active:  v.active,
		Message: v.message,
		Lines:   v.lines,
	}
}

func notifyView(fn func(VerifyView), view VerifyView) {
	if fn != nil {
		fn(view)
	}
}

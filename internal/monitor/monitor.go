// -----------------------------------------------------------------------
// Job Monitor - one poll session at a time over a job's status and log
// -----------------------------------------------------------------------

package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/metrics"
	"github.com/ternarybob/leadwatch/internal/models"
)

// State is the poll session lifecycle state
type State string

const (
	StateIdle            State = "idle"
	StateFetchingInitial State = "fetching-initial"
	StatePolling         State = "polling"
	StateTerminal        State = "terminal"
	StateAborted         State = "aborted"
)

// Active reports whether the session may still issue fetches
func (s State) Active() bool {
	return s == StateFetchingInitial || s == StatePolling
}

// StopReason records why a session left the active states
type StopReason string

const (
	StopNone       StopReason = ""
	StopClosed     StopReason = "closed"
	StopTimeout    StopReason = "timeout"
	StopFetchError StopReason = "fetch_error"
	StopTerminal   StopReason = "terminal"
)

// Snapshot is the observable state of the current poll session.
// Slices are replaced wholesale on every fetch and must be treated as read-only.
type Snapshot struct {
	SessionID  string            `json:"session_id,omitempty"`
	Generation uint64            `json:"generation"`
	Version    uint64            `json:"version"` // Increases with every change; consumers drop lower versions
	JobID      string            `json:"job_id,omitempty"`
	State      State             `json:"state"`
	StopReason StopReason        `json:"stop_reason,omitempty"`
	Loading    bool              `json:"loading"`
	Status     models.JobStatus  `json:"status,omitempty"`
	Progress   int               `json:"progress"`
	Lines      []string          `json:"log_lines"`
	Entries    []models.LogEntry `json:"log_entries"`
	JobError   string            `json:"job_error,omitempty"` // The job's own failure text
	Error      string            `json:"error,omitempty"`     // Display message of a failed fetch
	Fetches    int               `json:"fetches"`             // Fetches issued by this session
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Err reports why the session stopped before a terminal status:
// ErrJobTimeout when the budget ran out, the display message after a failed fetch.
func (s Snapshot) Err() error {
	switch s.StopReason {
	case StopTimeout:
		return models.ErrJobTimeout
	case StopFetchError:
		return errors.New(s.Error)
	}
	return nil
}

// Options configures a Monitor
type Options struct {
	Name     string        // Used in logs, e.g. "log" or "verify"
	Interval time.Duration // Spacing of silent fetches after the initial one
	Budget   time.Duration // Total polling budget; 0 polls until terminal or Stop
	Metrics  metrics.PollMetrics
}

// pollSession is owned by exactly one Watch call. Its ticker and budget timer
// are never referenced once end has run.
type pollSession struct {
	gen     uint64
	id      string
	jobID   string
	ctx     context.Context
	cancel  context.CancelFunc
	budget  *time.Timer
	done    chan struct{}
	ended   bool
	seq     uint64 // Last fetch sequence issued
	applied uint64 // Sequence of the last applied result
	logger  arbor.ILogger
}

// end releases the session's timers and context. Idempotent; caller holds the monitor lock.
func (s *pollSession) end() {
	if s.ended {
		return
	}
	s.ended = true
	s.cancel()
	if s.budget != nil {
		s.budget.Stop()
	}
	close(s.done)
}

// Monitor polls one job at a time through the jobs API.
// Starting a new session always tears down the previous one first.
type Monitor struct {
	api    interfaces.JobsAPI
	opts   Options
	logger arbor.ILogger

	mu       sync.Mutex
	gen      uint64
	version  uint64
	cur      *pollSession
	snap     Snapshot
	onUpdate func(Snapshot)
}

// New creates an idle monitor
func New(api interfaces.JobsAPI, opts Options, logger arbor.ILogger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 2500 * time.Millisecond
	}
	if opts.Name == "" {
		opts.Name = "job"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Monitor{
		api:    api,
		opts:   opts,
		logger: logger,
		snap:   Snapshot{State: StateIdle, Lines: []string{}, Entries: []models.LogEntry{}},
	}
}

// OnUpdate registers the callback invoked with every new snapshot.
// It runs outside the monitor lock and may be called from several goroutines.
func (m *Monitor) OnUpdate(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Snapshot returns the current observable state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Done is closed when the current session ends for any reason.
// With no session it returns a closed channel.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.cur.done
}

// Watch starts a poll session for jobID and returns its session id.
// The previous session, if any, is torn down before anything else happens.
func (m *Monitor) Watch(parent context.Context, jobID string) string {
	m.mu.Lock()
	if m.cur != nil {
		if !m.cur.ended {
			m.opts.Metrics.IncSessionEnd(m.opts.Name, "replaced")
		}
		m.cur.end()
	}

	m.gen++
	ctx, cancel := context.WithCancel(parent)
	s := &pollSession{
		gen:    m.gen,
		id:     common.NewSessionID(),
		jobID:  jobID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.logger = m.logger.WithCorrelationId(s.id)
	m.cur = s

	if m.opts.Budget > 0 {
		s.budget = time.AfterFunc(m.opts.Budget, func() { m.expire(s) })
	}

	m.snap = Snapshot{
		SessionID:  s.id,
		Generation: s.gen,
		JobID:      jobID,
		State:      StateFetchingInitial,
		Loading:    true,
		Lines:      []string{},
		Entries:    []models.LogEntry{},
	}
	snap, fn := m.touchLocked()
	m.mu.Unlock()

	s.logger.Debug().Str("job_id", jobID).Str("monitor", m.opts.Name).Msg("Poll session started")
	notify(fn, snap)

	common.SafeGo(m.logger, "poll:"+m.opts.Name, func() { m.run(s) })
	return s.id
}

// Stop tears down the current session and clears transient state. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cur == nil && m.snap.JobID == "" {
		m.mu.Unlock()
		return
	}
	if m.cur != nil {
		if !m.cur.ended {
			m.opts.Metrics.IncSessionEnd(m.opts.Name, string(StopClosed))
		}
		m.cur.end()
		m.cur.logger.Debug().Str("job_id", m.cur.jobID).Msg("Poll session closed")
		m.cur = nil
	}
	m.gen++
	m.snap = Snapshot{
		Generation: m.gen,
		State:      StateIdle,
		StopReason: StopClosed,
		Lines:      []string{},
		Entries:    []models.LogEntry{},
	}
	snap, fn := m.touchLocked()
	m.mu.Unlock()

	notify(fn, snap)
}

// Refetch performs an immediate loading fetch for the active session,
// used after a successful cancel. It is a no-op once the session has stopped.
func (m *Monitor) Refetch(ctx context.Context) error {
	m.mu.Lock()
	s := m.cur
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	fctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	_, err := m.fetch(fctx, s, true)
	return err
}

func (m *Monitor) run(s *pollSession) {
	defer m.release(s)

	if more, _ := m.fetch(s.ctx, s, true); !more {
		return
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if more, _ := m.fetch(s.ctx, s, false); !more {
				return
			}
		}
	}
}

// fetch issues one GetJob for s and applies the result if s is still current
// and no newer result has landed. It reports whether polling should continue.
func (m *Monitor) fetch(ctx context.Context, s *pollSession, loading bool) (bool, error) {
	m.mu.Lock()
	if !m.currentLocked(s) {
		m.mu.Unlock()
		return false, nil
	}
	s.seq++
	seq := s.seq
	m.snap.Fetches++
	var snap Snapshot
	var fn func(Snapshot)
	if loading && !m.snap.Loading {
		m.snap.Loading = true
		snap, fn = m.touchLocked()
	}
	m.mu.Unlock()
	notify(fn, snap)

	detail, err := m.api.GetJob(ctx, s.jobID)

	m.mu.Lock()
	if !m.currentLocked(s) {
		m.mu.Unlock()
		s.logger.Debug().Str("job_id", s.jobID).Msg("Discarding result of ended poll session")
		return false, nil
	}
	if seq < s.applied {
		m.mu.Unlock()
		s.logger.Debug().Str("job_id", s.jobID).Msg("Discarding out-of-order fetch result")
		return true, nil
	}
	if err != nil && ctx.Err() != nil {
		m.mu.Unlock()
		return s.ctx.Err() == nil, err
	}
	s.applied = seq

	if err != nil {
		m.snap.State = StateAborted
		m.snap.StopReason = StopFetchError
		m.snap.Loading = false
		m.snap.Status = ""
		m.snap.Lines = []string{}
		m.snap.Entries = []models.LogEntry{}
		m.snap.Error = models.DisplayMessage(err, "Failed to load job")
		s.end()
		m.opts.Metrics.IncFetch(m.opts.Name, "error")
		m.opts.Metrics.IncSessionEnd(m.opts.Name, string(StopFetchError))
		snap, fn = m.touchLocked()
		m.mu.Unlock()

		s.logger.Warn().Err(err).Str("job_id", s.jobID).Msg("Poll session aborted on fetch error")
		notify(fn, snap)
		return false, err
	}

	m.opts.Metrics.IncFetch(m.opts.Name, "ok")
	m.snap.Loading = false
	m.snap.Error = ""
	m.snap.Status = detail.Status
	m.snap.Progress = detail.Progress
	m.snap.Lines = detail.Lines
	m.snap.Entries = detail.Entries
	m.snap.JobError = detail.Error

	more := true
	if detail.Status.IsTerminal() {
		m.snap.State = StateTerminal
		m.snap.StopReason = StopTerminal
		s.end()
		m.opts.Metrics.IncSessionEnd(m.opts.Name, string(StopTerminal))
		more = false
		s.logger.Debug().Str("job_id", s.jobID).Str("status", string(detail.Status)).Int("fetches", m.snap.Fetches).Msg("Poll session reached terminal status")
	} else {
		m.snap.State = StatePolling
	}
	snap, fn = m.touchLocked()
	m.mu.Unlock()

	notify(fn, snap)
	return more, nil
}

// expire ends s when its polling budget runs out, clearing transient state silently
func (m *Monitor) expire(s *pollSession) {
	m.mu.Lock()
	if !m.currentLocked(s) {
		m.mu.Unlock()
		return
	}
	s.end()
	m.opts.Metrics.IncSessionEnd(m.opts.Name, string(StopTimeout))
	m.snap.State = StateAborted
	m.snap.StopReason = StopTimeout
	m.snap.Loading = false
	m.snap.Status = ""
	m.snap.Lines = []string{}
	m.snap.Entries = []models.LogEntry{}
	m.snap.Error = ""
	m.snap.JobError = ""
	snap, fn := m.touchLocked()
	m.mu.Unlock()

	s.logger.Info().Str("job_id", s.jobID).Str("budget", m.opts.Budget.String()).Msg("Poll session budget exhausted")
	notify(fn, snap)
}

// release ends s when its parent context went away without a Stop
func (m *Monitor) release(s *pollSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentLocked(s) {
		s.end()
		m.opts.Metrics.IncSessionEnd(m.opts.Name, "released")
	}
}

func (m *Monitor) currentLocked(s *pollSession) bool {
	return m.cur == s && !s.ended
}

func (m *Monitor) touchLocked() (Snapshot, func(Snapshot)) {
	m.version++
	m.snap.Version = m.version
	m.snap.UpdatedAt = time.Now()
	return m.snap, m.onUpdate
}

func notify(fn func(Snapshot), snap Snapshot) {
	if fn != nil {
		fn(snap)
	}
}

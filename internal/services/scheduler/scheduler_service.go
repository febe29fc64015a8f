package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
)

// lastRunKeyPrefix prefixes the KV key recording a job's last completion
const lastRunKeyPrefix = "scheduler.last_run."

// entry is one registered job. Cron firings and TriggerNow share run, so the
// SkipIfStillRunning wrapper keeps them from overlapping.
type entry struct {
	name     string
	schedule string
	task     interfaces.ScheduledTask
	run      cron.Job
	cronID   cron.EntryID

	// guarded by Service.mu
	lastRun   *time.Time
	running   bool
	lastError string
}

// Service runs the periodic job list reload on robfig/cron with a seconds field
type Service struct {
	cron       *cron.Cron
	cronLog    cron.Logger
	kv         interfaces.KeyValueStorage // Optional; persists last run times
	logger     arbor.ILogger
	runTimeout time.Duration

	ctx      context.Context // Cancelled by Stop; every run derives from it
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*entry
	started bool
}

// Option configures a Service
type Option func(*Service)

// WithRunTimeout bounds a single run; zero means runs end only with Stop
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) { s.runTimeout = d }
}

// NewService creates a scheduler. kv may be nil.
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	cronLog := cronLogger{logger: logger}
	s := &Service{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cronLog)),
		cronLog: cronLog,
		kv:      kv,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins firing registered jobs
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already running")
	}
	if s.ctx.Err() != nil {
		return errors.New("scheduler was stopped")
	}
	s.cron.Start()
	s.started = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop cancels runs in progress and waits for them to return
func (s *Service) Stop() error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.cancel()
	s.mu.Unlock()

	if started {
		<-s.cron.Stop().Done()
	}
	s.inflight.Wait()

	if started {
		s.logger.Info().Msg("Scheduler stopped")
	}
	return nil
}

// RegisterJob adds task under name. schedule has six fields, seconds first.
func (s *Service) RegisterJob(name, schedule string, task interfaces.ScheduledTask) error {
	if err := common.ValidateJobSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if task == nil {
		return fmt.Errorf("job %s has no task", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	e := &entry{
		name:     name,
		schedule: schedule,
		task:     task,
		lastRun:  s.loadLastRun(name),
	}
	e.run = cron.NewChain(cron.Recover(s.cronLog), cron.SkipIfStillRunning(s.cronLog)).
		Then(cron.FuncJob(func() { s.execute(e) }))

	id, err := s.cron.AddJob(schedule, e.run)
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	e.cronID = id
	s.jobs[name] = e

	s.logger.Debug().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// TriggerNow runs a registered job in the background unless it is already running
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	e, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	common.SafeGo(s.logger, "scheduler:"+name, e.run.Run)
	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.ScheduledJobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	status := &interfaces.ScheduledJobStatus{
		Name:      e.name,
		Schedule:  e.schedule,
		LastRun:   e.lastRun,
		IsRunning: e.running,
		LastError: e.lastError,
	}
	if s.started {
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status, nil
}

// execute runs the task once. A panic is recorded as the job's error and
// handed on to cron.Recover, which logs it with the stack.
func (s *Service) execute(e *entry) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	e.running = true
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx, cancel := s.runContext()
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.finish(e, time.Now(), fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	start := time.Now()
	err := e.task(ctx)

	completed := time.Now()
	if err != nil {
		s.finish(e, completed, err.Error())
		s.logger.Warn().
			Str("job_name", e.name).
			Err(err).
			Str("duration", completed.Sub(start).String()).
			Msg("Scheduled run failed")
		return
	}
	s.finish(e, completed, "")
	s.logger.Debug().
		Str("job_name", e.name).
		Str("duration", completed.Sub(start).String()).
		Msg("Scheduled run completed")
}

func (s *Service) runContext() (context.Context, context.CancelFunc) {
	if s.runTimeout > 0 {
		return context.WithTimeout(s.ctx, s.runTimeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Service) finish(e *entry, at time.Time, lastError string) {
	s.mu.Lock()
	e.running = false
	e.lastRun = &at
	e.lastError = lastError
	s.mu.Unlock()

	if s.kv == nil {
		return
	}
	err := s.kv.Set(context.Background(), lastRunKeyPrefix+e.name, at.UTC().Format(time.RFC3339Nano), "last completed run of "+e.name)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_name", e.name).Msg("Failed to persist job last run")
	}
}

func (s *Service) loadLastRun(name string) *time.Time {
	if s.kv == nil {
		return nil
	}
	value, err := s.kv.Get(context.Background(), lastRunKeyPrefix+name)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("job_name", name).Msg("Failed to load job last run")
		}
		return nil
	}
	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &at
}

// cronLogger routes robfig/cron's key/value logging to arbor. Its Info
// messages (schedule, wake, skip) are debug noise for a CLI.
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", formatPairs(keysAndValues)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", formatPairs(keysAndValues)).Msg("cron: " + msg)
}

func formatPairs(keysAndValues []interface{}) string {
	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, keysAndValues[i])
		b.WriteByte('=')
		if i+1 < len(keysAndValues) {
			fmt.Fprint(&b, keysAndValues[i+1])
		}
	}
	return b.String()
}

var _ interfaces.SchedulerService = (*Service)(nil)

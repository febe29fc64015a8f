package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/handlers"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/metrics"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/ternarybob/leadwatch/internal/services/auth"
	"github.com/ternarybob/leadwatch/internal/services/events"
	"github.com/ternarybob/leadwatch/internal/services/jobs"
	"github.com/ternarybob/leadwatch/internal/services/scheduler"
	"github.com/ternarybob/leadwatch/internal/services/session"
	"github.com/ternarybob/leadwatch/internal/services/status"
	"github.com/ternarybob/leadwatch/internal/storage/badger"
)

// ReloadJobName is the scheduler entry refreshing the active job list
const ReloadJobName = "jobs_reload"

// App holds all application components and dependencies
type App struct {
	Config     *common.Config
	Logger     arbor.ILogger
	InstanceID string
	ctx        context.Context
	cancelCtx  context.CancelFunc
	Metrics    *metrics.Prom

	// Storage
	DB        *badger.BadgerDB
	KVStorage interfaces.KeyValueStorage

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service
	StatusService    *status.Service

	// Session and backend access
	Session *session.State
	Gateway *auth.Gateway
	Jobs    *jobs.Client
	JobList *monitor.JobList

	// HTTP handlers
	WSHandler     *handlers.WebSocketHandler
	StatusHandler *handlers.StatusHandler
	JobsHandler   *handlers.JobsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:     cfg,
		Logger:     logger,
		InstanceID: common.NewInstanceID(),
		ctx:        ctx,
		cancelCtx:  cancel,
		Metrics:    metrics.NewProm("leadwatch"),
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Debug().
		Str("instance_id", app.InstanceID).
		Str("api", cfg.APIURL("")).
		Bool("share_refresh", cfg.Auth.ShareRefresh).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the client-local Badger store
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.KVStorage = badger.NewKVStorage(db, a.Logger)
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires session, gateway, jobs and event-driven services in dependency order
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return err
	}

	a.Session = session.NewState(a.KVStorage, a.EventService, a.Config.Auth.LoginPath, a.Config.API.WorkspaceID, a.Logger)
	a.Gateway = auth.NewGateway(a.Config, a.Session, auth.WithLogger(a.Logger), auth.WithMetrics(a.Metrics))
	a.Jobs = jobs.NewClient(a.Gateway, a.Gateway.URL, a.Logger)

	a.JobList = monitor.NewJobList(a.Jobs, a.Logger)
	a.JobList.OnLoad(func(list []models.Job, loadedAt time.Time) {
		a.publish(interfaces.Event{
			Type:    interfaces.EventJobsReloaded,
			Payload: interfaces.JobsReloadedPayload{Jobs: list, LoadedAt: loadedAt},
		})
	})

	a.StatusService = status.NewService(a.ctx, a.EventService, a.Session, a.InstanceID, a.Logger)
	if err := a.StatusService.SubscribeToSessionEvents(); err != nil {
		return err
	}

	// A reload is one list request; give it the request timeout plus slack for a credential refresh
	runTimeout := 2 * common.ParseDuration(a.Config.API.Timeout, 15*time.Second)
	a.SchedulerService = scheduler.NewService(a.KVStorage, a.Logger, scheduler.WithRunTimeout(runTimeout))
	if a.Config.Jobs.ReloadSchedule != "" {
		if err := a.SchedulerService.RegisterJob(ReloadJobName, a.Config.Jobs.ReloadSchedule, a.JobList.Load); err != nil {
			return err
		}
	}

	return nil
}

// initHandlers creates the bridge handlers
func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.StatusService, a.Logger, &a.Config.WebSocket)
	if err := a.WSHandler.SubscribeToEvents(); err != nil {
		return err
	}
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.WSHandler, a.Logger)
	a.JobsHandler = handlers.NewJobsHandler(a.JobList, a.Logger)
	return nil
}

// Context is cancelled when the app closes; poll sessions live under it
func (a *App) Context() context.Context {
	return a.ctx
}

// StartScheduler starts the cron reload of the active job list and runs it once right away
func (a *App) StartScheduler() error {
	if err := a.SchedulerService.Start(); err != nil {
		return err
	}
	if a.Config.Jobs.ReloadSchedule == "" {
		a.Logger.Info().Msg("Job list reload disabled")
		return nil
	}
	return a.SchedulerService.TriggerNow(ReloadJobName)
}

// NewLogMonitor creates a log-only monitor whose snapshots are published on the event bus
func (a *App) NewLogMonitor() *monitor.Monitor {
	m := monitor.New(a.Jobs, monitor.Options{
		Name:     "log",
		Interval: common.ParseDuration(a.Config.Monitor.LogPollInterval, 2500*time.Millisecond),
		Metrics:  a.Metrics,
	}, a.Logger)
	m.OnUpdate(a.publishSnapshot)
	return m
}

// NewLogModal creates a log viewer over its own monitor
func (a *App) NewLogModal() *monitor.LogModal {
	return monitor.NewLogModal(a.ctx, a.Jobs, a.NewLogMonitor(), a.Logger)
}

// NewVerifier creates a verification flow with its own bounded monitor.
// A successful verification reloads the job list.
func (a *App) NewVerifier() *monitor.Verifier {
	m := monitor.New(a.Jobs, monitor.Options{
		Name:     "verify",
		Interval: common.ParseDuration(a.Config.Monitor.VerifyPollInterval, 2*time.Second),
		Budget:   common.ParseDuration(a.Config.Monitor.VerifyTimeout, 30*time.Second),
		Metrics:  a.Metrics,
	}, a.Logger)

	v := monitor.NewVerifier(a.ctx, a.Jobs, m, monitor.VerifierOptions{
		SuccessMessage:     common.ParseDuration(a.Config.Monitor.SuccessMessage, 4*time.Second),
		ErrorMessage:       common.ParseDuration(a.Config.Monitor.ErrorMessage, 6*time.Second),
		VerifyErrorMessage: common.ParseDuration(a.Config.Monitor.VerifyErrorMessage, 5*time.Second),
		ShortMessage:       common.ParseDuration(a.Config.Monitor.ShortMessage, 3*time.Second),
	}, a.Logger)
	v.OnComplete(func(leadID int64) {
		common.SafeGo(a.Logger, "verify:reload", func() {
			_ = a.JobList.Load(a.ctx)
		})
	})
	return v
}

func (a *App) publishSnapshot(snap monitor.Snapshot) {
	a.publish(interfaces.Event{Type: interfaces.EventJobSnapshot, Payload: snap})
}

func (a *App) publish(event interfaces.Event) {
	if err := a.EventService.Publish(a.ctx, event); err != nil {
		a.Logger.Debug().Err(err).Str("event_type", string(event.Type)).Msg("Event not published")
	}
}

// Close releases all resources. Safe to call on a partially initialized app.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.StatusService != nil {
		a.StatusService.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
			return err
		}
		a.Logger.Debug().Msg("Database closed")
	}

	return nil
}

// -----------------------------------------------------------------------
// Application wiring - builds every component, runs the background
// loops and tears everything down in reverse order
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/molotovsingh/personal-backup-tool/internal/common"
	"github.com/molotovsingh/personal-backup-tool/internal/fanout"
	"github.com/molotovsingh/personal-backup-tool/internal/logindex"
	"github.com/molotovsingh/personal-backup-tool/internal/models"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
	"github.com/molotovsingh/personal-backup-tool/internal/settings"
	"github.com/molotovsingh/personal-backup-tool/internal/storage"
	"github.com/molotovsingh/personal-backup-tool/internal/supervisor"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Paths  *common.Paths

	// Storage
	EventsDB *storage.BadgerDB
	JobStore *storage.JobStore
	ErrorLog *storage.ErrorLog
	LogStore *storage.LogStore

	// Services
	Settings   *settings.Service
	Hub        *fanout.Hub
	Supervisor *supervisor.Supervisor
	Monitor    *supervisor.Monitor
	Indexer    *logindex.Indexer
	Degrader   *recovery.Degrader

	ctx       context.Context
	cancelCtx context.CancelFunc
	group     *errgroup.Group
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	paths, err := common.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Paths:  paths,
	}

	if err := app.initStorage(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeStorage()
		return nil, err
	}
	return app, nil
}

func (a *App) initStorage() error {
	dbPath, err := a.Paths.EventsDB()
	if err != nil {
		return fmt.Errorf("failed to prepare events database path: %w", err)
	}
	db, err := storage.NewBadgerDB(dbPath, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open events database: %w", err)
	}
	a.EventsDB = db
	a.ErrorLog = storage.NewErrorLog(db, a.Logger)
	a.LogStore = storage.NewLogStore(db, a.Logger)

	jobStore, err := storage.NewJobStore(a.Paths.JobsFile(), a.Config.Store.WriteRetries, a.Logger, a.ErrorLog)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open job store: %w", err)
	}
	a.JobStore = jobStore
	return nil
}

func (a *App) initServices() error {
	settingsService, err := settings.NewService(a.Paths.SettingsFile(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	a.Settings = settingsService

	a.Degrader = recovery.NewDegrader(a.Logger, a.ErrorLog)
	a.Hub = fanout.NewHub(a.Logger, a.Config.WebSocket.NotificationThrottle)

	a.Supervisor = supervisor.New(a.JobStore, a.Paths, supervisor.Config{
		Engine:  a.Config.Engine,
		Store:   a.Config.Store,
		Monitor: a.Config.Monitor,
	}, a.Logger, a.ErrorLog, a.ErrorLog)
	a.Supervisor.SetSettingsSource(a.Settings.Get)

	a.Monitor = supervisor.NewMonitor(a.Supervisor, a.Hub, a.Config.Monitor, a.Logger, a.ErrorLog)

	logsDir, err := a.Paths.LogsDir()
	if err != nil {
		return fmt.Errorf("failed to prepare logs directory: %w", err)
	}
	a.Indexer = logindex.New(a.LogStore, logsDir, 30*time.Second, a.Logger)
	a.Indexer.SetDegrader(a.Degrader)
	return nil
}

// Start launches the background loops. It returns immediately; the
// loops run until Shutdown cancels them.
func (a *App) Start(parent context.Context) {
	a.ctx, a.cancelCtx = context.WithCancel(parent)
	a.group, a.ctx = errgroup.WithContext(a.ctx)

	a.group.Go(func() error {
		err := a.Monitor.Run(a.ctx)
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	a.group.Go(func() error {
		// A broken indexer degrades log querying, never the service
		if err := a.Indexer.Run(a.ctx); err != nil && err != context.Canceled {
			a.Hub.Notify(models.NotifyWarning, "log indexing degraded", err.Error())
			a.Logger.Warn().Err(err).Msg("Log indexer exited")
		}
		return nil
	})

	if a.Settings.Get().AutoStartOnLaunch {
		a.autoStartPending()
	}

	a.Logger.Info().Str("data_dir", a.Paths.DataDir()).Msg("Background services started")
}

// autoStartPending launches every pending job at startup when the
// auto_start_on_launch setting is enabled.
func (a *App) autoStartPending() {
	for _, job := range a.Supervisor.ListJobs() {
		if job.Status != models.JobStatusPending {
			continue
		}
		result := a.Supervisor.StartJob(job.ID)
		if !result.OK {
			a.Logger.Warn().Str("job_id", job.ID).Str("reason", result.Message).Msg("Auto-start skipped job")
			continue
		}
		a.Logger.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("Auto-started pending job")
	}
}

// Shutdown stops the background loops and closes storage. The job
// store drains its pending writes before the process exits.
func (a *App) Shutdown() {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil {
			a.Logger.Warn().Err(err).Msg("Background service exited with error")
		}
	}
	a.closeStorage()
	a.Logger.Info().Msg("Application stopped")
}

func (a *App) closeStorage() {
	if a.JobStore != nil {
		if err := a.JobStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close job store")
		}
	}
	if a.EventsDB != nil {
		if err := a.EventsDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close events database")
		}
	}
}

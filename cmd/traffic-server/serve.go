package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/railtwin/traincontrol/internal/api"
	"github.com/railtwin/traincontrol/internal/config"
	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/infra/storage"
	"github.com/railtwin/traincontrol/internal/network"
	"github.com/railtwin/traincontrol/internal/platform/logger"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.NewLogger())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	appLogger.Info("Initializing train traffic control digital twin...")

	tables, err := loadNetwork(cfg)
	if err != nil {
		return err
	}
	tuning := cfg.Tuning()
	sessionID := uuid.NewString()

	var (
		persister   events.EventPersister
		kpiRepo     storage.KPIRepository
		recon       *storage.Reconstructor
		initialFeed *feed.Feed
	)
	if cfg.DatabasePath != "" {
		appLogger.Info("Initializing SQLite database '" + cfg.DatabasePath + "'...")
		db, err := storage.InitSQLite(cfg.DatabasePath, storage.Pool{
			MaxOpenConns: tuning.DBMaxOpenConns,
			MaxIdleConns: tuning.DBMaxIdleConns,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		defer db.Close()

		eventRepo := storage.NewSQLiteEventRepository(db)
		persister = storage.NewEventPersister(eventRepo, sessionID)
		kpiRepo = storage.NewSQLiteKPIRepository(db)
		recon = storage.NewReconstructor(eventRepo)

		restored, err := recon.RestoreFeed(ctx)
		if err != nil {
			appLogger.Warn("Could not restore operations log: " + err.Error())
		} else {
			initialFeed = &restored
			appLogger.Info(fmt.Sprintf("Restored %d log entries from previous sessions.", len(restored.Logs)))
		}
	} else {
		appLogger.Warn("No database configured, running in memory only.")
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewBoundedEventLog(persister, tuning.EventLogCapacity)
	// Runs after the engine stops and before the database closes.
	defer eventLog.Close()

	appLogger.Info("Bootstrapping Engine...")
	eng := engine.NewEngine(tables, eventLog, appLogger, engine.Options{
		TickRate:      cfg.TickRate,
		KPIInterval:   cfg.KPIInterval,
		DefaultRegion: cfg.DefaultRegion,
		InitialFeed:   initialFeed,
	})

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(eng, tuning, appLogger)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog, network.DefaultPollInterval)
	eng.Subscribe(hub.BroadcastSnapshot)

	eng.Start(ctx)
	defer eng.Stop()

	if kpiRepo != nil && cfg.SnapshotSchedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.SnapshotSchedule, snapshotJob(eng, kpiRepo, sessionID, appLogger)); err != nil {
			return fmt.Errorf("failed to schedule KPI snapshots: %w", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		appLogger.Info("KPI snapshots scheduled " + cfg.SnapshotSchedule)
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: (&api.Server{
			Twin:      eng,
			EventLog:  eventLog,
			Hub:       hub,
			KPIs:      kpiRepo,
			Recap:     recon,
			SessionID: sessionID,
			Logger:    appLogger,
		}).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP API & WS Server listening on " + cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// snapshotJob samples the KPI panel of the active region.
func snapshotJob(twin interface{ Snapshot() engine.Snapshot }, repo storage.KPIRepository, sessionID string, log *logger.Logger) func() {
	return func() {
		snap := twin.Snapshot()
		err := repo.Append(context.Background(), storage.KPISnapshot{
			SessionID:         sessionID,
			Region:            snap.ActiveRegion,
			TakenAt:           time.Now(),
			Tick:              snap.Tick,
			SectionThroughput: snap.KPIs.SectionThroughput.Value,
			Punctuality:       snap.KPIs.Punctuality.Value,
			AvgDelay:          snap.KPIs.AvgDelay.Value,
			TrackUtilization:  snap.KPIs.TrackUtilization.Value,
		})
		if err != nil {
			log.Error("Failed to store KPI snapshot: " + err.Error())
		}
	}
}

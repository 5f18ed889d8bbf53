package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/client/cli"
	"github.com/dmitrijs2005/neighborwatch/internal/client/config"
	"github.com/dmitrijs2005/neighborwatch/internal/client/localdb"
	"github.com/dmitrijs2005/neighborwatch/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/neighborwatch/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/neighborwatch/internal/client/services"
	"github.com/dmitrijs2005/neighborwatch/internal/client/session"
	"github.com/dmitrijs2005/neighborwatch/internal/client/storage"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const refreshTick = time.Minute

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// Logs go to stderr so they do not interleave with the prompt.
	logger, err := logging.New(cfg.LogBackend, cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	db, err := localdb.Open(ctx, cfg.SessionDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := localdb.RunMigrations(ctx, db); err != nil {
		return err
	}

	client, err := backend.New(backend.Options{
		URL:       cfg.BackendURL,
		Key:       cfg.BackendKey,
		Heartbeat: cfg.RealtimeHeartbeat,
	}, sessions.NewSQLiteRepository(db), logger)
	if err != nil {
		return err
	}
	client.Auth.StartAutoRefresh(ctx, refreshTick)

	manager := session.NewManager(client.Auth, profiles.NewRemoteRepository(client), session.Options{
		AuthTimeout:          cfg.AuthTimeout,
		ProfileFetchAttempts: cfg.ProfileFetchAttempts,
		ProfileRetryDelay:    cfg.ProfileRetryDelay,
	}, logger)

	var uploader services.Uploader
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		uploader = store
	}

	app := cli.NewApp(cli.Deps{
		Session: manager,
		Mount: func(ctx context.Context) (<-chan struct{}, func()) {
			m := manager.Mount(ctx)
			return m.Ready(), m.Close
		},
		Alerts:    services.NewAlertService(client, client.Realtime, logger),
		Patrol:    services.NewPatrolService(client, logger),
		Community: services.NewCommunityService(client, logger),
		House:     services.NewHouseService(client, logger),
		Stats:     services.NewPatrolStatsService(client, logger),
		Dashboard: services.NewDashboardService(client, logger),
		Reports:   services.NewReportService(client, uploader, cfg.Storage.PresignTTL, logger),
		Logger:    logger,
	})

	app.Run(ctx)
	return nil
}

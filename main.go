package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/config"
	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/events"
	"github.com/bryan-buckman/newsriver/internal/fetch"
	"github.com/bryan-buckman/newsriver/internal/icon"
	"github.com/bryan-buckman/newsriver/internal/ingest"
	"github.com/bryan-buckman/newsriver/internal/retention"
	"github.com/bryan-buckman/newsriver/internal/scheduler"
	"github.com/bryan-buckman/newsriver/internal/server"
	"github.com/bryan-buckman/newsriver/internal/syncsvc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load configuration")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger.SetLevel(level)
	}
	log := logrus.NewEntry(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("create data dir")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	bus := events.NewBus(log.WithField("component", "events"))
	defer bus.Close()

	client := fetch.New(fetch.Config{
		Retries:   cfg.Fetch.MaxRetries,
		BaseDelay: cfg.Fetch.BackoffBase,
		MaxDelay:  cfg.Fetch.BackoffMax,
		UserAgent: cfg.Fetch.UserAgent,
		Accept:    cfg.Fetch.AcceptHeader,
	}, log.WithField("component", "fetch"))

	pipeline := ingest.NewPipeline(db, client, bus, log.WithField("component", "ingest"))

	icons, err := icon.NewCache(filepath.Join(cfg.DataDir, "icons"), client,
		log.WithField("component", "icons"))
	if err != nil {
		log.WithError(err).Fatal("icon cache")
	}

	ret := retention.NewEngine(db, log.WithField("component", "retention"))
	syncer := syncsvc.NewService(db, log.WithField("component", "sync"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	iconWorker := icon.NewWorker(db, icons, bus, log.WithField("component", "icon-worker"))
	go func() {
		if err := iconWorker.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("icon worker stopped")
		}
	}()

	sched := scheduler.New(db, pipeline, ret, scheduler.Config{
		TickInterval:        cfg.Scheduler.TickInterval,
		BatchSize:           cfg.Scheduler.BatchSize,
		InterFeedDelay:      cfg.Scheduler.InterFeedDelay,
		WarmStartDelay:      cfg.Scheduler.WarmStartDelay,
		MaintenanceInterval: cfg.Scheduler.MaintenanceInterval,
	}, log.WithField("component", "scheduler"))
	sched.Start(ctx)

	srv := server.New(db, client, pipeline, syncer, ret, icons,
		log.WithField("component", "server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	sched.Stop()
}

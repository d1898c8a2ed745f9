package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/auth"
	"github.com/llehouerou/vibra/internal/bus"
	"github.com/llehouerou/vibra/internal/config"
	"github.com/llehouerou/vibra/internal/connectivity"
	"github.com/llehouerou/vibra/internal/creds"
	"github.com/llehouerou/vibra/internal/engine"
	"github.com/llehouerou/vibra/internal/lastfm"
	"github.com/llehouerou/vibra/internal/listening"
	"github.com/llehouerou/vibra/internal/mpris"
	"github.com/llehouerou/vibra/internal/notify"
	"github.com/llehouerou/vibra/internal/playback"
	"github.com/llehouerou/vibra/internal/sched"
	"github.com/llehouerou/vibra/internal/state"
)

// teardownTimeout bounds the final snapshot save on shutdown.
const teardownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stateMgr, err := state.Open()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateMgr.Close()

	gateway, err := creds.Open(stateMgr.DB())
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}

	events := bus.New()
	defer events.Close()

	session := playback.NewSession(engine.NewClock(), stateMgr, events, logger)
	defer session.Close()

	if err := session.Restore(); err != nil {
		logger.Warn("queue restore failed", "err", err)
	}

	cycle := auth.NewCycle(
		auth.NewClient(cfg.Auth.BaseURL),
		gateway,
		session,
		stateMgr,
		cfg.ExpiryThreshold(),
		logger,
	)

	var scrobbler listening.Scrobbler
	if cfg.HasLastfmConfig() && cfg.Lastfm.SessionKey != "" {
		lfm := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
		lfm.SetSessionKey(cfg.Lastfm.SessionKey)
		scrobbler = lastfm.NewSubmitter(lfm, stateMgr, logger)
	}

	tracker := listening.New(stateMgr, scrobbler, logger)
	tracker.Start(events)
	defer tracker.Stop()

	notifier, err := notify.New()
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	bridge := notify.NewBridge(notifier, session, logger)
	bridge.Start(events)
	defer bridge.Stop()

	mprisAdapter, err := mpris.New(session)
	if err != nil {
		logger.Warn("mpris unavailable", "err", err)
	} else {
		defer mprisAdapter.Close()
	}

	gate := connectivity.New(cfg.Connectivity.ProbeAddr, cfg.CacheWindow())
	scheduler := sched.New(cycle, gate, sched.Options{
		PeriodicInterval: cfg.PeriodicInterval(),
		AlarmOffset:      cfg.AlarmOffset(),
		ExactAlarms:      cfg.ExactAlarmsAllowed(),
		MinPassInterval:  cfg.MinPassInterval(),
	}, logger)
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("vibra started", "logged_in", cycle.IsLoggedIn())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")

	tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := session.Teardown(tctx); err != nil {
		logger.Warn("teardown incomplete", "err", err)
	}
	return nil
}

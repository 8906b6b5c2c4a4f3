// worker runs the session sweeper on a cron schedule: idle sessions are revoked and ended
// sessions past retention are purged. Use -once to run a single pass.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"sso-hub/internal/app"
	"sso-hub/internal/config"
	"sso-hub/internal/platform/logging"
	sessionservice "sso-hub/internal/session/service"
)

const passTimeout = 2 * time.Minute

func main() {
	once := flag.Bool("once", false, "run one sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "").Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer hub.Close(context.Background())

	if *once {
		sweep(ctx, hub.Sweeper, log)
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() { sweep(ctx, hub.Sweeper, log) }); err != nil {
		log.Fatalf("invalid SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
	}
	c.Start()
	log.WithField("schedule", cfg.SweepSchedule).Info("session sweeper started")

	<-ctx.Done()
	log.Info("shutting down gracefully...")
	<-c.Stop().Done()
	log.Info("session sweeper stopped")
}

func sweep(ctx context.Context, sw *sessionservice.Sweeper, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()
	idle, err := sw.SweepIdle(ctx)
	if err != nil {
		log.WithError(err).Error("idle sweep failed")
	}
	purged, err := sw.PurgeExpired(ctx)
	if err != nil {
		log.WithError(err).Error("purge failed")
	}
	log.WithFields(logrus.Fields{"idle_revoked": idle, "purged": purged}).Info("sweep finished")
}

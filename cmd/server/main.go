// server runs the SSO hub gRPC server: health, access-token authentication and auditing.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"sso-hub/internal/app"
	"sso-hub/internal/config"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/server"
)

const healthInterval = 10 * time.Second

func main() {
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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	s, hs := server.New(server.Deps{
		Tokens:     hub.Tokens,
		Sessions:   hub.Sessions,
		Audit:      hub.Audit,
		Reflection: cfg.Env != "production",
		Log:        log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		hub.Health.Watch(gctx, hs, healthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gRPC server...")
		s.GracefulStop()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("gRPC server stopped with error")
		return
	}
	log.Info("gRPC server stopped")
}

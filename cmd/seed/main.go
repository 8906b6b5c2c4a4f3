// seed creates the first global super_admin. Idempotent: an existing user keeps its password
// and is only granted the role.
//
//	SEED_ADMIN_EMAIL=root@corp.example SEED_ADMIN_PASSWORD=... go run ./cmd/seed
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"sso-hub/internal/app"
	"sso-hub/internal/config"
	"sso-hub/internal/platform/logging"
)

func main() {
	email := flag.String("email", os.Getenv("SEED_ADMIN_EMAIL"), "super_admin email")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "super_admin password (first run only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "").Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)
	if *email == "" || *password == "" {
		log.Fatal("seed: -email and -password (or SEED_ADMIN_EMAIL / SEED_ADMIN_PASSWORD) are required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	hub, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer hub.Close(context.Background())

	id, err := app.Bootstrap(ctx, hub, *email, *password)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.WithField("user_id", id).Info("super_admin ready")
}

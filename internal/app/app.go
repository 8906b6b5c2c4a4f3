// Package app assembles the hub's stores, managers and infrastructure from Config. The binaries
// under cmd/ and embedding services build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	auditrepo "sso-hub/internal/audit/repository"
	"sso-hub/internal/config"
	"sso-hub/internal/db"
	"sso-hub/internal/health"
	identityrepo "sso-hub/internal/identity/repository"
	identityservice "sso-hub/internal/identity/service"
	"sso-hub/internal/invitation/mailer"
	"sso-hub/internal/invitation/policy"
	invitationrepo "sso-hub/internal/invitation/repository"
	invitationservice "sso-hub/internal/invitation/service"
	"sso-hub/internal/platform/ratelimit"
	"sso-hub/internal/provisioning"
	rolerepo "sso-hub/internal/role/repository"
	"sso-hub/internal/security"
	"sso-hub/internal/server/interceptors"
	sessionrepo "sso-hub/internal/session/repository"
	sessionservice "sso-hub/internal/session/service"
	otelsetup "sso-hub/internal/telemetry/otel"
	userrepo "sso-hub/internal/user/repository"
	"sso-hub/internal/user/directory"
)

// Stores groups the persistence layer. All fields are set.
type Stores struct {
	Users       userrepo.Repository
	Identities  identityrepo.Repository
	Roles       rolerepo.Repository
	Sessions    sessionrepo.Repository
	Invitations invitationrepo.Repository
	Audit       auditrepo.Repository
}

// PostgresStores returns stores backed by sqlDB. Role assignments are read from the database on
// every authorization check.
func PostgresStores(sqlDB *sql.DB) Stores {
	return Stores{
		Users:       userrepo.NewPostgresRepository(sqlDB),
		Identities:  identityrepo.NewPostgresRepository(sqlDB),
		Roles:       rolerepo.NewPostgresRepository(sqlDB),
		Sessions:    sessionrepo.NewPostgresRepository(sqlDB),
		Invitations: invitationrepo.NewPostgresRepository(sqlDB),
		Audit:       auditrepo.NewPostgresRepository(sqlDB),
	}
}

// MemoryStores returns process-local stores for development and tests.
func MemoryStores() Stores {
	return Stores{
		Users:       userrepo.NewMemoryRepository(),
		Identities:  identityrepo.NewMemoryRepository(),
		Roles:       rolerepo.NewMemoryRepository(),
		Sessions:    sessionrepo.NewMemoryRepository(),
		Invitations: invitationrepo.NewMemoryRepository(),
		Audit:       auditrepo.NewMemoryRepository(),
	}
}

// App is the assembled hub.
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	Stores      Stores
	Tokens      *security.TokenProvider
	Directory   *directory.Directory
	Sessions    *sessionservice.Manager
	Sweeper     *sessionservice.Sweeper
	Invitations *invitationservice.Manager
	Auth        *identityservice.AuthService
	Audit       audit.AuditLogger
	Health      *health.Checker
	Telemetry   *otelsetup.Providers

	closers []func(context.Context) error
}

// Options customizes New. Zero values use the defaults derived from Config.
type Options struct {
	// Stores overrides the stores; when nil, Postgres is used if DATABASE_URL is set, else memory.
	Stores *Stores
	// Provisioner overrides the downstream provisioning hook.
	Provisioner provisioning.Provisioner
}

// New builds the App. Close must be called to release connections and flush telemetry.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg, log := a.Config, a.Log

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.Telemetry = providers
	a.closers = append(a.closers, providers.Shutdown)
	metrics, events := providers.Metrics, providers.Events

	var sqlDB *sql.DB
	switch {
	case opts.Stores != nil:
		a.Stores = *opts.Stores
	case cfg.DatabaseURL != "":
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		sqlDB, err = db.Open(openCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return sqlDB.Close() })
		a.Stores = PostgresStores(sqlDB)
	default:
		log.Warn("DATABASE_URL not set; using in-memory stores")
		a.Stores = MemoryStores()
	}

	tokens, err := loadTokens(cfg, log)
	if err != nil {
		return err
	}
	a.Tokens = tokens

	a.Audit = audit.NewLogger(a.Stores.Audit, interceptors.ClientIP, log)
	a.Directory = directory.New(a.Stores.Users, a.Stores.Identities, a.Stores.Roles, security.NewHasher(cfg.BcryptCost), log)
	a.Sessions = sessionservice.NewManager(a.Stores.Sessions, security.NewCodec(), tokens, a.Audit, metrics, events, log,
		sessionservice.Config{SessionTTL: cfg.SessionTTLDuration(), IdleTimeout: cfg.IdleTimeout()})
	a.Sweeper = sessionservice.NewSweeper(a.Stores.Sessions, cfg.IdleTimeout(), cfg.Retention(), a.Audit, metrics, log)

	module, err := readPolicy(cfg.EmailPolicyFile)
	if err != nil {
		return err
	}
	domains, err := policy.NewDomainPolicy(ctx, module, cfg.InternalDomains())
	if err != nil {
		return fmt.Errorf("email policy: %w", err)
	}

	var redeemLimiter invitationservice.Limiter
	var loginLimiter identityservice.Limiter
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
		redeemLimiter = ratelimit.NewLimiter(redisClient, "redeem", cfg.RedeemRateLimit, cfg.RedeemWindow())
		loginLimiter = ratelimit.NewLimiter(redisClient, "login", cfg.LoginRateLimit, cfg.RedeemWindow())
	}

	var mail mailer.Mailer = mailer.Nop{Log: log}
	if cfg.SMTPHost != "" {
		m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort, TLS: cfg.SMTPTLS,
			Username: cfg.SMTPUsername, Password: cfg.SMTPPassword,
			From: cfg.SMTPFrom, BaseURL: cfg.InviteBaseURL,
		}, log)
		if err != nil {
			return fmt.Errorf("mailer: %w", err)
		}
		mail = m
	}

	alreadyMember, err := invitationservice.ParseAlreadyMemberPolicy(cfg.AlreadyMemberPolicy)
	if err != nil {
		return err
	}
	a.Invitations = invitationservice.NewManager(invitationservice.Deps{
		Repo:        a.Stores.Invitations,
		Codec:       security.NewCodec(),
		Directory:   a.Directory,
		Roles:       a.Stores.Roles,
		Sessions:    a.Sessions,
		Domains:     domains,
		Mailer:      mail,
		Limiter:     redeemLimiter,
		Provisioner: opts.Provisioner,
		Audit:       a.Audit,
		Metrics:     metrics,
		Events:      events,
		Log:         log,
	}, alreadyMember)
	a.Auth = identityservice.NewAuthService(a.Directory, a.Sessions, loginLimiter, a.Audit, log)

	var pinger health.Pinger
	if sqlDB != nil {
		pinger = sqlDB
	}
	a.Health = health.NewChecker(pinger, domains, log)
	if redisClient != nil {
		a.Health.Add("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var failed []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			failed = append(failed, err)
		}
	}
	a.closers = nil
	return errors.Join(failed...)
}

func loadTokens(cfg *config.Config, log *logrus.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		log.Warn("JWT keys not configured; using the built-in development key pair")
		return security.NewTestTokenProvider()
	}
	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwt keys: %w", err)
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}

func readPolicy(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("email policy file: %w", err)
	}
	return string(b), nil
}

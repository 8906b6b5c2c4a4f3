// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs the server on in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the redemption rate limiter (redis://host:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// SessionTTL bounds a session family from creation; rotation does not extend it.
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionIdleTimeout revokes sessions unused for this long. "0" disables idle expiry.
	SessionIdleTimeout string `mapstructure:"SESSION_IDLE_TIMEOUT"`
	// SessionRetention is how long ended sessions are kept before the worker purges them.
	SessionRetention string `mapstructure:"SESSION_RETENTION"`
	// SweepSchedule is the cron spec for the session sweeper.
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`

	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// InternalEmailDomains is a comma-separated list of domains allowed for internal roles.
	InternalEmailDomains string `mapstructure:"INTERNAL_EMAIL_DOMAINS"`
	// EmailPolicyFile optionally overrides the built-in Rego email-domain policy.
	EmailPolicyFile string `mapstructure:"EMAIL_POLICY_FILE"`
	// AlreadyMemberPolicy is "consume" or "release".
	AlreadyMemberPolicy string `mapstructure:"ALREADY_MEMBER_POLICY"`
	RedeemRateLimit     int    `mapstructure:"REDEEM_RATE_LIMIT"`
	RedeemRateWindow    string `mapstructure:"REDEEM_RATE_WINDOW"`
	LoginRateLimit      int    `mapstructure:"LOGIN_RATE_LIMIT"`

	// SMTP settings. An empty SMTPHost logs invitation mail instead of sending it.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPTLS      bool   `mapstructure:"SMTP_TLS"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	// InviteBaseURL is the accept page the invitation code is appended to.
	InviteBaseURL string `mapstructure:"INVITE_BASE_URL"`

	// OTLPEndpoint enables OpenTelemetry export (host:port, gRPC).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "sso-hub")
	v.SetDefault("JWT_AUDIENCE", "sso-hub-clients")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "168h")
	v.SetDefault("SESSION_RETENTION", "720h")
	v.SetDefault("SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("INTERNAL_EMAIL_DOMAINS", "")
	v.SetDefault("EMAIL_POLICY_FILE", "")
	v.SetDefault("ALREADY_MEMBER_POLICY", "consume")
	v.SetDefault("REDEEM_RATE_LIMIT", 20)
	v.SetDefault("REDEEM_RATE_WINDOW", "15m")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_TLS", true)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("INVITE_BASE_URL", "http://localhost:3000/invite")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "sso-hub")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AlreadyMemberPolicy)) {
	case "", "consume", "release":
	default:
		return nil, errors.New("config: ALREADY_MEMBER_POLICY must be consume or release")
	}
	if cfg.SessionTTLDuration() <= 0 {
		return nil, errors.New("config: SESSION_TTL must be a positive duration")
	}
	if cfg.Env == "production" && (cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
	}

	return &cfg, nil
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	if d := duration(c.JWTAccessTTL, 0); d > 0 {
		return d
	}
	return 15 * time.Minute
}

// SessionTTLDuration parses SessionTTL; zero when invalid.
func (c *Config) SessionTTLDuration() time.Duration { return duration(c.SessionTTL, 0) }

// IdleTimeout parses SessionIdleTimeout. Zero disables idle expiry.
func (c *Config) IdleTimeout() time.Duration { return duration(c.SessionIdleTimeout, 0) }

// Retention parses SessionRetention. Zero disables purging.
func (c *Config) Retention() time.Duration { return duration(c.SessionRetention, 0) }

// RedeemWindow parses RedeemRateWindow. Returns 15m if unset or invalid.
func (c *Config) RedeemWindow() time.Duration {
	if d := duration(c.RedeemRateWindow, 0); d > 0 {
		return d
	}
	return 15 * time.Minute
}

// InternalDomains returns the configured internal email domains.
func (c *Config) InternalDomains() []string {
	return splitList(c.InternalEmailDomains)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/session/domain"
	"sso-hub/internal/session/repository"
	"sso-hub/internal/telemetry"
)

// Sweeper revokes idle sessions and purges rows past retention. Expiry is also enforced lazily on
// every read, so a missed sweep only delays cleanup.
type Sweeper struct {
	repo        repository.Repository
	idleTimeout time.Duration
	retention   time.Duration
	audit       audit.AuditLogger
	metrics     telemetry.Recorder
	log         *logrus.Logger
	now         func() time.Time
}

// NewSweeper returns a Sweeper. A zero idleTimeout disables SweepIdle; a zero retention disables PurgeExpired.
func NewSweeper(repo repository.Repository, idleTimeout, retention time.Duration, auditLogger audit.AuditLogger, metrics telemetry.Recorder, log *logrus.Logger) *Sweeper {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if metrics == nil {
		metrics = telemetry.NopRecorder{}
	}
	return &Sweeper{
		repo:        repo,
		idleTimeout: idleTimeout,
		retention:   retention,
		audit:       auditLogger,
		metrics:     metrics,
		log:         logging.Default(log),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SweepIdle revokes live sessions without activity for longer than the idle timeout.
func (s *Sweeper) SweepIdle(ctx context.Context) (int64, error) {
	if s.idleTimeout <= 0 {
		return 0, nil
	}
	now := s.now()
	n, err := s.repo.RevokeIdle(ctx, now.Add(-s.idleTimeout), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.SessionsRevoked(ctx, string(domain.ReasonIdleTimeout), n)
		meta, _ := json.Marshal(map[string]int64{"revoked": n})
		s.audit.LogEvent(ctx, "", "", audit.ActionIdleSwept, audit.ResourceSession, string(meta))
		s.log.WithField("revoked", n).Info("idle sessions revoked")
	}
	return n, nil
}

// PurgeExpired deletes sessions that ended more than the retention period ago.
func (s *Sweeper) PurgeExpired(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteExpired(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("deleted", n).Info("expired sessions purged")
	}
	return n, nil
}

// Package service implements session lifecycle: creation, refresh-token rotation with replay
// detection, revocation and liveness checks.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/session/domain"
	"sso-hub/internal/session/repository"
	"sso-hub/internal/telemetry"
	telemetrydomain "sso-hub/internal/telemetry/domain"
)

// TokenCodec generates opaque refresh tokens and hashes them for storage.
type TokenCodec interface {
	GenerateOpaqueToken() (string, error)
	Hash(raw string) string
}

// AccessIssuer signs the short-lived access token returned next to each refresh token.
type AccessIssuer interface {
	IssueAccess(sessionID, userID, environment string) (token string, expiresAt time.Time, err error)
}

// Config holds session lifetimes.
type Config struct {
	// SessionTTL is the absolute lifetime granted on creation and on each rotation.
	SessionTTL time.Duration
	// IdleTimeout revokes sessions with no activity for this long. Zero disables it.
	IdleTimeout time.Duration
}

// Issued is returned once per creation or rotation. RefreshToken is the only copy of the raw value.
type Issued struct {
	Session         *domain.Session
	RefreshToken    string
	AccessToken     string
	AccessExpiresAt time.Time
}

// Manager owns session state transitions. It never retries a rotation: a retried rotation would
// present a superseded token and be treated as a replay.
type Manager struct {
	repo    repository.Repository
	codec   TokenCodec
	access  AccessIssuer
	audit   audit.AuditLogger
	metrics telemetry.Recorder
	events  telemetry.EventEmitter
	log     *logrus.Logger
	cfg     Config
	now     func() time.Time
}

// NewManager returns a Manager. access may be nil, in which case no access token is issued.
// auditLogger, metrics, events and log may be nil.
func NewManager(
	repo repository.Repository,
	codec TokenCodec,
	access AccessIssuer,
	auditLogger audit.AuditLogger,
	metrics telemetry.Recorder,
	events telemetry.EventEmitter,
	log *logrus.Logger,
	cfg Config,
) *Manager {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if metrics == nil {
		metrics = telemetry.NopRecorder{}
	}
	if events == nil {
		events = telemetry.NopEmitter{}
	}
	return &Manager{
		repo:    repo,
		codec:   codec,
		access:  access,
		audit:   auditLogger,
		metrics: metrics,
		events:  events,
		log:     logging.Default(log),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession starts a new family for userID and returns the raw refresh token once.
func (m *Manager) CreateSession(ctx context.Context, userID string, device domain.Device, environment string) (*Issued, error) {
	if userID == "" {
		return nil, errs.New(errs.KindValidationFailed, "user id is required")
	}
	raw, err := m.codec.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		RefreshTokenHash: m.codec.Hash(raw),
		FamilyID:         uuid.New().String(),
		Device:           device,
		Environment:      environment,
		ExpiresAt:        now.Add(m.cfg.SessionTTL),
		CreatedAt:        now,
		LastActivityAt:   now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	issued, err := m.issue(s, raw)
	if err != nil {
		return nil, err
	}

	m.metrics.SessionCreated(ctx, environment)
	m.audit.LogEvent(ctx, "", userID, audit.ActionSessionCreated, audit.ResourceSession, sessionMeta(s))
	m.emit(telemetrydomain.EventSessionCreated, s, telemetry.OutcomeOK)
	m.log.WithFields(logrus.Fields{"session_id": s.ID, "user_id": userID}).Debug("session created")
	return issued, nil
}

// Rotate exchanges a current refresh token for a new one on the same session.
//
// Unknown tokens yield NotFound. A token that was already rotated away is a replay: the whole
// family is revoked and NotFound wrapping ReuseDetected is returned. A revoked, expired or idle
// session yields Expired without mutation.
func (m *Manager) Rotate(ctx context.Context, rawRefresh string) (*Issued, error) {
	if rawRefresh == "" {
		m.metrics.Rotation(ctx, telemetry.OutcomeNotFound)
		return nil, errs.New(errs.KindNotFound, "refresh token not found")
	}
	oldHash := m.codec.Hash(rawRefresh)
	now := m.now()

	s, err := m.repo.GetByRefreshHash(ctx, oldHash)
	if err != nil {
		return nil, err
	}
	if s == nil {
		sup, err := m.repo.FindSuperseded(ctx, oldHash)
		if err != nil {
			return nil, err
		}
		if sup == nil {
			m.metrics.Rotation(ctx, telemetry.OutcomeNotFound)
			return nil, errs.New(errs.KindNotFound, "refresh token not found")
		}
		return nil, m.handleReuse(ctx, sup.FamilyID, sup.SessionID, "")
	}
	if !s.Active(now, m.cfg.IdleTimeout) {
		m.metrics.Rotation(ctx, telemetry.OutcomeExpired)
		return nil, errs.New(errs.KindExpired, "session expired or revoked")
	}

	raw, err := m.codec.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	newHash := m.codec.Hash(raw)
	expiresAt := now.Add(m.cfg.SessionTTL)
	swapped, err := m.repo.RotateRefreshHash(ctx, s.ID, oldHash, newHash, now, expiresAt)
	if err != nil {
		return nil, err
	}
	if !swapped {
		current, err := m.repo.GetByID(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			m.metrics.Rotation(ctx, telemetry.OutcomeNotFound)
			return nil, errs.New(errs.KindNotFound, "refresh token not found")
		}
		if current.RefreshTokenHash == oldHash {
			// Revoked between read and swap.
			m.metrics.Rotation(ctx, telemetry.OutcomeExpired)
			return nil, errs.New(errs.KindExpired, "session expired or revoked")
		}
		return nil, m.handleReuse(ctx, current.FamilyID, current.ID, current.UserID)
	}

	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.LastActivityAt = now
	issued, err := m.issue(s, raw)
	if err != nil {
		return nil, err
	}
	m.metrics.Rotation(ctx, telemetry.OutcomeOK)
	m.audit.LogEvent(ctx, "", s.UserID, audit.ActionSessionRotated, audit.ResourceSession, sessionMeta(s))
	m.emit(telemetrydomain.EventSessionRotated, s, telemetry.OutcomeOK)
	return issued, nil
}

// handleReuse revokes the family of a replayed token and returns the error for the caller.
func (m *Manager) handleReuse(ctx context.Context, familyID, sessionID, userID string) error {
	now := m.now()
	n, err := m.repo.RevokeFamily(ctx, familyID, domain.ReasonReuseDetected, now)
	if err != nil {
		return err
	}
	if userID == "" {
		if s, err := m.repo.GetByID(ctx, sessionID); err == nil && s != nil {
			userID = s.UserID
		}
	}
	m.metrics.Rotation(ctx, telemetry.OutcomeReuse)
	m.metrics.SessionsRevoked(ctx, string(domain.ReasonReuseDetected), n)
	meta, _ := json.Marshal(map[string]any{"family_id": familyID, "session_id": sessionID, "revoked": n})
	m.audit.LogEvent(ctx, "", userID, audit.ActionReuseDetected, audit.ResourceSession, string(meta))
	telemetry.EmitAsync(m.events, m.log, &telemetrydomain.SecurityEvent{
		Type:      telemetrydomain.EventRefreshReuse,
		UserID:    userID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Outcome:   telemetry.OutcomeReuse,
		CreatedAt: now,
	})
	m.log.WithFields(logrus.Fields{"family_id": familyID, "session_id": sessionID, "revoked": n}).
		Warn("refresh token reuse detected; family revoked")
	return errs.Wrap(errs.KindNotFound, "refresh token not found", errs.New(errs.KindReuseDetected, "refresh token reuse detected"))
}

// Revoke ends one session. Revoking an already revoked session is a no-op.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.revoke(ctx, sessionID, domain.ReasonLogout)
}

// RevokeWithReason is Revoke with an explicit reason, used by administrative paths.
func (m *Manager) RevokeWithReason(ctx context.Context, sessionID string, reason domain.RevokeReason) error {
	return m.revoke(ctx, sessionID, reason)
}

func (m *Manager) revoke(ctx context.Context, sessionID string, reason domain.RevokeReason) error {
	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return errs.New(errs.KindNotFound, "session not found")
	}
	if s.Revoked() {
		return nil
	}
	if err := m.repo.Revoke(ctx, sessionID, reason, m.now()); err != nil {
		return err
	}
	m.metrics.SessionsRevoked(ctx, string(reason), 1)
	m.audit.LogEvent(ctx, "", s.UserID, audit.ActionSessionRevoked, audit.ResourceSession, sessionMeta(s))
	return nil
}

// RevokeFamily revokes every session descended from the same login and returns the count changed.
func (m *Manager) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	n, err := m.repo.RevokeFamily(ctx, familyID, domain.ReasonLogoutEverywhere, m.now())
	if err != nil {
		return 0, err
	}
	m.metrics.SessionsRevoked(ctx, string(domain.ReasonLogoutEverywhere), n)
	meta, _ := json.Marshal(map[string]any{"family_id": familyID, "revoked": n})
	m.audit.LogEvent(ctx, "", "", audit.ActionFamilyRevoked, audit.ResourceSession, string(meta))
	telemetry.EmitAsync(m.events, m.log, &telemetrydomain.SecurityEvent{
		Type: telemetrydomain.EventFamilyRevoked, FamilyID: familyID, Outcome: telemetry.OutcomeOK, CreatedAt: m.now(),
	})
	return n, nil
}

// RevokeAllForUser revokes every live session of userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.repo.RevokeAllByUser(ctx, userID, domain.ReasonLogoutEverywhere, m.now())
	if err != nil {
		return 0, err
	}
	m.metrics.SessionsRevoked(ctx, string(domain.ReasonLogoutEverywhere), n)
	meta, _ := json.Marshal(map[string]any{"revoked": n})
	m.audit.LogEvent(ctx, "", userID, audit.ActionUserLoggedOutAll, audit.ResourceUser, string(meta))
	return n, nil
}

// Validate returns the session when it is live. Missing sessions yield NotFound; revoked, expired
// or idle sessions yield Expired.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, errs.New(errs.KindNotFound, "session not found")
	}
	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errs.New(errs.KindNotFound, "session not found")
	}
	if !s.Active(m.now(), m.cfg.IdleTimeout) {
		return nil, errs.New(errs.KindExpired, "session expired or revoked")
	}
	return s, nil
}

// Touch validates the session and records activity on it.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	if _, err := m.Validate(ctx, sessionID); err != nil {
		return err
	}
	ok, err := m.repo.Touch(ctx, sessionID, m.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindExpired, "session expired or revoked")
	}
	return nil
}

// SessionForRefreshToken returns the live session currently holding rawRefresh.
func (m *Manager) SessionForRefreshToken(ctx context.Context, rawRefresh string) (*domain.Session, error) {
	if rawRefresh == "" {
		return nil, errs.New(errs.KindNotFound, "refresh token not found")
	}
	s, err := m.repo.GetByRefreshHash(ctx, m.codec.Hash(rawRefresh))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errs.New(errs.KindNotFound, "refresh token not found")
	}
	return s, nil
}

// ListActive returns the user's live sessions, most recently active first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	now := m.now()
	all, err := m.repo.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if !s.Idle(now, m.cfg.IdleTimeout) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Manager) issue(s *domain.Session, raw string) (*Issued, error) {
	issued := &Issued{Session: s, RefreshToken: raw}
	if m.access == nil {
		return issued, nil
	}
	token, exp, err := m.access.IssueAccess(s.ID, s.UserID, s.Environment)
	if err != nil {
		return nil, err
	}
	issued.AccessToken = token
	issued.AccessExpiresAt = exp
	return issued, nil
}

func (m *Manager) emit(t telemetrydomain.EventType, s *domain.Session, outcome string) {
	telemetry.EmitAsync(m.events, m.log, &telemetrydomain.SecurityEvent{
		Type:      t,
		UserID:    s.UserID,
		SessionID: s.ID,
		FamilyID:  s.FamilyID,
		Outcome:   outcome,
		CreatedAt: m.now(),
	})
}

func sessionMeta(s *domain.Session) string {
	b, _ := json.Marshal(map[string]string{
		"session_id":  s.ID,
		"family_id":   s.FamilyID,
		"environment": s.Environment,
		"client_id":   s.Device.ClientID,
	})
	return string(b)
}

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit/domain"
	auditrepo "sso-hub/internal/audit/repository"
	"sso-hub/internal/platform/logging"
)

// SentinelScopeID is the scope_id used for audit events that belong to no organization
// (global invitations, login failures, session lifecycle).
const SentinelScopeID = "_system"

// Actions recorded by the session and invitation code paths.
const (
	ActionLoginSuccess        = "login_success"
	ActionLoginFailure        = "login_failure"
	ActionSessionCreated      = "session_created"
	ActionSessionRotated      = "session_rotated"
	ActionSessionRevoked      = "session_revoked"
	ActionFamilyRevoked       = "family_revoked"
	ActionUserLoggedOutAll    = "user_logged_out_everywhere"
	ActionReuseDetected       = "refresh_reuse_detected"
	ActionIdleSwept           = "sessions_idle_swept"
	ActionInvitationIssued    = "invitation_issued"
	ActionInvitationCancelled = "invitation_cancelled"
	ActionInvitationRedeemed  = "invitation_redeemed"
	ActionRedemptionFailed    = "invitation_redemption_failed"
	ActionRoleGranted         = "role_granted"
)

// Resources.
const (
	ResourceSession    = "session"
	ResourceInvitation = "invitation"
	ResourceUser       = "user"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by session and invitation code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, scopeID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *logrus.Logger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". log may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *logrus.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: logging.Default(log), now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, scopeID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if scopeID == "" {
		scopeID = SentinelScopeID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		ScopeID:   scopeID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WithFields(logrus.Fields{"action": action, "resource": resource}).
			WithError(err).Warn("audit: failed to log event")
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, string) {}

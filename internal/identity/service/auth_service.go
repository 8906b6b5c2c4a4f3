package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/server/interceptors"
	sessiondomain "sso-hub/internal/session/domain"
	sessionservice "sso-hub/internal/session/service"
	userdomain "sso-hub/internal/user/domain"
)

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	SessionID    string
}

// Directory is the subset of the user directory needed for password login.
type Directory interface {
	FindActiveUserByEmail(ctx context.Context, email string) (*userdomain.User, error)
	VerifyCredential(ctx context.Context, userID, raw string) (bool, error)
	// RejectCredential performs a credential check's hashing work without an account.
	RejectCredential(raw string) bool
}

// Sessions is the subset of the session manager used by AuthService.
type Sessions interface {
	CreateSession(ctx context.Context, userID string, device sessiondomain.Device, environment string) (*sessionservice.Issued, error)
	Rotate(ctx context.Context, rawRefresh string) (*sessionservice.Issued, error)
	Revoke(ctx context.Context, sessionID string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	SessionForRefreshToken(ctx context.Context, rawRefresh string) (*sessiondomain.Session, error)
}

// Limiter throttles repeated attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuthService implements password login, refresh, and logout on top of the session manager.
type AuthService struct {
	directory Directory
	sessions  Sessions
	limiter   Limiter
	audit     audit.AuditLogger
	log       *logrus.Logger
}

// NewAuthService returns an AuthService. limiter, auditLogger and log may be nil.
func NewAuthService(directory Directory, sessions Sessions, limiter Limiter, auditLogger audit.AuditLogger, log *logrus.Logger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		directory: directory,
		sessions:  sessions,
		limiter:   limiter,
		audit:     auditLogger,
		log:       logging.Default(log),
	}
}

var errInvalidCredentials = errs.New(errs.KindUnauthenticated, "invalid credentials")

// Login authenticates with email and password and starts a new session family.
// Unknown users, inactive users and wrong passwords all fail with the same Unauthenticated error.
func (s *AuthService) Login(ctx context.Context, email, password string, device sessiondomain.Device, environment string) (*AuthResult, error) {
	normalized, err := userdomain.NormalizeEmail(email)
	if err != nil || password == "" {
		s.loginFailed(ctx, "", "malformed")
		return nil, errInvalidCredentials
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "login:"+normalized)
		if err != nil {
			s.log.WithError(err).Warn("login rate limiter unavailable")
		} else if !ok {
			s.loginFailed(ctx, "", "rate_limited")
			return nil, errInvalidCredentials
		}
	}
	user, err := s.directory.FindActiveUserByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.directory.RejectCredential(password)
		s.loginFailed(ctx, "", "unknown_user")
		return nil, errInvalidCredentials
	}
	ok, err := s.directory.VerifyCredential(ctx, user.ID, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.loginFailed(ctx, user.ID, "bad_credential")
		return nil, errInvalidCredentials
	}
	issued, err := s.sessions.CreateSession(ctx, user.ID, device, environment)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, "", user.ID, audit.ActionLoginSuccess, audit.ResourceUser, "")
	return toResult(issued), nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID, reason string) {
	meta, _ := json.Marshal(map[string]string{"reason": reason})
	s.audit.LogEvent(ctx, "", userID, audit.ActionLoginFailure, audit.ResourceUser, string(meta))
}

// Refresh rotates the refresh token and returns new tokens.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	issued, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toResult(issued), nil
}

// Logout revokes the session identified by the refresh token or, when refreshToken is empty, the
// session of the access token in context. Unknown refresh tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		sess, err := s.sessions.SessionForRefreshToken(ctx, refreshToken)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.sessions.Revoke(ctx, sess.ID)
	}
	sessionID, ok := interceptors.GetSessionID(ctx)
	if !ok {
		return nil
	}
	return s.sessions.Revoke(ctx, sessionID)
}

// LogoutEverywhere revokes every session of the authenticated user.
func (s *AuthService) LogoutEverywhere(ctx context.Context) (int64, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok {
		return 0, errs.New(errs.KindUnauthenticated, "no authenticated user")
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func toResult(issued *sessionservice.Issued) *AuthResult {
	return &AuthResult{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresAt:    issued.AccessExpiresAt,
		UserID:       issued.Session.UserID,
		SessionID:    issued.Session.ID,
	}
}

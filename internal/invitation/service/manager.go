// Package service implements invitation issuance and the race-safe redemption state machine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	"sso-hub/internal/invitation/domain"
	"sso-hub/internal/invitation/mailer"
	"sso-hub/internal/invitation/repository"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
	"sso-hub/internal/platform/rbac"
	"sso-hub/internal/provisioning"
	roledomain "sso-hub/internal/role/domain"
	sessiondomain "sso-hub/internal/session/domain"
	sessionservice "sso-hub/internal/session/service"
	"sso-hub/internal/telemetry"
	telemetrydomain "sso-hub/internal/telemetry/domain"
	userdomain "sso-hub/internal/user/domain"
)

// TokenCodec generates invitation codes and hashes them for storage.
type TokenCodec interface {
	GenerateOpaqueToken() (string, error)
	Hash(raw string) string
}

// Directory creates and resolves users and grants roles.
type Directory interface {
	CreateUser(ctx context.Context, email, firstName, lastName string, credential *string) (string, error)
	FindActiveUserByEmail(ctx context.Context, email string) (*userdomain.User, error)
	AttachEmail(ctx context.Context, userID, email string) error
	GrantRole(ctx context.Context, userID string, role roledomain.RoleType, scope roledomain.Scope) (bool, error)
	HasRole(ctx context.Context, userID string, role roledomain.RoleType, scope roledomain.Scope) (bool, error)
	VerifyCredential(ctx context.Context, userID, raw string) (bool, error)
}

// SessionCreator starts the session returned by a successful redemption.
type SessionCreator interface {
	CreateSession(ctx context.Context, userID string, device sessiondomain.Device, environment string) (*sessionservice.Issued, error)
}

// DomainChecker enforces the email-domain policy for a role.
type DomainChecker interface {
	Check(ctx context.Context, role roledomain.RoleType, email string) error
}

// Limiter throttles redemption attempts per client.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AlreadyMemberPolicy decides what happens to a limited use when the redeemer already holds the
// invited role.
type AlreadyMemberPolicy string

const (
	// AlreadyMemberConsume keeps the use consumed.
	AlreadyMemberConsume AlreadyMemberPolicy = "consume"
	// AlreadyMemberRelease gives the use back.
	AlreadyMemberRelease AlreadyMemberPolicy = "release"
)

// ParseAlreadyMemberPolicy maps a config value onto a policy. Empty means consume.
func ParseAlreadyMemberPolicy(s string) (AlreadyMemberPolicy, error) {
	switch AlreadyMemberPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlreadyMemberConsume:
		return AlreadyMemberConsume, nil
	case AlreadyMemberRelease:
		return AlreadyMemberRelease, nil
	default:
		return "", fmt.Errorf("unknown already-member policy %q", s)
	}
}

// Deps are the collaborators of Manager. Mailer, Limiter, Provisioner, Audit, Metrics, Events and
// Log may be nil.
type Deps struct {
	Repo        repository.Repository
	Codec       TokenCodec
	Directory   Directory
	Roles       rbac.AssignmentLister
	Sessions    SessionCreator
	Domains     DomainChecker
	Mailer      mailer.Mailer
	Limiter     Limiter
	Provisioner provisioning.Provisioner
	Audit       audit.AuditLogger
	Metrics     telemetry.Recorder
	Events      telemetry.EventEmitter
	Log         *logrus.Logger
}

// Manager owns invitation issuance and redemption.
type Manager struct {
	repo          repository.Repository
	codec         TokenCodec
	directory     Directory
	roles         rbac.AssignmentLister
	authorizer    rbac.Authorizer
	sessions      SessionCreator
	domains       DomainChecker
	mailer        mailer.Mailer
	limiter       Limiter
	provisioner   provisioning.Provisioner
	audit         audit.AuditLogger
	metrics       telemetry.Recorder
	events        telemetry.EventEmitter
	log           *logrus.Logger
	alreadyMember AlreadyMemberPolicy
	now           func() time.Time
}

// NewManager returns a Manager.
func NewManager(d Deps, alreadyMember AlreadyMemberPolicy) *Manager {
	m := &Manager{
		repo:          d.Repo,
		codec:         d.Codec,
		directory:     d.Directory,
		roles:         d.Roles,
		authorizer:    rbac.NewAuthorizer(),
		sessions:      d.Sessions,
		domains:       d.Domains,
		mailer:        d.Mailer,
		limiter:       d.Limiter,
		provisioner:   d.Provisioner,
		audit:         d.Audit,
		metrics:       d.Metrics,
		events:        d.Events,
		log:           logging.Default(d.Log),
		alreadyMember: alreadyMember,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if m.mailer == nil {
		m.mailer = mailer.Nop{Log: m.log}
	}
	if m.provisioner == nil {
		m.provisioner = provisioning.Noop{}
	}
	if m.audit == nil {
		m.audit = audit.Nop{}
	}
	if m.metrics == nil {
		m.metrics = telemetry.NopRecorder{}
	}
	if m.events == nil {
		m.events = telemetry.NopEmitter{}
	}
	if m.alreadyMember == "" {
		m.alreadyMember = AlreadyMemberConsume
	}
	return m
}

// IssueRequest describes a new invitation.
type IssueRequest struct {
	IssuerID    string
	TargetEmail *string // nil issues a shareable link
	Role        roledomain.RoleType
	Scope       roledomain.Scope
	MaxUses     int // domain.Unlimited or >= 1
	ExpiresAt   *time.Time
	// Force cancels a pending invitation for the same (email, scope) instead of failing with Conflict.
	Force bool
}

// Issued carries the stored invitation and its raw code. The code is not recoverable later.
type Issued struct {
	Invitation *domain.Invitation
	Code       string
}

// Issue authorizes the issuer, validates the target and stores a new invitation.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if err := m.authorizeIssuer(ctx, req.IssuerID, req.Role, req.Scope); err != nil {
		return nil, err
	}
	now := m.now()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		Role:      req.Role,
		Scope:     req.Scope,
		MaxUses:   req.MaxUses,
		Status:    domain.StatusPending,
		CreatedBy: req.IssuerID,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
	}
	if req.TargetEmail != nil {
		email, err := userdomain.NormalizeEmail(*req.TargetEmail)
		if err != nil {
			return nil, err
		}
		if err := m.domains.Check(ctx, req.Role, email); err != nil {
			return nil, err
		}
		inv.TargetEmail = &email
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if inv.ExpiresAt != nil && !inv.ExpiresAt.After(now) {
		return nil, errs.New(errs.KindValidationFailed, "expiry must be in the future")
	}

	code, err := m.codec.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	inv.CodeHash = m.codec.Hash(code)
	if err := m.repo.Create(ctx, inv, req.Force); err != nil {
		return nil, err
	}

	scopeID := auditScope(inv.Scope)
	m.audit.LogEvent(ctx, scopeID, req.IssuerID, audit.ActionInvitationIssued, audit.ResourceInvitation, invitationMeta(inv, nil))
	telemetry.EmitAsync(m.events, m.log, &telemetrydomain.SecurityEvent{
		Type: telemetrydomain.EventInvitationIssued, UserID: req.IssuerID, ScopeID: scopeID, Outcome: telemetry.OutcomeOK, CreatedAt: now,
	})
	if inv.TargetEmail != nil {
		err := m.mailer.SendInvitation(ctx, mailer.Invitation{
			To: *inv.TargetEmail, Code: code, Role: string(inv.Role), Scope: inv.Scope.String(), ExpiresAt: inv.ExpiresAt,
		})
		if err != nil {
			m.log.WithField("invitation_id", inv.ID).WithError(err).Warn("invitation mail failed")
		}
	}
	return &Issued{Invitation: inv, Code: code}, nil
}

// authorizeIssuer applies the issuance rules: global scope needs a global super_admin or
// internal_admin, organization scope needs client_admin or client_hr there (global super_admin
// dominates), and only super_admin may hand out super_admin.
func (m *Manager) authorizeIssuer(ctx context.Context, issuerID string, role roledomain.RoleType, scope roledomain.Scope) error {
	if issuerID == "" {
		return errs.New(errs.KindUnauthenticated, "issuer required")
	}
	assignments, err := m.roles.ListByUser(ctx, issuerID)
	if err != nil {
		return err
	}
	required := roledomain.NewRoleSet(roledomain.RoleClientAdmin, roledomain.RoleClientHR)
	switch {
	case role == roledomain.RoleSuperAdmin:
		required = roledomain.NewRoleSet(roledomain.RoleSuperAdmin)
	case scope.IsGlobal():
		required = roledomain.NewRoleSet(roledomain.RoleSuperAdmin, roledomain.RoleInternalAdmin)
	}
	return m.authorizer.Authorize(assignments, required, &scope)
}

// Cancel moves a pending invitation to cancelled.
func (m *Manager) Cancel(ctx context.Context, issuerID, invitationID string) error {
	inv, err := m.repo.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv == nil {
		return errs.New(errs.KindNotFound, "invitation not found")
	}
	if err := m.authorizeIssuer(ctx, issuerID, inv.Role, inv.Scope); err != nil {
		return err
	}
	ok, err := m.repo.Cancel(ctx, invitationID, m.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindConflict, "invitation is not pending")
	}
	m.audit.LogEvent(ctx, auditScope(inv.Scope), issuerID, audit.ActionInvitationCancelled, audit.ResourceInvitation, invitationMeta(inv, nil))
	return nil
}

// ListPending returns the redeemable invitations of scope the issuer may manage.
func (m *Manager) ListPending(ctx context.Context, issuerID string, scope roledomain.Scope) ([]*domain.Invitation, error) {
	if err := scope.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindValidationFailed, "invalid scope", err)
	}
	role := roledomain.RoleClientEmployee
	if scope.IsGlobal() {
		role = roledomain.RoleInternalStaff
	}
	if err := m.authorizeIssuer(ctx, issuerID, role, scope); err != nil {
		return nil, err
	}
	return m.repo.ListPendingByScope(ctx, scope, m.now())
}

func auditScope(s roledomain.Scope) string {
	if s.IsGlobal() {
		return audit.SentinelScopeID
	}
	return s.EntityID
}

func invitationMeta(inv *domain.Invitation, extra map[string]any) string {
	meta := map[string]any{
		"invitation_id": inv.ID,
		"role":          string(inv.Role),
		"scope":         inv.Scope.String(),
		"max_uses":      inv.MaxUses,
		"shareable":     inv.Shareable(),
	}
	for k, v := range extra {
		meta[k] = v
	}
	b, _ := json.Marshal(meta)
	return string(b)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, errs.ErrNotFound):
		return telemetry.OutcomeNotFound
	case errors.Is(err, errs.ErrExpired):
		return telemetry.OutcomeExpired
	case errors.Is(err, errs.ErrExhausted):
		return telemetry.OutcomeExhausted
	case errors.Is(err, errs.ErrConflict):
		return telemetry.OutcomeConflict
	default:
		return telemetry.OutcomeRejected
	}
}

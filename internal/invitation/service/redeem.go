package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sso-hub/internal/audit"
	"sso-hub/internal/invitation/domain"
	"sso-hub/internal/platform/errs"
	sessiondomain "sso-hub/internal/session/domain"
	sessionservice "sso-hub/internal/session/service"
	"sso-hub/internal/telemetry"
	telemetrydomain "sso-hub/internal/telemetry/domain"
	userdomain "sso-hub/internal/user/domain"
)

// RedeemRequest is an unauthenticated invitation acceptance.
type RedeemRequest struct {
	Code      string
	Email     string
	FirstName string
	LastName  string
	// Credential is the new password for a new account, or the existing password of the account
	// being linked or signed into.
	Credential *string
	// LinkedAccountEmail names an existing account the invited email should be attached to.
	LinkedAccountEmail *string
	Device             sessiondomain.Device
	Environment        string
}

// Branch names how the redeemer's identity was resolved.
type Branch string

const (
	BranchNewAccount    Branch = "new_account"
	BranchLinked        Branch = "linked_account"
	BranchExisting      Branch = "existing_account"
	BranchAlreadyMember Branch = "already_member"
)

// RedemptionResult is the outcome of a successful redemption. ProvisioningErr reports a downstream
// failure that did not undo the redemption.
type RedemptionResult struct {
	UserID          string
	Branch          Branch
	RoleCreated     bool
	Invitation      *domain.Invitation
	Session         *sessionservice.Issued
	Redirect        string
	ProvisioningErr error
}

// resolution is the identity decided before the use is consumed.
type resolution struct {
	branch Branch
	user   *userdomain.User // nil for a new account
}

// Redeem consumes one use of the invitation and resolves the redeemer's identity.
//
// All preconditions and the identity decision are checked before the use is consumed; the
// consumption itself is one conditional update. If resolving the identity fails afterwards the
// use is released again.
func (m *Manager) Redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error) {
	res, err := m.redeem(ctx, req)
	m.metrics.Redemption(ctx, outcomeFor(err))
	if err != nil {
		m.audit.LogEvent(ctx, "", "", audit.ActionRedemptionFailed, audit.ResourceInvitation, `{"kind":"`+string(errs.KindOf(err))+`"}`)
		m.log.WithField("kind", errs.KindOf(err)).WithError(err).Info("invitation redemption rejected")
	}
	return res, err
}

func (m *Manager) redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error) {
	if m.limiter != nil {
		if ip := req.Device.IP; ip != "" {
			ok, err := m.limiter.Allow(ctx, ip)
			if err != nil {
				m.log.WithError(err).Warn("redemption rate limiter unavailable")
			} else if !ok {
				return nil, errs.New(errs.KindForbidden, "too many redemption attempts")
			}
		}
	}
	if req.Code == "" {
		return nil, errs.New(errs.KindInvalidCode, "invitation code required")
	}
	email, err := userdomain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	codeHash := m.codec.Hash(req.Code)
	now := m.now()

	inv, err := m.repo.GetByCodeHash(ctx, codeHash)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, errs.New(errs.KindInvalidCode, "invitation not found")
	}
	if err := statusError(inv, now); err != nil {
		return nil, err
	}
	if inv.TargetEmail != nil {
		if *inv.TargetEmail != email {
			return nil, errs.New(errs.KindEmailMismatch, "email does not match invitation")
		}
	} else if err := m.domains.Check(ctx, inv.Role, email); err != nil {
		return nil, err
	}

	resolved, err := m.resolve(ctx, inv, email, req)
	if err != nil {
		return nil, err
	}

	consumed, err := m.repo.ConsumeUse(ctx, codeHash, now)
	if err != nil {
		return nil, err
	}
	if consumed == nil {
		return nil, m.classifyLostConsume(ctx, codeHash, now)
	}

	userID, roleCreated, err := m.apply(ctx, consumed, email, resolved, req)
	if err != nil {
		m.release(ctx, consumed.ID)
		return nil, err
	}
	if resolved.branch == BranchAlreadyMember && m.alreadyMember == AlreadyMemberRelease {
		m.release(ctx, consumed.ID)
	}

	issued, err := m.sessions.CreateSession(ctx, userID, req.Device, req.Environment)
	if err != nil {
		return nil, err
	}

	result := &RedemptionResult{
		UserID:      userID,
		Branch:      resolved.branch,
		RoleCreated: roleCreated,
		Invitation:  consumed,
		Session:     issued,
	}
	if !consumed.Scope.IsGlobal() {
		redirect, err := m.provisioner.Provision(ctx, userID, email, consumed.Scope.EntityID)
		if err != nil {
			result.ProvisioningErr = err
			m.log.WithFields(logrus.Fields{"user_id": userID, "org_id": consumed.Scope.EntityID}).
				WithError(err).Warn("downstream provisioning failed")
		}
		result.Redirect = redirect
	}

	scopeID := auditScope(consumed.Scope)
	m.audit.LogEvent(ctx, scopeID, userID, audit.ActionInvitationRedeemed, audit.ResourceInvitation,
		invitationMeta(consumed, map[string]any{"branch": string(resolved.branch), "used_count": consumed.UsedCount}))
	if roleCreated {
		m.audit.LogEvent(ctx, scopeID, userID, audit.ActionRoleGranted, audit.ResourceUser,
			invitationMeta(consumed, nil))
	}
	telemetry.EmitAsync(m.events, m.log, &telemetrydomain.SecurityEvent{
		Type:      telemetrydomain.EventInvitationRedeemed,
		UserID:    userID,
		SessionID: issued.Session.ID,
		FamilyID:  issued.Session.FamilyID,
		ScopeID:   scopeID,
		Outcome:   telemetry.OutcomeOK,
		CreatedAt: now,
	})
	return result, nil
}

// statusError rejects invitations that cannot be redeemed at now, before any write.
func statusError(inv *domain.Invitation, now time.Time) error {
	switch inv.EffectiveStatus(now) {
	case domain.StatusCancelled:
		return errs.New(errs.KindInvalidCode, "invitation cancelled")
	case domain.StatusExpired:
		return errs.New(errs.KindExpired, "invitation expired")
	case domain.StatusExhausted:
		return errs.New(errs.KindExhausted, "invitation exhausted")
	}
	if inv.Exhausted() {
		return errs.New(errs.KindExhausted, "invitation exhausted")
	}
	return nil
}

// classifyLostConsume explains why the conditional increment did not apply.
func (m *Manager) classifyLostConsume(ctx context.Context, codeHash string, now time.Time) error {
	inv, err := m.repo.GetByCodeHash(ctx, codeHash)
	if err != nil {
		return err
	}
	if inv == nil {
		return errs.New(errs.KindInvalidCode, "invitation not found")
	}
	if err := statusError(inv, now); err != nil {
		return err
	}
	return errs.New(errs.KindConflict, "concurrent redemption won the race")
}

// resolve decides which identity branch applies. It only reads, so a rejection here consumes nothing.
func (m *Manager) resolve(ctx context.Context, inv *domain.Invitation, email string, req RedeemRequest) (resolution, error) {
	existing, err := m.directory.FindActiveUserByEmail(ctx, email)
	if err != nil {
		return resolution{}, err
	}
	if existing != nil {
		if err := m.requireCredential(ctx, existing.ID, req.Credential); err != nil {
			return resolution{}, err
		}
		member, err := m.directory.HasRole(ctx, existing.ID, inv.Role, inv.Scope)
		if err != nil {
			return resolution{}, err
		}
		if member {
			return resolution{branch: BranchAlreadyMember, user: existing}, nil
		}
		return resolution{branch: BranchExisting, user: existing}, nil
	}

	if req.LinkedAccountEmail != nil && *req.LinkedAccountEmail != "" {
		linked, err := m.directory.FindActiveUserByEmail(ctx, *req.LinkedAccountEmail)
		if err != nil {
			return resolution{}, err
		}
		if linked != nil {
			if err := m.requireCredential(ctx, linked.ID, req.Credential); err != nil {
				return resolution{}, err
			}
			return resolution{branch: BranchLinked, user: linked}, nil
		}
	}

	if req.Credential != nil {
		if err := userdomain.ValidatePassword(*req.Credential); err != nil {
			return resolution{}, err
		}
	}
	return resolution{branch: BranchNewAccount}, nil
}

// requireCredential proves the redeemer controls an existing account before it is signed in.
func (m *Manager) requireCredential(ctx context.Context, userID string, credential *string) error {
	if credential == nil {
		return errs.New(errs.KindUnauthenticated, "credential required for existing account")
	}
	ok, err := m.directory.VerifyCredential(ctx, userID, *credential)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindUnauthenticated, "invalid credentials")
	}
	return nil
}

// apply performs the identity writes for the resolved branch and grants the role.
func (m *Manager) apply(ctx context.Context, inv *domain.Invitation, email string, r resolution, req RedeemRequest) (string, bool, error) {
	var userID string
	switch r.branch {
	case BranchNewAccount:
		id, err := m.directory.CreateUser(ctx, email, req.FirstName, req.LastName, req.Credential)
		if err != nil {
			return "", false, err
		}
		userID = id
	case BranchLinked:
		if err := m.directory.AttachEmail(ctx, r.user.ID, email); err != nil {
			return "", false, err
		}
		userID = r.user.ID
	default:
		userID = r.user.ID
	}
	created, err := m.directory.GrantRole(ctx, userID, inv.Role, inv.Scope)
	if err != nil {
		return "", false, err
	}
	return userID, created, nil
}

func (m *Manager) release(ctx context.Context, invitationID string) {
	if err := m.repo.ReleaseUse(context.WithoutCancel(ctx), invitationID); err != nil {
		m.log.WithField("invitation_id", invitationID).WithError(err).Error("failed to release invitation use")
	}
}


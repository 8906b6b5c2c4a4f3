// Package domain holds the invitation record and its state rules.
package domain

import (
	"time"

	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
)

// Status is the stored lifecycle state of an invitation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
)

// Unlimited is the MaxUses value of an invitation without a use limit.
const Unlimited = -1

// Invitation is an offer to join with Role in Scope. Only the hash of the code is stored.
type Invitation struct {
	ID          string
	CodeHash    string
	TargetEmail *string // nil for a shareable link
	Role        roledomain.RoleType
	Scope       roledomain.Scope
	MaxUses     int
	UsedCount   int
	Status      Status
	CreatedBy   string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Shareable reports whether the invitation has no fixed target email.
func (i *Invitation) Shareable() bool { return i.TargetEmail == nil }

// Expired reports whether the invitation's expiry has passed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// Exhausted reports whether every use has been consumed.
func (i *Invitation) Exhausted() bool {
	return i.MaxUses != Unlimited && i.UsedCount >= i.MaxUses
}

// EffectiveStatus folds time-based expiry into the stored status.
func (i *Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && i.Expired(now) {
		return StatusExpired
	}
	return i.Status
}

// Validate checks the fields an issuer controls.
func (i *Invitation) Validate() error {
	if !i.Role.Valid() {
		return errs.Wrap(errs.KindValidationFailed, "invalid role", roledomain.ErrUnknownRole)
	}
	if err := i.Scope.Validate(); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "invalid scope", err)
	}
	if i.Role.Class() == roledomain.ClassOrganization && i.Scope.IsGlobal() {
		return errs.New(errs.KindValidationFailed, "organization roles require an organization scope")
	}
	if i.Role.Class() == roledomain.ClassInternal && !i.Scope.IsGlobal() {
		return errs.New(errs.KindValidationFailed, "internal roles require the global scope")
	}
	if i.MaxUses != Unlimited && i.MaxUses < 1 {
		return errs.New(errs.KindValidationFailed, "max uses must be -1 or at least 1")
	}
	if i.TargetEmail != nil && *i.TargetEmail == "" {
		return errs.New(errs.KindValidationFailed, "target email must not be empty")
	}
	return nil
}

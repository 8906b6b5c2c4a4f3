// Package directory is the user directory the session and invitation flows depend on: it creates
// and resolves users, attaches addresses, grants roles and checks local credentials.
package directory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	identitydomain "sso-hub/internal/identity/domain"
	identityrepo "sso-hub/internal/identity/repository"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
	roledomain "sso-hub/internal/role/domain"
	rolerepo "sso-hub/internal/role/repository"
	"sso-hub/internal/security"
	userdomain "sso-hub/internal/user/domain"
	userrepo "sso-hub/internal/user/repository"
)

// Directory implements user lookup and provisioning over the user, identity and role repositories.
type Directory struct {
	users      userrepo.Repository
	identities identityrepo.Repository
	roles      rolerepo.Repository
	hasher     *security.Hasher
	log        *logrus.Logger
	now        func() time.Time
}

// New returns a Directory. log may be nil.
func New(users userrepo.Repository, identities identityrepo.Repository, roles rolerepo.Repository, hasher *security.Hasher, log *logrus.Logger) *Directory {
	return &Directory{users: users, identities: identities, roles: roles, hasher: hasher, log: logging.Default(log), now: time.Now}
}

// CreateUser creates an active user with a local identity and returns its id. When credential is
// non-nil it is checked against the password policy and stored as a hash; a nil credential yields a
// user that cannot sign in with a password yet. If the identity cannot be stored the user row is removed.
func (d *Directory) CreateUser(ctx context.Context, email, firstName, lastName string, credential *string) (string, error) {
	email, err := userdomain.NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	var hash string
	if credential != nil {
		if err := userdomain.ValidatePassword(*credential); err != nil {
			return "", err
		}
		if hash, err = d.hasher.Hash(*credential); err != nil {
			return "", err
		}
	}
	now := d.now().UTC()
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.users.Create(ctx, u); err != nil {
		return "", err
	}
	ident := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       u.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := d.identities.Create(ctx, ident); err != nil {
		if delErr := d.users.Delete(ctx, u.ID); delErr != nil {
			d.log.WithField("user_id", u.ID).WithError(delErr).Error("directory: failed to remove user after identity failure")
		}
		return "", err
	}
	return u.ID, nil
}

// FindActiveUserByEmail resolves a primary or attached address to an active user. Returns nil, nil
// when there is no such user or the user is disabled.
func (d *Directory) FindActiveUserByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	email, err := userdomain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := d.users.GetByEmail(ctx, email)
	if err != nil || !u.Active() {
		return nil, err
	}
	return u, nil
}

// AttachEmail links an additional address to userID.
func (d *Directory) AttachEmail(ctx context.Context, userID, email string) error {
	email, err := userdomain.NormalizeEmail(email)
	if err != nil {
		return err
	}
	return d.users.AttachEmail(ctx, userID, email)
}

// GrantRole records the assignment. It reports whether a new row was created; re-granting an
// existing tuple is not an error.
func (d *Directory) GrantRole(ctx context.Context, userID string, role roledomain.RoleType, scope roledomain.Scope) (bool, error) {
	if !role.Valid() {
		return false, errs.Wrap(errs.KindValidationFailed, "invalid role", roledomain.ErrUnknownRole)
	}
	return d.roles.Grant(ctx, roledomain.RoleAssignment{UserID: userID, Role: role, Scope: scope})
}

// HasRole reports whether userID already holds role in scope.
func (d *Directory) HasRole(ctx context.Context, userID string, role roledomain.RoleType, scope roledomain.Scope) (bool, error) {
	list, err := d.roles.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, a := range list {
		if a.Role == role && a.Scope == scope {
			return true, nil
		}
	}
	return false, nil
}

// VerifyCredential checks raw against the user's local password. Users without a local password
// never verify.
func (d *Directory) VerifyCredential(ctx context.Context, userID, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	ident, err := d.identities.GetByUserAndProvider(ctx, userID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return false, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return d.hasher.VerifyDummy(raw), nil
	}
	return d.hasher.Verify(ident.PasswordHash, raw), nil
}

// RejectCredential spends the same hashing work as VerifyCredential for a caller that has no
// account to check against, and always reports false.
func (d *Directory) RejectCredential(raw string) bool {
	return d.hasher.VerifyDummy(raw)
}

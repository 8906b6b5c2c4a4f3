package rbac

import (
	"context"

	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
	"sso-hub/internal/server/interceptors"
)

// AssignmentLister returns a user's role assignments. Used by RequireRole to resolve the caller's roles.
type AssignmentLister interface {
	ListByUser(ctx context.Context, userID string) ([]roledomain.RoleAssignment, error)
}

// Principal is the authenticated caller with its resolved role assignments.
type Principal struct {
	UserID      string
	SessionID   string
	Assignments []roledomain.RoleAssignment
}

// RequireRole ensures the caller is authenticated and holds one of required in scope (nil scope: any scope).
// Returns the principal on success; an errs Unauthenticated or Forbidden error on failure.
func RequireRole(ctx context.Context, lister AssignmentLister, required roledomain.RoleSet, scope *roledomain.Scope) (*Principal, error) {
	p, err := ResolvePrincipal(ctx, lister)
	if err != nil {
		return nil, err
	}
	if err := NewAuthorizer().Authorize(p.Assignments, required, scope); err != nil {
		return nil, err
	}
	return p, nil
}

// RequireOrgAdmin ensures the caller administers orgID (client_admin there, or global super_admin).
func RequireOrgAdmin(ctx context.Context, lister AssignmentLister, orgID string) (*Principal, error) {
	scope := roledomain.Organization(orgID)
	return RequireRole(ctx, lister, roledomain.NewRoleSet(roledomain.RoleClientAdmin), &scope)
}

// ResolvePrincipal reads the caller identity set by the auth interceptor and loads its assignments.
func ResolvePrincipal(ctx context.Context, lister AssignmentLister) (*Principal, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, errs.New(errs.KindUnauthenticated, "user context required")
	}
	sessionID, _ := interceptors.GetSessionID(ctx)
	assignments, err := lister.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, SessionID: sessionID, Assignments: assignments}, nil
}

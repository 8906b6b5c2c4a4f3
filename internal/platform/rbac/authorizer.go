// Package rbac evaluates role assignments against required roles and scopes.
package rbac

import (
	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
)

// Authorizer decides whether a principal's role assignments satisfy a requirement.
// It holds no state; role names are already normalized into roledomain.RoleType.
type Authorizer struct{}

// NewAuthorizer returns an Authorizer.
func NewAuthorizer() Authorizer { return Authorizer{} }

// IsAuthorized reports whether at least one assignment has a role in required and, when scope is
// non-nil, matches it. Only global assignments count for a global requirement; only assignments
// scoped to that exact organization count for an organization requirement, except that a global
// super_admin satisfies every organization-scoped check.
func (Authorizer) IsAuthorized(assignments []roledomain.RoleAssignment, required roledomain.RoleSet, scope *roledomain.Scope) bool {
	for _, a := range assignments {
		if satisfies(a, required, scope) {
			return true
		}
	}
	return false
}

// Authorize is IsAuthorized with the failure classified: Unauthenticated when the principal holds
// no assignments at all, Forbidden when the assignments are insufficient.
func (z Authorizer) Authorize(assignments []roledomain.RoleAssignment, required roledomain.RoleSet, scope *roledomain.Scope) error {
	if len(assignments) == 0 {
		return errs.New(errs.KindUnauthenticated, "no role assignments")
	}
	if !z.IsAuthorized(assignments, required, scope) {
		return errs.New(errs.KindForbidden, "insufficient role or scope")
	}
	return nil
}

func satisfies(a roledomain.RoleAssignment, required roledomain.RoleSet, scope *roledomain.Scope) bool {
	if scope == nil {
		return required.Has(a.Role)
	}
	if scope.Kind == roledomain.ScopeOrganization && a.Role == roledomain.RoleSuperAdmin && a.Scope.IsGlobal() {
		return true
	}
	return required.Has(a.Role) && a.Scope == *scope
}

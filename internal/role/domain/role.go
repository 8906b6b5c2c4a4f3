// Package domain holds role types, scopes and role assignments.
package domain

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// RoleType is the closed set of grantable roles.
type RoleType string

const (
	RoleSuperAdmin     RoleType = "super_admin"
	RoleInternalAdmin  RoleType = "internal_admin"
	RoleInternalStaff  RoleType = "internal_staff"
	RoleClientAdmin    RoleType = "client_admin"
	RoleClientHR       RoleType = "client_hr"
	RoleClientEmployee RoleType = "client_employee"
)

// ErrUnknownRole is returned by ParseRoleType for names outside the enumeration.
var ErrUnknownRole = errors.New("unknown role type")

var allRoles = []RoleType{
	RoleSuperAdmin, RoleInternalAdmin, RoleInternalStaff,
	RoleClientAdmin, RoleClientHR, RoleClientEmployee,
}

// RoleClass groups roles by the population that may hold them.
type RoleClass string

const (
	// ClassInternal roles are held by platform staff.
	ClassInternal RoleClass = "internal"
	// ClassOrganization roles are held by members of client organizations.
	ClassOrganization RoleClass = "organization"
)

var folder = cases.Fold()

// ParseRoleType normalizes name (surrounding whitespace, case, "-" or " " separators) and maps it
// onto the enumeration. Normalization happens here, at the boundary, and nowhere else.
func ParseRoleType(name string) (RoleType, error) {
	n := folder.String(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	for _, r := range allRoles {
		if string(r) == n {
			return r, nil
		}
	}
	return "", ErrUnknownRole
}

// Valid reports whether r is part of the enumeration.
func (r RoleType) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Class returns the role's class.
func (r RoleType) Class() RoleClass {
	switch r {
	case RoleSuperAdmin, RoleInternalAdmin, RoleInternalStaff:
		return ClassInternal
	default:
		return ClassOrganization
	}
}

// RoleSet is a set of role types used as an authorization requirement.
type RoleSet map[RoleType]struct{}

// NewRoleSet returns a set holding roles.
func NewRoleSet(roles ...RoleType) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// ParseRoleSet normalizes names into a RoleSet. Unknown names are an error.
func ParseRoleSet(names ...string) (RoleSet, error) {
	s := make(RoleSet, len(names))
	for _, n := range names {
		r, err := ParseRoleType(n)
		if err != nil {
			return nil, err
		}
		s[r] = struct{}{}
	}
	return s, nil
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r RoleType) bool {
	_, ok := s[r]
	return ok
}

// ScopeKind distinguishes platform-wide from tenant-scoped grants.
type ScopeKind string

const (
	ScopeGlobal       ScopeKind = "global"
	ScopeOrganization ScopeKind = "organization"
)

// Scope is either Global or Organization(id). The zero value is invalid.
type Scope struct {
	Kind     ScopeKind
	EntityID string // organization id; empty for global
}

// Global returns the platform-wide scope.
func Global() Scope { return Scope{Kind: ScopeGlobal} }

// Organization returns the scope of one organization.
func Organization(id string) Scope { return Scope{Kind: ScopeOrganization, EntityID: id} }

// ParseScope builds a Scope from its stored columns.
func ParseScope(kind, entityID string) (Scope, error) {
	s := Scope{Kind: ScopeKind(strings.ToLower(strings.TrimSpace(kind))), EntityID: strings.TrimSpace(entityID)}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Validate checks that global scopes carry no entity and organization scopes carry one.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.EntityID != "" {
			return errors.New("global scope must not carry an entity id")
		}
	case ScopeOrganization:
		if s.EntityID == "" {
			return errors.New("organization scope requires an organization id")
		}
	default:
		return errors.New("unknown scope kind")
	}
	return nil
}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool { return s.Kind == ScopeGlobal }

func (s Scope) String() string {
	if s.IsGlobal() {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + s.EntityID
}

// RoleAssignment is one (user, role, scope) grant.
type RoleAssignment struct {
	UserID string
	Role   RoleType
	Scope  Scope
}

// Key identifies the assignment tuple that must be unique per user.
func (a RoleAssignment) Key() string {
	return a.UserID + "|" + string(a.Role) + "|" + a.Scope.String()
}

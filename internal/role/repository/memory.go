package repository

import (
	"context"
	"sync"

	"sso-hub/internal/platform/errs"
	"sso-hub/internal/role/domain"
)

// MemoryRepository stores role assignments in process memory. Safe for concurrent use.
type MemoryRepository struct {
	mu     sync.Mutex
	byKey  map[string]domain.RoleAssignment
	byUser map[string][]string
}

// NewMemoryRepository returns an empty in-memory role assignment repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byKey: map[string]domain.RoleAssignment{}, byUser: map[string][]string{}}
}

func (r *MemoryRepository) Grant(ctx context.Context, a domain.RoleAssignment) (bool, error) {
	if err := a.Scope.Validate(); err != nil {
		return false, errs.Wrap(errs.KindValidationFailed, "invalid scope", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grantLocked(a), nil
}

func (r *MemoryRepository) grantLocked(a domain.RoleAssignment) bool {
	k := a.Key()
	if _, ok := r.byKey[k]; ok {
		return false
	}
	r.byKey[k] = a
	r.byUser[a.UserID] = append(r.byUser[a.UserID], k)
	return true
}

func (r *MemoryRepository) Revoke(ctx context.Context, a domain.RoleAssignment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(a), nil
}

func (r *MemoryRepository) revokeLocked(a domain.RoleAssignment) bool {
	k := a.Key()
	if _, ok := r.byKey[k]; !ok {
		return false
	}
	delete(r.byKey, k)
	keys := r.byUser[a.UserID]
	for i, existing := range keys {
		if existing == k {
			r.byUser[a.UserID] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	return true
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.byUser[userID]
	out := make([]domain.RoleAssignment, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.byKey[k])
	}
	return out, nil
}

func (r *MemoryRepository) MigrateScope(ctx context.Context, userID string, role domain.RoleType, from, to domain.Scope) error {
	if err := to.Validate(); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "invalid target scope", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.revokeLocked(domain.RoleAssignment{UserID: userID, Role: role, Scope: from}) {
		return errs.New(errs.KindNotFound, "role assignment not found")
	}
	r.grantLocked(domain.RoleAssignment{UserID: userID, Role: role, Scope: to})
	return nil
}

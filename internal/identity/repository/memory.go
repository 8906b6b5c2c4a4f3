package repository

import (
	"context"
	"sync"

	"sso-hub/internal/identity/domain"
	"sso-hub/internal/platform/errs"
)

// MemoryRepository stores identities in process memory. Safe for concurrent use.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Identity
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*domain.Identity{}}
}

func (r *MemoryRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.byID {
		if i.UserID == userID && i.Provider == provider {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.UserID == i.UserID && existing.Provider == i.Provider {
			return errs.New(errs.KindConflict, "identity already exists")
		}
	}
	cp := *i
	r.byID[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return errs.New(errs.KindNotFound, "identity not found")
	}
	i.PasswordHash = passwordHash
	return nil
}

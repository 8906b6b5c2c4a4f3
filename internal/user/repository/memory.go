package repository

import (
	"context"
	"sync"

	"sso-hub/internal/platform/errs"
	"sso-hub/internal/user/domain"
)

// MemoryRepository stores users in process memory. Safe for concurrent use.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	emailIdx map[string]string // normalized email (primary or attached) -> user id
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: map[string]*domain.User{}, emailIdx: map[string]string{}}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.emailIdx[email]
	if !ok {
		return nil, nil
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.emailIdx[u.Email]; taken {
		return errs.New(errs.KindConflict, "email already registered")
	}
	if _, taken := r.users[u.ID]; taken {
		return errs.New(errs.KindConflict, "user id already exists")
	}
	cp := *u
	r.users[u.ID] = &cp
	r.emailIdx[u.Email] = u.ID
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	for email, owner := range r.emailIdx {
		if owner == id {
			delete(r.emailIdx, email)
		}
	}
	return nil
}

func (r *MemoryRepository) AttachEmail(ctx context.Context, userID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return errs.New(errs.KindNotFound, "user not found")
	}
	if owner, ok := r.emailIdx[email]; ok {
		if owner == userID {
			return nil
		}
		return errs.New(errs.KindConflict, "email belongs to another account")
	}
	r.emailIdx[email] = userID
	return nil
}

func (r *MemoryRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errs.New(errs.KindNotFound, "user not found")
	}
	u.Status = status
	return nil
}

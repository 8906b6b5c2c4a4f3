package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sso-hub/internal/invitation/domain"
	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
)

// MemoryRepository is an in-process Repository. The mutex makes each method atomic, which stands in
// for the conditional updates of the Postgres implementation.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]*domain.Invitation
	byCode map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Invitation), byCode: make(map[string]string)}
}

func clone(inv *domain.Invitation) *domain.Invitation {
	c := *inv
	if inv.TargetEmail != nil {
		e := *inv.TargetEmail
		c.TargetEmail = &e
	}
	if inv.ExpiresAt != nil {
		t := *inv.ExpiresAt
		c.ExpiresAt = &t
	}
	if inv.CancelledAt != nil {
		t := *inv.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, inv *domain.Invitation, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCode[inv.CodeHash]; dup {
		return errs.New(errs.KindConflict, "invitation code collision")
	}
	if inv.TargetEmail != nil {
		for _, existing := range r.byID {
			if existing.Status != domain.StatusPending || existing.TargetEmail == nil ||
				*existing.TargetEmail != *inv.TargetEmail || existing.Scope != inv.Scope {
				continue
			}
			switch {
			case force:
				at := inv.CreatedAt
				existing.Status = domain.StatusCancelled
				existing.CancelledAt = &at
			case existing.Expired(inv.CreatedAt):
				existing.Status = domain.StatusExpired
			default:
				return errs.New(errs.KindConflict, "a pending invitation already exists for this target")
			}
		}
	}
	r.byID[inv.ID] = clone(inv)
	r.byCode[inv.CodeHash] = inv.ID
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.byID[id]; ok {
		return clone(inv), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByCodeHash(ctx context.Context, codeHash string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byCode[codeHash]; ok {
		return clone(r.byID[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) ConsumeUse(ctx context.Context, codeHash string, now time.Time) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[codeHash]
	if !ok {
		return nil, nil
	}
	inv := r.byID[id]
	if inv.Status != domain.StatusPending || inv.Expired(now) || inv.Exhausted() {
		return nil, nil
	}
	inv.UsedCount++
	if inv.Exhausted() {
		inv.Status = domain.StatusExhausted
	}
	return clone(inv), nil
}

func (r *MemoryRepository) ReleaseUse(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok || inv.UsedCount == 0 {
		return nil
	}
	inv.UsedCount--
	if inv.Status == domain.StatusExhausted {
		inv.Status = domain.StatusPending
	}
	return nil
}

func (r *MemoryRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok || inv.Status != domain.StatusPending {
		return false, nil
	}
	inv.Status = domain.StatusCancelled
	inv.CancelledAt = &at
	return true, nil
}

func (r *MemoryRepository) ListPendingByScope(ctx context.Context, scope roledomain.Scope, now time.Time) ([]*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invitation
	for _, inv := range r.byID {
		if inv.Scope == scope && inv.Status == domain.StatusPending && !inv.Expired(now) {
			out = append(out, clone(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

package repository

import (
	"context"
	"sort"
	"sync"

	"sso-hub/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRepository) ListByScope(ctx context.Context, scopeID string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.AuditLog
	for _, e := range r.entries {
		if e.ScopeID == scopeID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Actions returns the recorded actions in insertion order.
func (r *MemoryRepository) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

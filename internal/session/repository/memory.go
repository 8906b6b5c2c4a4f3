package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sso-hub/internal/platform/errs"
	"sso-hub/internal/session/domain"
)

// MemoryRepository stores sessions in process memory. One mutex guards every operation, so each
// conditional update is atomic in the same way the Postgres statements are. Safe for concurrent use.
type MemoryRepository struct {
	mu         sync.Mutex
	sessions   map[string]*domain.Session
	byHash     map[string]string // current refresh hash -> session id
	superseded map[string]domain.SupersededHash
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:   map[string]*domain.Session{},
		byHash:     map[string]string{},
		superseded: map[string]domain.SupersededHash{},
	}
}

func clone(s *domain.Session) *domain.Session {
	cp := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return errs.New(errs.KindConflict, "session already exists")
	}
	if _, ok := r.byHash[s.RefreshTokenHash]; ok {
		return errs.New(errs.KindConflict, "refresh hash already in use")
	}
	r.sessions[s.ID] = clone(s)
	r.byHash[s.RefreshTokenHash] = s.ID
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return clone(s), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byHash[hash]; ok {
		return clone(r.sessions[id]), nil
	}
	return nil, nil
}

func (r *MemoryRepository) RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string, now, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.RefreshTokenHash != oldHash || s.Revoked() {
		return false, nil
	}
	delete(r.byHash, oldHash)
	s.RefreshTokenHash = newHash
	s.LastActivityAt = now
	s.ExpiresAt = expiresAt
	r.byHash[newHash] = sessionID
	r.superseded[oldHash] = domain.SupersededHash{Hash: oldHash, SessionID: sessionID, FamilyID: s.FamilyID, SupersededAt: now}
	return true, nil
}

func (r *MemoryRepository) FindSuperseded(ctx context.Context, hash string) (*domain.SupersededHash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.superseded[hash]; ok {
		return &h, nil
	}
	return nil, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id string, reason domain.RevokeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		revokeLocked(s, reason, at)
	}
	return nil
}

func revokeLocked(s *domain.Session, reason domain.RevokeReason, at time.Time) bool {
	if s.Revoked() {
		return false
	}
	t := at
	s.RevokedAt = &t
	s.RevokeReason = reason
	return true
}

func (r *MemoryRepository) revokeWhere(match func(*domain.Session) bool, reason domain.RevokeReason, at time.Time) int64 {
	var n int64
	for _, s := range r.sessions {
		if match(s) && revokeLocked(s, reason, at) {
			n++
		}
	}
	return n
}

func (r *MemoryRepository) RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeWhere(func(s *domain.Session) bool { return s.FamilyID == familyID }, reason, at), nil
}

func (r *MemoryRepository) RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeWhere(func(s *domain.Session) bool { return s.UserID == userID }, reason, at), nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Revoked() {
		return false, nil
	}
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return true, nil
}

func (r *MemoryRepository) RevokeIdle(ctx context.Context, idleBefore, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeWhere(func(s *domain.Session) bool {
		return s.LastActivityAt.Before(idleBefore) && s.ExpiresAt.After(at)
	}, domain.ReasonIdleTimeout, at), nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(r.sessions, id)
			delete(r.byHash, s.RefreshTokenHash)
			n++
		}
	}
	for hash, h := range r.superseded {
		if _, alive := r.sessions[h.SessionID]; !alive || h.SupersededAt.Before(cutoff) {
			delete(r.superseded, hash)
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && !s.Revoked() && s.ExpiresAt.After(now) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

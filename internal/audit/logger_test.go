package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"sso-hub/internal/audit/domain"
	"sso-hub/internal/platform/logging"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByScope(ctx context.Context, scopeID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "192.168.1.1" }, logging.Discard())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	logger.LogEvent(context.Background(), "org-1", "user-1", ActionInvitationIssued, ResourceInvitation, `{"role":"client_hr"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ScopeID != "org-1" {
		t.Errorf("scope_id = %q, want %q", entry.ScopeID, "org-1")
	}
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user-1")
	}
	if entry.Action != ActionInvitationIssued || entry.Resource != ResourceInvitation {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", entry.CreatedAt, fixed)
	}
}

func TestLogger_LogEvent_EmptyScopeUsesSentinel(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil, logging.Discard())

	logger.LogEvent(context.Background(), "", "", ActionLoginFailure, ResourceUser, "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].ScopeID != SentinelScopeID {
		t.Errorf("scope_id = %q, want %q", repo.entries[0].ScopeID, SentinelScopeID)
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_RepoErrorIsSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil, logging.Discard())

	logger.LogEvent(context.Background(), "org-1", "user-1", ActionSessionCreated, ResourceSession, "")

	if len(repo.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(repo.entries))
	}
}

func TestLogger_NilRepoIsNoop(t *testing.T) {
	logger := NewLogger(nil, nil, nil)
	logger.LogEvent(context.Background(), "org-1", "user-1", ActionSessionCreated, ResourceSession, "")

	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "org-1", "user-1", ActionSessionCreated, ResourceSession, "")
}

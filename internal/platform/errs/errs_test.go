package errs

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIs_MatchesKindAndParent(t *testing.T) {
	err := New(KindEmailMismatch, "email b@x.com does not match")
	if !errors.Is(err, ErrEmailMismatch) {
		t.Error("EmailMismatch should match its own sentinel")
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Error("EmailMismatch should match ValidationFailed")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("EmailMismatch should not match NotFound")
	}
}

func TestIs_ThroughWrapChain(t *testing.T) {
	reuse := New(KindReuseDetected, "refresh token reused")
	err := Wrap(KindNotFound, "refresh token not current", reuse)
	wrapped := fmt.Errorf("rotate: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("want NotFound")
	}
	if !errors.Is(wrapped, ErrReuseDetected) {
		t.Error("want ReuseDetected via cause")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindNotFound)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errors.New("io timeout")) != "" {
		t.Error("plain error should be unclassified")
	}
	if IsClassified(errors.New("x")) {
		t.Error("IsClassified(plain) should be false")
	}
}

func TestGRPCStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want codes.Code
	}{
		{KindUnauthenticated, codes.Unauthenticated},
		{KindReuseDetected, codes.Unauthenticated},
		{KindForbidden, codes.PermissionDenied},
		{KindInvalidCode, codes.NotFound},
		{KindExpired, codes.FailedPrecondition},
		{KindExhausted, codes.FailedPrecondition},
		{KindConflict, codes.Aborted},
		{KindDomainMismatch, codes.InvalidArgument},
	}
	for _, tt := range tests {
		if got := status.Code(New(tt.kind, "x")); got != tt.want {
			t.Errorf("%s: code = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestPublic_CollapsesAuthFailures(t *testing.T) {
	a := Public(New(KindNotFound, "unknown refresh token"))
	b := Public(New(KindUnauthenticated, "wrong password"))
	if status.Convert(a).Message() != status.Convert(b).Message() {
		t.Errorf("auth failures should share a message: %q vs %q", status.Convert(a).Message(), status.Convert(b).Message())
	}
	if status.Code(a) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(a))
	}
}

func TestPublic_Internal(t *testing.T) {
	err := Public(errors.New("pq: connection refused"))
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}
	if status.Convert(err).Message() != "internal error" {
		t.Errorf("message leaked: %q", status.Convert(err).Message())
	}
	if Public(nil) != nil {
		t.Error("Public(nil) should be nil")
	}
}

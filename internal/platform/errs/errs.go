// Package errs defines the error taxonomy shared by the session, invitation and role packages.
package errs

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a machine-readable failure class.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindNotFound         Kind = "NOT_FOUND"
	KindExpired          Kind = "EXPIRED"
	KindExhausted        Kind = "EXHAUSTED"
	KindReuseDetected    Kind = "REUSE_DETECTED"
	KindConflict         Kind = "CONFLICT"
	KindValidationFailed Kind = "VALIDATION_FAILED"

	// Redemption refinements. Each one also matches its parent kind.
	KindInvalidCode    Kind = "INVALID_CODE"
	KindEmailMismatch  Kind = "EMAIL_MISMATCH"
	KindDomainMismatch Kind = "DOMAIN_MISMATCH"
)

// Parent returns the broader kind k refines, or k itself.
func (k Kind) Parent() Kind {
	switch k {
	case KindInvalidCode:
		return KindNotFound
	case KindEmailMismatch, KindDomainMismatch:
		return KindValidationFailed
	default:
		return k
	}
}

// GRPCCode maps the kind to a gRPC status code.
func (k Kind) GRPCCode() codes.Code {
	switch k.Parent() {
	case KindUnauthenticated, KindReuseDetected:
		return codes.Unauthenticated
	case KindForbidden:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindExpired, KindExhausted:
		return codes.FailedPrecondition
	case KindConflict:
		return codes.Aborted
	case KindValidationFailed:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// Error is a classified failure. Message is for logs and audit; it is not shown to end users as-is.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind, or with the parent kind of e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind || e.Kind.Parent() == t.Kind
}

// GRPCStatus lets status.FromError and status.Code understand *Error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.GRPCCode(), e.Error())
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrExhausted        = &Error{Kind: KindExhausted}
	ErrReuseDetected    = &Error{Kind: KindReuseDetected}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrInvalidCode      = &Error{Kind: KindInvalidCode}
	ErrEmailMismatch    = &Error{Kind: KindEmailMismatch}
	ErrDomainMismatch   = &Error{Kind: KindDomainMismatch}
)

// New returns an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsClassified reports whether err carries a taxonomy kind. Unclassified errors are store or
// transport failures that the calling layer may retry.
func IsClassified(err error) bool {
	return KindOf(err) != ""
}

// authKinds are collapsed into one message at the wire boundary.
var authKinds = map[Kind]bool{
	KindUnauthenticated: true,
	KindReuseDetected:   true,
	KindNotFound:        true,
	KindExpired:         true,
	KindInvalidCode:     true,
}

// Public converts err into the gRPC error returned to clients. Authentication failures share one
// message so callers cannot tell an unknown account, a wrong password or a stale token apart.
// Unclassified errors become codes.Internal without detail.
func Public(err error) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	switch {
	case kind == "":
		return status.Error(codes.Internal, "internal error")
	case authKinds[kind]:
		return status.Error(codes.Unauthenticated, "authentication failed")
	default:
		return status.Error(kind.GRPCCode(), publicMessage(kind))
	}
}

func publicMessage(kind Kind) string {
	switch kind {
	case KindForbidden:
		return "permission denied"
	case KindExhausted:
		return "invitation is no longer available"
	case KindConflict:
		return "request conflicted with a concurrent change; retry"
	case KindEmailMismatch:
		return "email does not match the invitation"
	case KindDomainMismatch:
		return "email domain is not allowed for this role"
	default:
		return "invalid request"
	}
}

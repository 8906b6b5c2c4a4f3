package interceptors

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sso-hub/internal/platform/errs"
	"sso-hub/internal/platform/logging"
)

func TestErrorsUnary(t *testing.T) {
	reuse := errs.Wrap(errs.KindNotFound, "refresh token not found", errs.New(errs.KindReuseDetected, "refresh token reused"))
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"nil", nil, codes.OK, ""},
		{"reuse collapses", reuse, codes.Unauthenticated, "authentication failed"},
		{"expired collapses", errs.New(errs.KindExpired, "session expired"), codes.Unauthenticated, "authentication failed"},
		{"forbidden stays", errs.New(errs.KindForbidden, "issuer lacks role"), codes.PermissionDenied, ""},
		{"status passes through", status.Error(codes.InvalidArgument, "bad"), codes.InvalidArgument, "bad"},
		{"plain error is internal", errors.New("pq: connection refused"), codes.Internal, "internal error"},
	}
	interceptor := ErrorsUnary(logging.Discard())
	info := &grpc.UnaryServerInfo{FullMethod: "/sso.session.v1.SessionService/RefreshToken"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, tt.err }
			_, err := interceptor(context.Background(), "req", info, handler)
			if status.Code(err) != tt.code {
				t.Errorf("code = %v, want %v", status.Code(err), tt.code)
			}
			if tt.message != "" {
				if st, _ := status.FromError(err); st.Message() != tt.message {
					t.Errorf("message = %q, want %q", st.Message(), tt.message)
				}
			}
		})
	}
}

package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"sso-hub/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator validates access tokens. Implemented by *security.TokenProvider.
type AccessValidator interface {
	ValidateAccess(token string) (*security.AccessToken, error)
}

// SessionToucher confirms the session behind an access token is still live and records activity.
// Implemented by the session manager; any error denies the call.
type SessionToucher interface {
	Touch(ctx context.Context, sessionID string) error
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata, checks the session is neither revoked nor expired, and sets user_id,
// session_id and environment in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token.
// sessions may be nil, in which case only the token itself is checked.
func AuthUnary(tokens AccessValidator, sessions SessionToucher, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		public := publicMethods[info.FullMethod]
		token := extractBearer(ctx)
		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		access, err := tokens.ValidateAccess(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		if sessions != nil {
			if err := sessions.Touch(ctx, access.SessionID); err != nil {
				if public {
					return handler(ctx, req)
				}
				return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
			}
		}

		ctx = WithIdentity(ctx, access.UserID, access.SessionID, access.Environment)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

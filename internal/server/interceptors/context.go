package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey      = contextKey{"user_id"}
	sessionIDKey   = contextKey{"session_id"}
	environmentKey = contextKey{"environment"}
)

// WithIdentity returns a context with user_id, session_id, and environment set.
// Handlers and services read these via GetUserID, GetSessionID, GetEnvironment.
func WithIdentity(ctx context.Context, userID, sessionID, environment string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, environmentKey, environment)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetEnvironment returns the environment tag of the caller's session, if set.
func GetEnvironment(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(environmentKey).(string)
	return v, ok
}

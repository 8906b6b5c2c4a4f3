package interceptors

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs every RPC with its method, code and duration.
// Internal and Unknown codes are logged at error level, other failures at info, successes at debug.
func LoggingUnary(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		entry := log.WithFields(logrus.Fields{
			"method":      info.FullMethod,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   ClientIP(ctx),
		})
		if userID, ok := GetUserID(ctx); ok {
			entry = entry.WithField("user_id", userID)
		}
		switch code {
		case codes.OK:
			entry.Debug("rpc")
		case codes.Internal, codes.Unknown, codes.DataLoss:
			entry.WithError(err).Error("rpc failed")
		default:
			entry.Info("rpc rejected")
		}
		return resp, err
	}
}

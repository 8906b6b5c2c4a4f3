package interceptors

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sso-hub/internal/platform/errs"
)

// ErrorsUnary returns a unary server interceptor that converts classified domain errors into their
// public gRPC status, so authentication failures leave the process as one uniform Unauthenticated.
// The internal kind is logged before it is collapsed. Errors that already carry a gRPC status pass
// through; anything else becomes Internal.
func ErrorsUnary(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errs.IsClassified(err) {
			log.WithFields(logrus.Fields{"method": info.FullMethod, "kind": string(errs.KindOf(err))}).
				WithError(err).Debug("rpc error classified")
			return resp, errs.Public(err)
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		log.WithField("method", info.FullMethod).WithError(err).Error("unclassified rpc error")
		return resp, status.Error(codes.Internal, "internal error")
	}
}

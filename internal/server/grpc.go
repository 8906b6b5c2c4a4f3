// Package server builds the gRPC server: interceptor chain, health service and tracing.
package server

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"sso-hub/internal/audit"
	"sso-hub/internal/server/interceptors"
)

// Deps holds the collaborators the interceptor chain needs.
type Deps struct {
	// Tokens validates Bearer access tokens. Required.
	Tokens interceptors.AccessValidator
	// Sessions rejects access tokens whose session has ended. If nil, only the token is checked.
	Sessions interceptors.SessionToucher
	// Audit records every RPC. If nil, RPCs are not audited.
	Audit audit.AuditLogger
	// PublicMethods are full method names callable without a Bearer token.
	PublicMethods map[string]bool
	// Reflection registers the gRPC reflection service (development only).
	Reflection bool
	Log        *logrus.Logger
}

// DefaultPublicMethods are reachable without an access token.
var DefaultPublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// New returns a gRPC server with the standard health service registered and the returned
// health.Server for readiness updates. Interceptors run as errors, logging, auth, audit.
func New(deps Deps) (*grpc.Server, *health.Server) {
	public := deps.PublicMethods
	if public == nil {
		public = DefaultPublicMethods
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.ErrorsUnary(deps.Log),
		interceptors.LoggingUnary(deps.Log),
		interceptors.AuthUnary(deps.Tokens, deps.Sessions, public),
	}
	if deps.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Audit, public))
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if deps.Reflection {
		reflection.Register(s)
	}
	return s, hs
}

package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"sso-hub/internal/platform/logging"
	"sso-hub/internal/security"
)

func TestNew_HealthIsPublic(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	s, hs := New(Deps{Tokens: tokens, Log: logging.Discard()})
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check without token: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestNew_ServicesRegistered(t *testing.T) {
	tokens, _ := security.NewTestTokenProvider()
	s, _ := New(Deps{Tokens: tokens, Log: logging.Discard(), Reflection: true})
	info := s.GetServiceInfo()
	if _, ok := info[healthpb.Health_ServiceDesc.ServiceName]; !ok {
		t.Errorf("health service not registered: %v", info)
	}
	if len(info) < 2 {
		t.Errorf("reflection not registered: %v", info)
	}
}

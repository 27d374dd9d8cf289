// Package grpcapi serves gRPC health checking and reflection so that
// orchestrators and grpcurl can probe the runtime.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"fish-assistant/internal/observability"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

// ServiceName is the health service name reported alongside the overall
// ("") status.
const ServiceName = "fish.assistant.Pipeline"

// Server wraps a grpc.Server with a health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// New creates a server with metrics and logging interceptors. Both statuses
// start as NOT_SERVING until SetServing(true).
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	// Enable gRPC reflection for debugging tools like grpcurl.
	reflection.Register(g)

	s := &Server{grpc: g, health: hs, logger: logging.WithComponent("grpc")}
	s.SetServing(false)
	return s
}

// SetServing flips both health statuses.
func (s *Server) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.SetServing(false)
	s.grpc.GracefulStop()
}

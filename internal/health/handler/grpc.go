package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service name answered besides the empty (whole server) name.
const ServiceName = "consent.v1.ConsentService"

// Server implements grpc.health.v1.Health for Kubernetes, load balancers and CI.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
	logger  *zap.Logger
}

// NewServer returns a health server backed by checker. logger may be nil.
func NewServer(checker *Checker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{checker: checker, logger: logger}
}

// Check reports SERVING when the database and policy engine are ready and NOT_SERVING
// otherwise. Dependency failures are a status, not an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.checker != nil {
		if err := s.checker.Ready(ctx); err != nil {
			s.logger.Warn("health: not serving", zap.Error(err))
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Health is the readiness service driven by health/handler.Checker. If nil, a server that always reports
	// SERVING is registered.
	Health *health.Server
}

// NewGRPCServer returns a gRPC server instrumented with the otelgrpc stats handler and with deps registered.
// opts are appended after the stats handler.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with the given server.
//
//   - grpc.health.v1.Health → internal/health/handler (readiness: document store ping, policy compile)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}

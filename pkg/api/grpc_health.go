package api

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer wraps the standard grpc_health_v1 health service so
// schedulers and orchestrators that expect a gRPC health check (rather
// than HTTP) can probe the daemon without a custom wire protocol.
type GRPCHealthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewGRPCHealthServer constructs a gRPC server exposing only the
// standard health service, serving NOT_SERVING for the empty service
// name until SetServing is called.
func NewGRPCHealthServer() *GRPCHealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealthServer{grpc: srv, health: hs}
}

// SetServing flips the empty-service health status to SERVING, called
// once the supervisor's boot sequence completes.
func (g *GRPCHealthServer) SetServing() {
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// SetNotServing flips the empty-service health status back to
// NOT_SERVING, called on shutdown.
func (g *GRPCHealthServer) SetNotServing() {
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// Start listens on addr and serves until the listener fails or Stop is
// called.
func (g *GRPCHealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for grpc health service: %w", err)
	}
	return g.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCHealthServer) Stop() {
	g.grpc.GracefulStop()
}

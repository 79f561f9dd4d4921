package api

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/calladmin/calladmin-client/internal/config"
)

// Server wraps the gRPC control server and its lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
	health     *HealthReporter
}

// NewServer binds the configured address and registers service, health and reflection.
// A nil reporter gets a fresh one.
func NewServer(cfg config.ServerConfig, service CallAdminServer, reporter *HealthReporter, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return newServer(cfg, lis, service, reporter, opts...), nil
}

func newServer(cfg config.ServerConfig, lis net.Listener, service CallAdminServer, reporter *HealthReporter, opts ...grpc.ServerOption) *Server {
	if reporter == nil {
		reporter = NewHealthReporter()
	}
	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterCallAdminServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthpb.RegisterHealthServer(grpcServer, reporter.srv)

	reflection.Register(grpcServer)

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		listener:   lis,
		health:     reporter,
	}
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop when ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.srv.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

// Health returns the reporter backing the health service.
func (s *Server) Health() *HealthReporter {
	return s.health
}

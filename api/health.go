package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// ServiceName is the gRPC health service name reported for the engine.
const ServiceName = "hieraledger.Engine"

// ServerConfig holds configuration for the gRPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":50051")
	Address string

	// MaxRecvMsgSize is the maximum message size in bytes
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes
	MaxSendMsgSize int
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        ":50051",
		MaxRecvMsgSize: 4 * 1024 * 1024, // 4MB
		MaxSendMsgSize: 4 * 1024 * 1024, // 4MB
	}
}

// HealthServer serves grpc.health.v1.Health for a worker pool: SERVING while
// the pool accepts work, NOT_SERVING once it has joined.
type HealthServer struct {
	config     *ServerConfig
	health     *health.Server
	grpcServer *grpc.Server
	logger     *zap.Logger

	running bool
	mu      sync.Mutex
}

// NewHealthServer creates a health server. The initial status is NOT_SERVING
// until Watch sees the pool running.
func NewHealthServer(config *ServerConfig, logger *zap.Logger) *HealthServer {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(config.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(config.MaxSendMsgSize),
	)
	healthpb.RegisterHealthServer(grpcServer, hs)

	return &HealthServer{
		config:     config,
		health:     hs,
		grpcServer: grpcServer,
		logger:     logger.With(zap.String("component", "health")),
	}
}

// SetServing flips the reported status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Watch reports SERVING while pool runs and NOT_SERVING once it has joined
// or ctx is done.
func (s *HealthServer) Watch(ctx context.Context, pool *engine.WorkerPool) {
	s.SetServing(pool.State() == engine.PoolRunning)

	select {
	case <-pool.Done():
	case <-ctx.Done():
	}
	s.SetServing(false)
	s.logger.Info("health set to NOT_SERVING", zap.String("pool_state", pool.State().String()))
}

// Serve serves on lis until Stop and returns nil once stopped. It is used directly with in-memory
// listeners in tests.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("gRPC health listening", zap.String("address", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves (blocking).
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/config"
)

// GRPCServer wraps a grpc.Server with health reporting and request logging.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	addr   string
	logger *slog.Logger
}

// NewGRPCServer builds the server and registers all provided services
func NewGRPCServer(cfg *config.Config, logger *slog.Logger, registrars ...Registrar) *GRPCServer {
	s := &GRPCServer{
		srv:    grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))),
		health: health.NewServer(),
		addr:   fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port),
		logger: logger.With("component", "grpc"),
	}

	// register all services
	for _, r := range registrars {
		r.Register(s.srv)
	}
	healthpb.RegisterHealthServer(s.srv, s.health)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(s.srv)
	return s
}

// Server exposes the underlying grpc.Server.
func (s *GRPCServer) Server() *grpc.Server { return s.srv }

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.logger.Info("starting gRPC server", "addr", lis.Addr().String())
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then drains in-flight calls.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	err := s.srv.Serve(lis)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	<-stopped
	s.logger.Info("gRPC server stopped")
	return nil
}

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		switch code {
		case codes.OK:
			logger.Debug("grpc call", attrs...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			logger.Error("grpc call failed", append(attrs, "err", err)...)
		default:
			logger.Info("grpc call rejected", append(attrs, "err", err)...)
		}
		return resp, err
	}
}

// Package ops runs the operational gRPC endpoint: the standard health
// service, backed by a database probe, plus server reflection.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the chat backend.
const ServiceName = "agency.chat"

const (
	probeInterval = 15 * time.Second
	probeTimeout  = 3 * time.Second
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the operational gRPC server.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	pinger Pinger
	logger *slog.Logger
}

// NewServer creates a gRPC server exposing grpc.health.v1.Health and reflection.
func NewServer(pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{
		grpc:   gs,
		health: hs,
		pinger: pinger,
		logger: logger,
	}
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return serveError(err)
		case <-ticker.C:
			s.probe(ctx)
		case <-ctx.Done():
			s.logger.Info("gRPC health server shutting down")
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return serveError(<-errCh)
		}
	}
}

// serveError drops the error Serve reports after a deliberate stop,
// including a stop that lands before Serve starts.
func serveError(err error) error {
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// probe updates the health status from the dependency check.
func (s *Server) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.pinger.Ping(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("Health probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"trailwatch.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer publishes readiness over the standard gRPC health protocol,
// both for the overall server ("") and for the trailwatch service name.
type HealthServer struct {
	health    *health.Server
	readiness readinessChecker
	timeout   time.Duration
}

// NewHealthServer starts out NOT_SERVING until the first readiness check succeeds.
func NewHealthServer(r readinessChecker) *HealthServer {
	s := &HealthServer{
		health:    health.NewServer(),
		readiness: r,
		timeout:   2 * time.Second,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs one readiness check and publishes the result.
func (s *HealthServer) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.readiness.Check(ctx); err != nil {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch checks readiness every interval until ctx is done, then marks the server as
// shutting down.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	healthy := true
	for {
		if ctx.Err() != nil {
			s.health.Shutdown()
			return nil
		}
		err := s.Refresh(ctx)
		switch {
		case err != nil && healthy:
			obs.Logger().Warn("readiness check failed", zap.Error(err))
			healthy = false
		case err == nil && !healthy:
			obs.Logger().Info("readiness restored")
			healthy = true
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
}

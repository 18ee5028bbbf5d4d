// Package server exposes the admin gRPC endpoint of the duel server.
package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/ChuechTeam/CardLab-sub000/internal/config"
)

// GRPC is the admin gRPC server and its health service.
type GRPC struct {
	Server *grpc.Server
	Health *health.Server
	logger *zap.Logger
}

// NewGRPC builds the admin server with recovery, logging and admin
// password interceptors.
func NewGRPC(cfg config.AdminConfig, admin *AdminServer, logger *zap.Logger) *GRPC {
	if cfg.PasswordHash == "" {
		logger.Warn("admin password not configured; admin RPC access disabled")
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
			AdminInterceptor(cfg.PasswordHash),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	RegisterAdminServer(s, admin)
	hs.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPC{Server: s, Health: hs, logger: logger}
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (g *GRPC) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		g.logger.Info("starting gRPC server", zap.String("address", lis.Addr().String()))
		errc <- g.Server.Serve(lis)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		g.Health.Shutdown()
		g.Server.GracefulStop()
		return nil
	}
}

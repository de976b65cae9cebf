package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/config"
	"trailwatch.org/internal/httpapi"
	"trailwatch.org/internal/obs"
	"trailwatch.org/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, gRPC health endpoint and alert sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	secret, err := cfg.Secret()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(secret,
		auth.WithIssuer(cfg.AuthIssuer),
		auth.WithTTLPolicy(cfg.TTLPolicy()),
	)
	if err != nil {
		return err
	}

	alerts := alert.NewCoordinator(st, alert.WithRetireAfter(cfg.AlertRetireAfter))
	trk := tracker.NewService(st, alerts, tracker.WithLookback(cfg.SightingLookback))
	ready := httpapi.ReadinessCheck{DB: st.DB()}

	api := httpapi.New(httpapi.Deps{
		Catalog:  st,
		Tracker:  trk,
		Alerts:   alerts,
		Login:    auth.NewAuthenticator(st, tokens),
		Verifier: tokens,
		Ready:    ready,
		Version:  version,
	}, httpapi.Options{
		RateBurst:   cfg.RateLimitBurst,
		RatePerSec:  cfg.RateLimitRPS,
		CORSOrigins: cfg.CORSOriginList(),
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	if cfg.GRPCAddr != "" {
		if err := serveHealth(ctx, g, cfg, ready, logger); err != nil {
			return err
		}
	}

	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			sweep(ctx, alerts, cfg.SweepInterval, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func serveHealth(ctx context.Context, g *errgroup.Group, cfg *config.Config, ready httpapi.ReadinessCheck, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	server := grpc.NewServer()
	health := httpapi.NewHealthServer(ready)
	health.Register(server)

	g.Go(func() error {
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return health.Watch(ctx, 10*time.Second)
	})
	g.Go(func() error {
		<-ctx.Done()
		server.GracefulStop()
		return nil
	})
	return nil
}

// sweep deactivates alerts whose end date has passed until ctx is done.
func sweep(ctx context.Context, alerts *alert.Coordinator, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := alerts.ExpireElapsed(ctx)
			if err != nil {
				logger.Error("alert sweep failed", zap.Error(err))
			}
			if n > 0 {
				logger.Info("alerts expired", zap.Int("count", n))
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/activitymap"
	"github.com/goliatone/go-artisan/internal/logging"
	"github.com/goliatone/go-artisan/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	log := logging.NewPrintf(logger)
	if len(cfg.Auth.Admins) == 0 {
		log.Warn("no admin accounts configured, every login will fail")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, closeStore, err := buildServer(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("close store: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(cfg.Server.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildServer(ctx context.Context, zl *zap.Logger) (*server.Server, func() error, error) {
	log := logging.NewPrintf(zl)
	metrics := server.NewMetrics()
	sink := artisan.MultiActivitySink{metrics, auditSink(zl.Named("audit"))}

	store, closeStore, err := openStore(ctx, cfg.Store, log.Named("store"), sink)
	if err != nil {
		return nil, nil, err
	}

	tokens := server.NewTokenService([]byte(cfg.Auth.SigningKey),
		server.WithIssuer(cfg.Auth.Issuer),
		server.WithTokenTTL(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		server.WithTokenLogger(log.Named("tokens")),
	)

	srv := server.New(store, tokens,
		server.WithAccounts(server.NewMemoryAccounts(cfg.Auth.Admins...)),
		server.WithLoginLimiter(server.NewLoginLimiter(rate.Limit(cfg.Auth.LoginLimit()), cfg.Auth.LoginBurst)),
		server.WithMetrics(metrics),
		server.WithLogger(log.Named("http")),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)
	return srv, closeStore, nil
}

// auditSink writes every lifecycle change as a structured log entry.
func auditSink(zl *zap.Logger) artisan.ActivitySink {
	return activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
		zl.Info(n.Verb,
			zap.String("actor_id", n.ActorID),
			zap.String("object_type", n.ObjectType),
			zap.String("object_id", n.ObjectID),
			zap.String("channel", n.Channel),
			zap.Any("metadata", n.Metadata),
			zap.Time("occurred_at", n.OccurredAt),
		)
		return nil
	}, activitymap.WithActorFallback("artisand"))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goodscommunity/internal/blob"
	"goodscommunity/internal/config"
	"goodscommunity/internal/http/handlers"
	applog "goodscommunity/internal/log"
	"goodscommunity/internal/mail"
	"goodscommunity/internal/notify"
	"goodscommunity/internal/repos"
	"goodscommunity/internal/session"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := applog.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, closeSessions, err := openSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if mem, ok := sessions.(*session.MemoryStore); ok {
		go mem.RunSweeper(sweepCtx, cfg.Session.IdleTimeout)
	}

	blobs, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var mailer mail.Sender = mail.LogSender{Logger: logger.Named("mail")}
	if cfg.Mail.Backend == "smtp" {
		mailer = mail.NewSMTPSender(cfg.Mail)
	}

	hub := notify.NewHub(
		notify.WithLogger(logger.Named("notify")),
		notify.WithMaxSubscribers(cfg.HTTP.SSEMaxClients),
	)
	defer hub.Stop()

	deps := handlers.NewDeps(db, cfg, sessions, blobs, mailer, hub, logger)
	app := handlers.NewApp(deps)

	errc := make(chan error, 1)
	go func() {
		logger.Info("server.start",
			zap.String("port", cfg.Port),
			zap.String("session_backend", cfg.Session.Backend),
			zap.String("blob_backend", cfg.Blob.Backend),
			zap.String("mail_backend", cfg.Mail.Backend),
		)
		errc <- app.Listen(":" + cfg.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errc:
		return err
	case s := <-sig:
		logger.Info("server.shutdown", zap.String("signal", s.String()))
	case <-ctx.Done():
		logger.Info("server.shutdown", zap.Error(ctx.Err()))
	}
	// Closing the hub ends every open SSE stream so Shutdown can drain.
	hub.Stop()
	stopSweep()
	return app.ShutdownWithTimeout(10 * time.Second)
}

func openSessions(ctx context.Context, cfg config.Config, db *sqlx.DB) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "sql":
		return session.NewSQLStore(db, cfg.Session.IdleTimeout), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		store := session.NewRedisStore(client, cfg.Session.IdleTimeout)
		return store, func() { _ = store.Close() }, nil
	default:
		return session.NewMemoryStore(cfg.Session.IdleTimeout), func() {}, nil
	}
}

func openBlobs(ctx context.Context, cfg config.Config, logger *zap.Logger) (blob.Store, error) {
	if cfg.Blob.Backend != "s3" {
		return blob.NewLocalStore(cfg.MediaDir), nil
	}
	store, err := blob.NewS3Store(cfg.Blob.S3, blob.WithLogger(logger.Named("blob")))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 bucket: %w", err)
	}
	return store, nil
}

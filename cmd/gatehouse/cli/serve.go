package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatehouseio/gatehouse/internal/config"
	"github.com/gatehouseio/gatehouse/internal/identity"
	"github.com/gatehouseio/gatehouse/internal/ratelimit"
	"github.com/gatehouseio/gatehouse/internal/server"
	"github.com/gatehouseio/gatehouse/internal/service"
	"github.com/gatehouseio/gatehouse/internal/storage"
	"github.com/gatehouseio/gatehouse/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatehouse API server",
		Long:  "Start the HTTP server, running pending database migrations first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Info("database ready", "driver", cfg.Database.Driver)

	var objects storage.ObjectStore
	if cfg.Storage.Configured() {
		objects, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			BaseEndpoint: cfg.Storage.BaseEndpoint,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
		})
		if err != nil {
			st.Close()
			return fmt.Errorf("init object storage: %w", err)
		}
		logger.Info("object storage ready", "bucket", cfg.Storage.Bucket)
	} else {
		logger.Warn("object storage not configured; avatar uploads are kept in memory and lost on restart")
		objects = storage.NewMemory()
	}

	mailer := identity.NewMailer(cfg.SMTP, logger)
	ident := identity.NewService(st, cfg, mailer, logger)
	tokens := service.NewTokenService(st, logger)
	limiter := ratelimit.NewMemory()

	srv := server.New(cfg, appVersion, st, ident, tokens, objects, limiter, logger)
	return srv.ListenAndServe()
}

// newLogger builds the process-wide slog logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filevault/pkg/auth"
	"filevault/pkg/config"
	"filevault/pkg/content"
	"filevault/pkg/content/badger"
	"filevault/pkg/content/fs"
	"filevault/pkg/content/memory"
	"filevault/pkg/content/s3"
	"filevault/pkg/database"
	"filevault/pkg/log"
	"filevault/pkg/resilience"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

const dataDirPerm = 0o750

// setup loads the configuration and configures logging. The returned
// function closes the log output.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	out, closeOut, err := log.Output(cfg.Logging.Output)
	if err != nil {
		return nil, nil, err
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, out); err != nil {
		_ = closeOut()
		return nil, nil, err
	}

	return cfg, func() { _ = closeOut() }, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if cfg.Database.Driver == database.DriverSQLite && !strings.Contains(cfg.Database.DSN, ":memory:") {
		dir := filepath.Dir(strings.SplitN(strings.TrimPrefix(cfg.Database.DSN, "file:"), "?", 2)[0])
		if err := os.MkdirAll(dir, dataDirPerm); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := database.Open(ctx, database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connected")
	return db, nil
}

// openContentStore builds the configured content store. The returned
// function releases it.
func openContentStore(ctx context.Context, cfg *config.Config) (content.Store, func(), error) {
	noop := func() {}

	switch cfg.Content.Type {
	case "memory":
		log.Warn().Msg("Using in-memory content store, file bytes are lost on restart")
		return memory.New(), noop, nil

	case "fs":
		store, err := fs.New(cfg.Content.FS.Root)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("root", cfg.Content.FS.Root).Msg("Using filesystem content store")
		return store, noop, nil

	case "badger":
		store, err := badger.Open(cfg.Content.Badger.Dir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.Content.Badger.Dir).Msg("Using badger content store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close badger content store")
			}
		}, nil

	case "s3":
		client, err := s3.NewClient(ctx, s3.ClientConfig{
			Region:          cfg.Content.S3.Region,
			Endpoint:        cfg.Content.S3.Endpoint,
			AccessKeyID:     cfg.Content.S3.AccessKeyID,
			SecretAccessKey: cfg.Content.S3.SecretAccessKey,
			UsePathStyle:    cfg.Content.S3.UsePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := s3.New(ctx, s3.Config{
			Client:    client,
			Bucket:    cfg.Content.S3.Bucket,
			KeyPrefix: cfg.Content.S3.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("bucket", cfg.Content.S3.Bucket).Str("endpoint", cfg.Content.S3.Endpoint).Msg("Using S3 content store")
		return store, noop, nil
	}

	return nil, nil, fmt.Errorf("unsupported content store %q", cfg.Content.Type)
}

func newOwnerResolver(cfg config.AuthConfig) (auth.OwnerResolver, error) {
	switch cfg.Mode {
	case "jwt":
		if cfg.Secret == "" {
			return nil, fmt.Errorf("auth.secret is required in jwt mode")
		}
		return auth.NewJWTResolver([]byte(cfg.Secret)), nil
	case "static":
		log.Warn().Str("owner", cfg.StaticOwner).Msg("Authentication disabled, every request acts as the static owner")
		return auth.NewStaticResolver(cfg.StaticOwner), nil
	}
	return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
}

func resilienceConfig(cfg config.ShareConfig) resilience.Config {
	return resilience.Config{
		Name:             "share",
		MaxAttempts:      cfg.MaxAttempts,
		InitialBackoff:   cfg.InitialBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		FailureRatio:     cfg.FailureRatio,
		MinimumRequests:  cfg.MinimumRequests,
		Window:           cfg.Window,
		OpenTimeout:      cfg.OpenTimeout,
		HalfOpenRequests: cfg.HalfOpenRequests,
	}
}

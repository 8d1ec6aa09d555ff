package main

import (
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"filevault/pkg/bucket"
	"filevault/pkg/database"
	"filevault/pkg/log"
	"filevault/pkg/metrics"
	"filevault/pkg/repomanager"
	"filevault/pkg/resilience"
	"filevault/pkg/server"
	"filevault/pkg/share"
	"filevault/pkg/storage"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server. Pending migrations are applied and the default
bucket is created before the server starts listening.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address, e.g. :8080")
	cmd.Flags().String("content-type", "", "content store (fs, s3, badger, memory)")
	cmd.Flags().String("content-root", "", "root directory of the fs content store")
	cmd.Flags().String("auth-mode", "", "owner resolution (jwt, static)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	store, closeStore, err := openContentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	repos := repomanager.New()
	registry := bucket.NewRegistry(repos.Buckets(db))
	if _, err := registry.EnsureDefault(ctx, cfg.Bucket.DefaultName, cfg.Bucket.DefaultOwner); err != nil {
		return err
	}

	var (
		storageOpts    []storage.Option
		shareMetrics   *metrics.Share
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		storageOpts = append(storageOpts, storage.WithMetrics(metrics.NewStorage(reg)))
		shareMetrics = metrics.NewShare(reg)
		metricsHandler = metrics.Handler(reg)
	}

	onState := func(name, from, to string) {
		shareMetrics.SetBreakerState(name, to)
	}
	policy := resilience.New(resilienceConfig(cfg.Share), onState)
	shareMetrics.SetBreakerState(policy.Name(), policy.State())

	owners, err := newOwnerResolver(cfg.Auth)
	if err != nil {
		return err
	}

	uploadLimit, err := cfg.Server.UploadLimit()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Version:         strings.TrimSpace(Version),
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  uploadLimit,
		ShareRateLimit:  cfg.Server.ShareRateLimit,
		ShareRateBurst:  cfg.Server.ShareRateBurst,
	}, server.Deps{
		Storage: storage.NewService(db, repos, store, storageOpts...),
		Shares:  share.NewService(db, repos, policy, shareMetrics),
		Buckets: registry,
		Owners:  owners,
		Metrics: metricsHandler,
		DB:      db,
	})

	return srv.Start(ctx, cfg.Server.Addr)
}

// Package server is the HTTP adapter of filevault. Handlers translate
// requests into storage, sharing and bucket operations and map the
// resulting errors onto status codes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"filevault/pkg/auth"
	"filevault/pkg/log"
	"filevault/pkg/models"
	"filevault/pkg/storage"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadBytes  = 100 << 20

	ownerKey = "owner"
)

// StorageService is the subset of the storage service the handlers use.
type StorageService interface {
	Upload(ctx context.Context, req storage.UploadRequest, owner string) (*models.FileResponse, error)
	ListFiles(ctx context.Context, owner string, page, size int) (*models.FilePage, error)
	GetFile(ctx context.Context, id int64, owner string) (*models.FileResponse, error)
	UpdateMetadata(ctx context.Context, id int64, owner string, md map[string]string, expectedVersion int64) (*models.FileResponse, error)
	DeleteFile(ctx context.Context, id int64, owner string) error
	Download(ctx context.Context, id int64, owner string) (*models.FileResponse, []byte, error)
}

// ShareService is the subset of the sharing service the handlers use.
type ShareService interface {
	Share(ctx context.Context, folderPath string, emails []string) error
	SharedEmails(ctx context.Context, folderPath string) ([]string, error)
}

// BucketAdmin backs the admin bucket routes.
type BucketAdmin interface {
	Create(ctx context.Context, name, description, owner string) (*models.StorageBucket, error)
	List(ctx context.Context) ([]models.StorageBucket, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config tunes the HTTP server. Zero values fall back to defaults.
type Config struct {
	Version         string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	// ShareRateLimit is requests per second per client IP on /share. Zero
	// disables limiting.
	ShareRateLimit float64
	ShareRateBurst int
}

// Deps are the collaborators of the server. Metrics and DB are optional.
type Deps struct {
	Storage StorageService
	Shares  ShareService
	Buckets BucketAdmin
	Owners  auth.OwnerResolver
	Metrics http.Handler
	DB      Pinger
}

type Server struct {
	echo    *echo.Echo
	cfg     Config
	deps    Deps
	started time.Time
}

func New(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.Owners == nil {
		deps.Owners = auth.NewStaticResolver(auth.DefaultOwner)
	}

	s := &Server{
		echo:    echo.New(),
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", s.cfg.Version).
			Msg("Starting filevault server")

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server startup failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = newRequestValidator()

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(requestLogger())
	s.echo.Use(middleware.ContextTimeout(s.cfg.RequestTimeout))

	s.echo.GET("/", s.serveSwaggerUI)
	s.echo.GET("/swagger.yml", s.serveSwaggerSpec)
	s.echo.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	api := s.echo.Group("/api/v1/storage", s.resolveOwner)
	api.POST("/upload", s.uploadFile, s.limitBody)
	api.GET("/files", s.listFiles)
	api.GET("/files/:id", s.getFile)
	api.DELETE("/files/:id", s.deleteFile)
	api.PUT("/files/:id/metadata", s.updateMetadata)
	api.GET("/files/:id/download", s.downloadFile)

	admin := s.echo.Group("/api/v1/admin", s.resolveOwner)
	admin.POST("/buckets", s.createBucket)
	admin.GET("/buckets", s.listBuckets)

	s.echo.POST("/share", s.share, s.shareRateLimiter()...)
	s.echo.GET("/shared-emails", s.sharedEmails)
}

// Package storage implements uploading, listing, reading, updating and
// deleting stored files on top of the record stores and a content store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"filevault/pkg/bucket"
	"filevault/pkg/content"
	"filevault/pkg/database"
	"filevault/pkg/files"
	"filevault/pkg/log"
	"filevault/pkg/metadata"
	"filevault/pkg/models"
)

const (
	// DefaultContentType is used when an upload does not declare one.
	DefaultContentType = "application/octet-stream"
	// DefaultPageSize applies when a list request asks for no size.
	DefaultPageSize = 10
	// MaxPageSize caps the page size of a list request.
	MaxPageSize = 100
	// DownloadPathPrefix prefixes the download URL of every projection.
	DownloadPathPrefix = "/api/v1/storage/files/"
)

// Repositories vends the record stores bound to a handle.
type Repositories interface {
	Buckets(db database.DBTX) bucket.Repository
	Files(db database.DBTX) files.Repository
	Metadata(db database.DBTX) metadata.Repository
}

// Metrics receives operation timings and byte counts.
type Metrics interface {
	ObserveOperation(op string, d time.Duration, err error)
	RecordBytes(direction string, n int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// UploadRequest describes one uploaded file.
type UploadRequest struct {
	BucketName  string
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
	Metadata    map[string]string
}

// Service is the storage service.
type Service struct {
	db      *sqlx.DB
	repos   Repositories
	content content.Store
	metrics Metrics
	now     func() time.Time
	newKey  func(time.Time) string
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records operations to m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithKeyGenerator overrides how storage paths are generated.
func WithKeyGenerator(gen func(time.Time) string) Option {
	return func(s *Service) { s.newKey = gen }
}

// NewService wires the storage service.
func NewService(db *sqlx.DB, repos Repositories, store content.Store, opts ...Option) *Service {
	s := &Service{
		db:      db,
		repos:   repos,
		content: store,
		metrics: noopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
		newKey:  content.NewKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, time.Since(start), err)
}

// DownloadURL returns the download path of file id.
func DownloadURL(id int64) string {
	return DownloadPathPrefix + strconv.FormatInt(id, 10) + "/download"
}

func toResponse(f *models.StoredFile, md map[string]string) *models.FileResponse {
	if md == nil {
		md = map[string]string{}
	}
	return &models.FileResponse{
		ID:          f.ID,
		Filename:    f.Filename,
		Size:        f.Size,
		ContentType: f.ContentType,
		DownloadURL: DownloadURL(f.ID),
		Metadata:    md,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		Owner:       f.Owner,
		BucketName:  f.BucketName,
		Version:     f.Version,
	}
}

// Upload stores the bytes, then records the file and its metadata in one
// transaction. If recording fails the stored bytes are removed again.
func (s *Service) Upload(ctx context.Context, req UploadRequest, owner string) (resp *models.FileResponse, err error) {
	start := time.Now()
	defer func() { s.observe("upload", start, err) }()

	if strings.TrimSpace(req.BucketName) == "" {
		return nil, fmt.Errorf("%w: bucket name is required", ErrValidation)
	}
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if req.Body == nil || req.Size < 0 {
		return nil, fmt.Errorf("%w: file content is required", ErrValidation)
	}

	b, err := s.repos.Buckets(s.db).FindByName(ctx, req.BucketName)
	if err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = DefaultContentType
	}

	now := s.now()
	key := s.newKey(now)
	if err := s.content.Put(ctx, key, req.Body, req.Size, contentType); err != nil {
		return nil, fmt.Errorf("%w: store content: %w", ErrIOFailure, err)
	}

	f := &models.StoredFile{
		BucketID:    b.ID,
		BucketName:  b.Name,
		Filename:    req.Filename,
		Size:        req.Size,
		ContentType: contentType,
		StoragePath: key,
		Owner:       owner,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		if err := s.repos.Files(tx).Insert(ctx, f); err != nil {
			return err
		}
		return s.repos.Metadata(tx).InsertAll(ctx, f.ID, req.Metadata)
	})
	if err != nil {
		if derr := s.content.Delete(context.WithoutCancel(ctx), key); derr != nil {
			log.Warn().Str("storage_path", key).Err(derr).Msg("Failed to remove content of aborted upload")
		}
		return nil, err
	}

	s.metrics.RecordBytes("upload", req.Size)
	log.Info().
		Int64("file_id", f.ID).
		Str("owner", owner).
		Str("bucket", b.Name).
		Str("filename", f.Filename).
		Str("size", humanize.Bytes(uint64(f.Size))).
		Msg("File uploaded")

	return toResponse(f, copyMetadata(req.Metadata)), nil
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// NormalizePage clamps page and size to the accepted range.
func NormalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// ListFiles returns one page of owner's files with their metadata.
func (s *Service) ListFiles(ctx context.Context, owner string, page, size int) (result *models.FilePage, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	page, size = NormalizePage(page, size)

	fileRepo := s.repos.Files(s.db)
	total, err := fileRepo.CountByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if page > math.MaxInt/size {
		return &models.FilePage{Files: []models.FileResponse{}, Page: page, Size: size, Total: total}, nil
	}
	records, err := fileRepo.ListByOwner(ctx, owner, size, page*size)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	md, err := s.repos.Metadata(s.db).ListByFiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &models.FilePage{Files: make([]models.FileResponse, 0, len(records)), Page: page, Size: size, Total: total}
	for i := range records {
		out.Files = append(out.Files, *toResponse(&records[i], md[records[i].ID]))
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id int64, owner string) (*models.StoredFile, map[string]string, error) {
	f, err := s.repos.Files(s.db).GetByIDForOwner(ctx, id, owner)
	if err != nil {
		return nil, nil, err
	}
	md, err := s.repos.Metadata(s.db).ListByFile(ctx, f.ID)
	if err != nil {
		return nil, nil, err
	}
	return f, md, nil
}

// GetFile returns the projection of one of owner's files.
func (s *Service) GetFile(ctx context.Context, id int64, owner string) (resp *models.FileResponse, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	f, md, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	return toResponse(f, md), nil
}

// UpdateMetadata replaces the metadata of a file. A positive
// expectedVersion must match the stored version.
func (s *Service) UpdateMetadata(ctx context.Context, id int64, owner string, md map[string]string, expectedVersion int64) (resp *models.FileResponse, err error) {
	start := time.Now()
	defer func() { s.observe("update_metadata", start, err) }()

	var f *models.StoredFile
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		var err error
		fileRepo := s.repos.Files(tx)
		f, err = fileRepo.GetByIDForOwner(ctx, id, owner)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && f.Version != expectedVersion {
			return ErrVersionConflict
		}

		// The file row is locked before its metadata is touched, so concurrent
		// replaces of the same file run one after another.
		f.UpdatedAt = s.now()
		if f.Version, err = fileRepo.Touch(ctx, f.ID, owner, expectedVersion, f.UpdatedAt); err != nil {
			return err
		}

		mdRepo := s.repos.Metadata(tx)
		if _, err := mdRepo.DeleteByFile(ctx, f.ID); err != nil {
			return err
		}
		return mdRepo.InsertAll(ctx, f.ID, md)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("file_id", id).Str("owner", owner).Int("keys", len(md)).Int64("version", f.Version).
		Msg("File metadata replaced")
	return toResponse(f, copyMetadata(md)), nil
}

// DeleteFile removes the file record and its metadata, then the stored
// bytes. A failure to remove the bytes is logged, not returned.
func (s *Service) DeleteFile(ctx context.Context, id int64, owner string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	var f *models.StoredFile
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		var err error
		fileRepo := s.repos.Files(tx)
		f, err = fileRepo.GetByIDForOwner(ctx, id, owner)
		if err != nil {
			return err
		}
		if _, err := s.repos.Metadata(tx).DeleteByFile(ctx, f.ID); err != nil {
			return err
		}
		return fileRepo.DeleteForOwner(ctx, f.ID, owner)
	})
	if err != nil {
		return err
	}

	if derr := s.content.Delete(context.WithoutCancel(ctx), f.StoragePath); derr != nil && !errors.Is(derr, content.ErrContentNotFound) {
		log.Warn().Int64("file_id", id).Str("storage_path", f.StoragePath).Err(derr).
			Msg("File record deleted but content removal failed")
	}

	log.Info().Int64("file_id", id).Str("owner", owner).Msg("File deleted")
	return nil
}

// Download returns the projection and the bytes of one of owner's files.
func (s *Service) Download(ctx context.Context, id int64, owner string) (resp *models.FileResponse, data []byte, err error) {
	start := time.Now()
	defer func() { s.observe("download", start, err) }()

	f, md, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, nil, err
	}
	data, err = s.readContent(ctx, f.StoragePath)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.RecordBytes("download", int64(len(data)))
	log.Debug().Int64("file_id", id).Str("owner", owner).Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("File downloaded")
	return toResponse(f, md), data, nil
}

// GetFileContent returns the bytes of one of owner's files.
func (s *Service) GetFileContent(ctx context.Context, id int64, owner string) ([]byte, error) {
	_, data, err := s.Download(ctx, id, owner)
	return data, err
}

func (s *Service) readContent(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.content.Get(ctx, key)
	if errors.Is(err, content.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return buf.Bytes(), nil
}

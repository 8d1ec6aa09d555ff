package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"filevault/pkg/bucket"
	"filevault/pkg/content"
	"filevault/pkg/content/memory"
	"filevault/pkg/database"
	"filevault/pkg/database/dbtest"
	"filevault/pkg/files"
	"filevault/pkg/metadata"
	"filevault/pkg/repomanager"
)

// ServiceTestSuite exercises the storage service against SQLite and an
// in-memory content store.
type ServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	db      *sqlx.DB
	blobs   *memory.Store
	service *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T())
	s.blobs = memory.New()
	s.service = NewService(s.db, repomanager.New(), s.blobs)

	_, err := bucket.NewRegistry(bucket.NewSQLRepository(s.db)).EnsureDefault(s.ctx, "my-bucket", "system")
	s.Require().NoError(err)
}

func (s *ServiceTestSuite) upload(owner, name, body string, md map[string]string) int64 {
	resp, err := s.service.Upload(s.ctx, UploadRequest{
		BucketName:  "my-bucket",
		Filename:    name,
		Size:        int64(len(body)),
		ContentType: "text/plain",
		Body:        strings.NewReader(body),
		Metadata:    md,
	}, owner)
	s.Require().NoError(err)
	return resp.ID
}

func (s *ServiceTestSuite) countRows(table string) int {
	var n int
	s.Require().NoError(s.db.GetContext(s.ctx, &n, "SELECT COUNT(*) FROM "+table))
	return n
}

func (s *ServiceTestSuite) TestUploadReturnsProjection() {
	resp, err := s.service.Upload(s.ctx, UploadRequest{
		BucketName:  "my-bucket",
		Filename:    "a.txt",
		Size:        5,
		ContentType: "text/plain",
		Body:        strings.NewReader("hello"),
		Metadata:    map[string]string{"k": "v"},
	}, "alice")
	s.Require().NoError(err)

	s.NotZero(resp.ID)
	s.Equal("a.txt", resp.Filename)
	s.Equal(int64(5), resp.Size)
	s.Equal("text/plain", resp.ContentType)
	s.Equal(fmt.Sprintf("/api/v1/storage/files/%d/download", resp.ID), resp.DownloadURL)
	s.Equal(map[string]string{"k": "v"}, resp.Metadata)
	s.Equal("alice", resp.Owner)
	s.Equal("my-bucket", resp.BucketName)
	s.Equal(int64(1), resp.Version)
	s.False(resp.CreatedAt.IsZero())
	s.Equal(resp.CreatedAt, resp.UpdatedAt)
	s.Equal(1, s.blobs.Len())

	got, err := s.service.GetFile(s.ctx, resp.ID, "alice")
	s.Require().NoError(err)
	s.Equal(resp.ID, got.ID)
	s.Equal(map[string]string{"k": "v"}, got.Metadata)
	s.Equal("my-bucket", got.BucketName)
}

func (s *ServiceTestSuite) TestUploadDefaultsContentType() {
	resp, err := s.service.Upload(s.ctx, UploadRequest{
		BucketName: "my-bucket", Filename: "blob.bin", Body: strings.NewReader(""),
	}, "alice")
	s.Require().NoError(err)
	s.Equal(DefaultContentType, resp.ContentType)
	s.Equal(int64(0), resp.Size)
	s.NotNil(resp.Metadata)
	s.Empty(resp.Metadata)
}

func (s *ServiceTestSuite) TestUploadUnknownBucketHasNoSideEffects() {
	_, err := s.service.Upload(s.ctx, UploadRequest{
		BucketName: "missing", Filename: "a.txt", Size: 1, Body: strings.NewReader("x"),
	}, "alice")
	s.ErrorIs(err, ErrBucketNotFound)
	s.Equal(0, s.blobs.Len())
	s.Equal(0, s.countRows("stored_files"))
}

func (s *ServiceTestSuite) TestUploadValidation() {
	cases := []UploadRequest{
		{Filename: "a.txt", Body: strings.NewReader("x")},
		{BucketName: "my-bucket", Filename: " ", Body: strings.NewReader("x")},
		{BucketName: "my-bucket", Filename: "a.txt"},
		{BucketName: "my-bucket", Filename: "a.txt", Size: -1, Body: strings.NewReader("x")},
	}
	for i, req := range cases {
		_, err := s.service.Upload(s.ctx, req, "alice")
		s.ErrorIs(err, ErrValidation, "case %d", i)
	}
}

func (s *ServiceTestSuite) TestUploadRemovesContentWhenRecordingFails() {
	service := NewService(s.db, failingMetadataRepos{repomanager.New()}, s.blobs)

	_, err := service.Upload(s.ctx, UploadRequest{
		BucketName: "my-bucket", Filename: "a.txt", Size: 1, Body: strings.NewReader("x"),
		Metadata: map[string]string{"k": "v"},
	}, "alice")
	s.Require().Error(err)
	s.Equal(0, s.blobs.Len(), "content of a failed upload must be removed")
	s.Equal(0, s.countRows("stored_files"), "file row must be rolled back")
}

func (s *ServiceTestSuite) TestListFilesPagination() {
	for i := 0; i < 12; i++ {
		s.upload("alice", fmt.Sprintf("f%02d.txt", i), "x", map[string]string{"n": fmt.Sprint(i)})
	}
	s.upload("bob", "bob.txt", "y", nil)

	first, err := s.service.ListFiles(s.ctx, "alice", 0, 0)
	s.Require().NoError(err)
	s.Equal(int64(12), first.Total)
	s.Equal(DefaultPageSize, first.Size)
	s.Require().Len(first.Files, DefaultPageSize)
	s.Equal("f00.txt", first.Files[0].Filename)
	s.Equal(map[string]string{"n": "0"}, first.Files[0].Metadata)

	second, err := s.service.ListFiles(s.ctx, "alice", 1, 10)
	s.Require().NoError(err)
	s.Require().Len(second.Files, 2)
	s.Equal("f10.txt", second.Files[0].Filename)
	s.Equal(map[string]string{"n": "11"}, second.Files[1].Metadata)

	for _, f := range append(first.Files, second.Files...) {
		s.Equal("alice", f.Owner)
	}
}

func (s *ServiceTestSuite) TestListFilesEmpty() {
	page, err := s.service.ListFiles(s.ctx, "nobody", 0, 10)
	s.Require().NoError(err)
	s.NotNil(page.Files)
	s.Empty(page.Files)
	s.Equal(int64(0), page.Total)
}

func (s *ServiceTestSuite) TestListFilesPageBeyondRange() {
	s.upload("alice", "a.txt", "x", nil)

	for _, page := range []int{1, math.MaxInt/10 + 1, math.MaxInt} {
		result, err := s.service.ListFiles(s.ctx, "alice", page, 10)
		s.Require().NoError(err, "page %d", page)
		s.Empty(result.Files, "page %d", page)
		s.Equal(int64(1), result.Total)
		s.Equal(page, result.Page)
	}
}

func (s *ServiceTestSuite) TestOwnershipIsolation() {
	id := s.upload("alice", "a.txt", "hello", nil)

	_, err := s.service.GetFile(s.ctx, id, "bob")
	s.ErrorIs(err, ErrFileNotFound)

	_, err = s.service.GetFileContent(s.ctx, id, "bob")
	s.ErrorIs(err, ErrFileNotFound)

	_, err = s.service.UpdateMetadata(s.ctx, id, "bob", map[string]string{"x": "y"}, 0)
	s.ErrorIs(err, ErrFileNotFound)

	s.ErrorIs(s.service.DeleteFile(s.ctx, id, "bob"), ErrFileNotFound)

	got, err := s.service.GetFile(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
}

func (s *ServiceTestSuite) TestUpdateMetadataReplacesAll() {
	id := s.upload("alice", "a.txt", "hello", map[string]string{"a": "1", "b": "2"})

	resp, err := s.service.UpdateMetadata(s.ctx, id, "alice", map[string]string{"c": "3"}, 0)
	s.Require().NoError(err)
	s.Equal(map[string]string{"c": "3"}, resp.Metadata)
	s.Equal(int64(2), resp.Version)
	s.True(!resp.UpdatedAt.Before(resp.CreatedAt))

	got, err := s.service.GetFile(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal(map[string]string{"c": "3"}, got.Metadata)
	s.Equal(int64(2), got.Version)

	cleared, err := s.service.UpdateMetadata(s.ctx, id, "alice", map[string]string{}, 0)
	s.Require().NoError(err)
	s.Empty(cleared.Metadata)
	s.Equal(1, s.countRows("stored_files"))
	s.Equal(0, s.countRows("file_metadata"))
}

func (s *ServiceTestSuite) TestUpdateMetadataExpectedVersion() {
	id := s.upload("alice", "a.txt", "hello", nil)

	resp, err := s.service.UpdateMetadata(s.ctx, id, "alice", map[string]string{"a": "1"}, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), resp.Version)

	_, err = s.service.UpdateMetadata(s.ctx, id, "alice", map[string]string{"b": "2"}, 1)
	s.ErrorIs(err, ErrVersionConflict)

	got, err := s.service.GetFile(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal(map[string]string{"a": "1"}, got.Metadata, "a rejected update must not change metadata")
}

func (s *ServiceTestSuite) TestUpdateMetadataLocksFileBeforeReplacing() {
	id := s.upload("alice", "a.txt", "hello", map[string]string{"a": "1"})

	var calls []string
	service := NewService(s.db, orderRecordingRepos{Manager: repomanager.New(), calls: &calls}, s.blobs)

	_, err := service.UpdateMetadata(s.ctx, id, "alice", map[string]string{"b": "2"}, 0)
	s.Require().NoError(err)
	s.Equal([]string{"touch", "delete_metadata", "insert_metadata"}, calls)

	calls = nil
	_, err = service.UpdateMetadata(s.ctx, id, "alice", map[string]string{"c": "3"}, 1)
	s.ErrorIs(err, ErrVersionConflict)
	s.NotContains(calls, "delete_metadata")

	got, err := s.service.GetFile(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal(map[string]string{"b": "2"}, got.Metadata)
}

func (s *ServiceTestSuite) TestDeleteFile() {
	id := s.upload("alice", "a.txt", "hello", map[string]string{"k": "v"})

	s.Require().NoError(s.service.DeleteFile(s.ctx, id, "alice"))
	s.Equal(0, s.blobs.Len())
	s.Equal(0, s.countRows("file_metadata"))

	_, err := s.service.GetFile(s.ctx, id, "alice")
	s.ErrorIs(err, ErrFileNotFound)
	s.ErrorIs(s.service.DeleteFile(s.ctx, id, "alice"), ErrFileNotFound)

	page, err := s.service.ListFiles(s.ctx, "alice", 0, 10)
	s.Require().NoError(err)
	s.Empty(page.Files)
	s.Equal(int64(0), page.Total)
}

func (s *ServiceTestSuite) TestConcurrentDeleteSucceedsOnce() {
	id := s.upload("alice", "a.txt", "hello", nil)

	const workers = 4
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.service.DeleteFile(s.ctx, id, "alice")
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, ErrFileNotFound)
	}
	s.Equal(1, succeeded)
}

func (s *ServiceTestSuite) TestGetFileContent() {
	id := s.upload("alice", "a.txt", "hello", nil)

	data, err := s.service.GetFileContent(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal("hello", string(data))

	resp, data, err := s.service.Download(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Equal("a.txt", resp.Filename)
	s.Equal("hello", string(data))
}

func (s *ServiceTestSuite) TestGetFileContentMissingBlob() {
	id := s.upload("alice", "a.txt", "hello", nil)

	got, err := repomanager.New().Files(s.db).GetByIDForOwner(s.ctx, id, "alice")
	s.Require().NoError(err)
	s.Require().NoError(s.blobs.Delete(s.ctx, got.StoragePath))

	_, err = s.service.GetFileContent(s.ctx, id, "alice")
	s.ErrorIs(err, ErrContentNotFound)
	s.NotErrorIs(err, ErrFileNotFound)
}

func (s *ServiceTestSuite) TestGetFileContentReadFailure() {
	store := &brokenReadStore{Store: s.blobs}
	service := NewService(s.db, repomanager.New(), store)

	resp, err := service.Upload(s.ctx, UploadRequest{
		BucketName: "my-bucket", Filename: "a.txt", Size: 5, Body: strings.NewReader("hello"),
	}, "alice")
	s.Require().NoError(err)

	_, err = service.GetFileContent(s.ctx, resp.ID, "alice")
	s.ErrorIs(err, ErrIOFailure)
}

func (s *ServiceTestSuite) TestMetricsRecorded() {
	rec := &recordingMetrics{}
	service := NewService(s.db, repomanager.New(), s.blobs, WithMetrics(rec))

	resp, err := service.Upload(s.ctx, UploadRequest{
		BucketName: "my-bucket", Filename: "a.txt", Size: 5, Body: strings.NewReader("hello"),
	}, "alice")
	s.Require().NoError(err)
	_, err = service.GetFile(s.ctx, resp.ID+1, "alice")
	s.Require().Error(err)

	s.Equal([]string{"upload:ok", "get:error"}, rec.ops)
	s.Equal(int64(5), rec.bytes["upload"])
}

func (s *ServiceTestSuite) TestClockAndKeyGenerator() {
	fixed := time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC)
	service := NewService(s.db, repomanager.New(), s.blobs,
		WithClock(func() time.Time { return fixed }),
		WithKeyGenerator(func(t time.Time) string { return "files/fixed/" + t.Format("20060102") }))

	resp, err := service.Upload(s.ctx, UploadRequest{
		BucketName: "my-bucket", Filename: "a.txt", Size: 1, Body: strings.NewReader("x"),
	}, "alice")
	s.Require().NoError(err)
	s.Equal(fixed, resp.CreatedAt)

	ok, err := s.blobs.Exists(s.ctx, "files/fixed/20240229")
	s.Require().NoError(err)
	s.True(ok)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestNormalizePage(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 0, DefaultPageSize},
		{-3, 5, 0, 5},
		{2, 500, 2, MaxPageSize},
		{1, -1, 1, DefaultPageSize},
	}
	for _, c := range cases {
		page, size := NormalizePage(c.page, c.size)
		if page != c.wantPage || size != c.wantSize {
			t.Errorf("NormalizePage(%d, %d) = %d, %d", c.page, c.size, page, size)
		}
	}
}

// failingMetadataRepos fails every metadata insert.
type failingMetadataRepos struct {
	*repomanager.Manager
}

type failingMetadata struct {
	metadata.Repository
}

func (failingMetadata) InsertAll(context.Context, int64, map[string]string) error {
	return fmt.Errorf("%w: injected", database.ErrDatabaseError)
}

func (r failingMetadataRepos) Metadata(db database.DBTX) metadata.Repository {
	return failingMetadata{r.Manager.Metadata(db)}
}

// orderRecordingRepos records the order of version bumps and metadata writes.
type orderRecordingRepos struct {
	*repomanager.Manager
	calls *[]string
}

func (r orderRecordingRepos) Files(db database.DBTX) files.Repository {
	return orderRecordingFiles{Repository: r.Manager.Files(db), calls: r.calls}
}

func (r orderRecordingRepos) Metadata(db database.DBTX) metadata.Repository {
	return orderRecordingMetadata{Repository: r.Manager.Metadata(db), calls: r.calls}
}

type orderRecordingFiles struct {
	files.Repository
	calls *[]string
}

func (f orderRecordingFiles) Touch(ctx context.Context, id int64, owner string, expectedVersion int64, at time.Time) (int64, error) {
	*f.calls = append(*f.calls, "touch")
	return f.Repository.Touch(ctx, id, owner, expectedVersion, at)
}

type orderRecordingMetadata struct {
	metadata.Repository
	calls *[]string
}

func (m orderRecordingMetadata) DeleteByFile(ctx context.Context, fileID int64) (int64, error) {
	*m.calls = append(*m.calls, "delete_metadata")
	return m.Repository.DeleteByFile(ctx, fileID)
}

func (m orderRecordingMetadata) InsertAll(ctx context.Context, fileID int64, pairs map[string]string) error {
	*m.calls = append(*m.calls, "insert_metadata")
	return m.Repository.InsertAll(ctx, fileID, pairs)
}

// brokenReadStore stores content but fails every read.
type brokenReadStore struct {
	content.Store
}

func (*brokenReadStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("device not ready")
}

type recordingMetrics struct {
	ops   []string
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ops = append(m.ops, op+":"+status)
}

func (m *recordingMetrics) RecordBytes(direction string, n int64) {
	if m.bytes == nil {
		m.bytes = map[string]int64{}
	}
	m.bytes[direction] += n
}

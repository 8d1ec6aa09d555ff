package files

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"filevault/pkg/bucket"
	"filevault/pkg/database/dbtest"
	"filevault/pkg/models"
)

type RepositoryTestSuite struct {
	suite.Suite
	ctx    context.Context
	db     *sqlx.DB
	repo   *SQLRepository
	bucket *models.StorageBucket
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T())
	s.repo = NewSQLRepository(s.db)

	var err error
	s.bucket, err = bucket.NewRegistry(bucket.NewSQLRepository(s.db)).Create(s.ctx, "my-bucket", "", "system")
	s.Require().NoError(err)
}

func (s *RepositoryTestSuite) insert(owner, name string) *models.StoredFile {
	now := time.Now().UTC()
	f := &models.StoredFile{
		BucketID:    s.bucket.ID,
		Filename:    name,
		Size:        int64(len(name)),
		ContentType: "text/plain",
		StoragePath: fmt.Sprintf("files/test/%s/%s", owner, name),
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.repo.Insert(s.ctx, f))
	return f
}

func (s *RepositoryTestSuite) TestInsertAndGet() {
	f := s.insert("alice", "a.txt")
	s.NotZero(f.ID)
	s.Equal(int64(1), f.Version)

	got, err := s.repo.GetByIDForOwner(s.ctx, f.ID, "alice")
	s.Require().NoError(err)
	s.Equal("a.txt", got.Filename)
	s.Equal("my-bucket", got.BucketName)
	s.Equal(s.bucket.ID, got.BucketID)
	s.Equal(int64(5), got.Size)
	s.Equal(f.StoragePath, got.StoragePath)
	s.Equal(int64(1), got.Version)
	s.WithinDuration(f.CreatedAt, got.CreatedAt, time.Second)
}

func (s *RepositoryTestSuite) TestGetForOtherOwnerIsNotFound() {
	f := s.insert("alice", "a.txt")

	_, err := s.repo.GetByIDForOwner(s.ctx, f.ID, "bob")
	s.ErrorIs(err, ErrFileNotFound)

	_, err = s.repo.GetByIDForOwner(s.ctx, f.ID+100, "alice")
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *RepositoryTestSuite) TestStoragePathUnique() {
	f := s.insert("alice", "a.txt")
	dup := *f
	dup.ID = 0
	s.ErrorIs(s.repo.Insert(s.ctx, &dup), ErrDatabaseError)
}

func (s *RepositoryTestSuite) TestListAndCountByOwner() {
	for i := 0; i < 5; i++ {
		s.insert("alice", fmt.Sprintf("f%d.txt", i))
	}
	s.insert("bob", "other.txt")

	total, err := s.repo.CountByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(5), total)

	page, err := s.repo.ListByOwner(s.ctx, "alice", 2, 2)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal("f2.txt", page[0].Filename)
	s.Equal("f3.txt", page[1].Filename)

	empty, err := s.repo.ListByOwner(s.ctx, "carol", 10, 0)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *RepositoryTestSuite) TestTouchBumpsVersion() {
	f := s.insert("alice", "a.txt")
	later := f.UpdatedAt.Add(time.Minute)

	version, err := s.repo.Touch(s.ctx, f.ID, "alice", 0, later)
	s.Require().NoError(err)
	s.Equal(int64(2), version)

	version, err = s.repo.Touch(s.ctx, f.ID, "alice", 2, later)
	s.Require().NoError(err)
	s.Equal(int64(3), version)

	got, err := s.repo.GetByIDForOwner(s.ctx, f.ID, "alice")
	s.Require().NoError(err)
	s.Equal(int64(3), got.Version)
	s.WithinDuration(later, got.UpdatedAt, time.Second)
	s.WithinDuration(f.CreatedAt, got.CreatedAt, time.Second)
}

func (s *RepositoryTestSuite) TestTouchVersionConflict() {
	f := s.insert("alice", "a.txt")

	_, err := s.repo.Touch(s.ctx, f.ID, "alice", 5, time.Now())
	s.ErrorIs(err, ErrVersionConflict)

	_, err = s.repo.Touch(s.ctx, f.ID, "bob", 0, time.Now())
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *RepositoryTestSuite) TestDeleteForOwner() {
	f := s.insert("alice", "a.txt")

	s.ErrorIs(s.repo.DeleteForOwner(s.ctx, f.ID, "bob"), ErrFileNotFound)
	s.Require().NoError(s.repo.DeleteForOwner(s.ctx, f.ID, "alice"))
	s.ErrorIs(s.repo.DeleteForOwner(s.ctx, f.ID, "alice"), ErrFileNotFound)

	_, err := s.repo.GetByIDForOwner(s.ctx, f.ID, "alice")
	s.ErrorIs(err, ErrFileNotFound)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

package share

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"filevault/pkg/database"
	"filevault/pkg/database/dbtest"
	"filevault/pkg/resilience"
)

const folder = "https://drive.example.com/folders/team"

type sqlRepos struct{}

func (sqlRepos) Shares(db database.DBTX) Repository { return NewSQLRepository(db) }

func testPolicy(attempts uint64, minRequests uint32) *resilience.Policy {
	return resilience.New(resilience.Config{
		Name:             "share-test",
		MaxAttempts:      attempts,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       time.Millisecond,
		FailureRatio:     0.5,
		MinimumRequests:  minRequests,
		Window:           time.Minute,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}, nil)
}

type ServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	db      *sqlx.DB
	service *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T())
	s.service = NewService(s.db, sqlRepos{}, testPolicy(3, 100), nil)
}

func (s *ServiceTestSuite) TestShareThenList() {
	s.Require().NoError(s.service.Share(s.ctx, folder, []string{"a@x.io", "b@x.io"}))

	emails, err := s.service.SharedEmails(s.ctx, folder)
	s.Require().NoError(err)
	s.Equal([]string{"a@x.io", "b@x.io"}, emails)
}

func (s *ServiceTestSuite) TestDuplicatesAndOrderPreserved() {
	s.Require().NoError(s.service.Share(s.ctx, folder, []string{"b@x.io", "a@x.io", "b@x.io"}))
	s.Require().NoError(s.service.Share(s.ctx, folder, []string{"c@x.io"}))

	emails, err := s.service.SharedEmails(s.ctx, folder)
	s.Require().NoError(err)
	s.Equal([]string{"b@x.io", "a@x.io", "b@x.io", "c@x.io"}, emails)
}

func (s *ServiceTestSuite) TestScopedToFolder() {
	s.Require().NoError(s.service.Share(s.ctx, folder, []string{"a@x.io"}))
	s.Require().NoError(s.service.Share(s.ctx, folder+"/sub", []string{"z@x.io"}))

	emails, err := s.service.SharedEmails(s.ctx, folder+"/sub")
	s.Require().NoError(err)
	s.Equal([]string{"z@x.io"}, emails)
}

func (s *ServiceTestSuite) TestUnknownFolderIsEmpty() {
	emails, err := s.service.SharedEmails(s.ctx, "https://nowhere.example.com/x")
	s.Require().NoError(err)
	s.NotNil(emails)
	s.Empty(emails)
}

func (s *ServiceTestSuite) TestValidation() {
	s.ErrorIs(s.service.Share(s.ctx, "", []string{"a@x.io"}), ErrValidation)
	s.ErrorIs(s.service.Share(s.ctx, folder, nil), ErrValidation)
	s.ErrorIs(s.service.Share(s.ctx, folder, []string{"a@x.io", "  "}), ErrValidation)

	emails, err := s.service.SharedEmails(s.ctx, folder)
	s.Require().NoError(err)
	s.Empty(emails)
}

func (s *ServiceTestSuite) TestConcurrentShares() {
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.service.Share(s.ctx, folder, []string{"a@x.io", "b@x.io"}))
		}()
	}
	wg.Wait()

	emails, err := s.service.SharedEmails(s.ctx, folder)
	s.Require().NoError(err)
	s.Len(emails, 10)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestShareRollsBackOnPartialFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	insert := regexp.QuoteMeta(`INSERT INTO share_records (folder_path, email, created_at) VALUES (?, ?, ?)`)
	mock.ExpectBegin()
	mock.ExpectExec(insert).WithArgs(folder, "a@x.io", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(folder, "b@x.io", sqlmock.AnyArg()).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	service := NewService(sqlx.NewDb(mockDB, "sqlmock"), sqlRepos{}, testPolicy(1, 100), nil)
	err = service.Share(context.Background(), folder, []string{"a@x.io", "b@x.io"})
	if !errors.Is(err, database.ErrDatabaseError) {
		t.Fatalf("expected database error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// failingRepos hands out repositories whose every call fails.
type failingRepos struct {
	mu    sync.Mutex
	calls int
}

func (f *failingRepos) Shares(database.DBTX) Repository { return f }

func (f *failingRepos) InsertAll(context.Context, string, []string, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("store down")
}

func (f *failingRepos) EmailsForFolder(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, errors.New("store down")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	repos := &failingRepos{}
	service := NewService(dbtest.Open(t), repos, testPolicy(1, 4), nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := service.Share(ctx, folder, []string{"a@x.io"})
		if err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected the store error, got %v", i, err)
		}
	}

	_, err := service.SharedEmails(ctx, folder)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once the breaker opened, got %v", err)
	}
	if repos.calls != 4 {
		t.Fatalf("open breaker must not reach the store, got %d calls", repos.calls)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	repos := &failingRepos{}
	service := NewService(dbtest.Open(t), repos, testPolicy(3, 100), nil)

	_, err := service.SharedEmails(context.Background(), folder)
	if err == nil {
		t.Fatal("expected failure")
	}
	if repos.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", repos.calls)
	}
}

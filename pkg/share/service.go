// Package share records which addresses a folder was shared with.
package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"filevault/pkg/database"
	"filevault/pkg/log"
	"filevault/pkg/resilience"
)

// Repositories vends share repositories bound to a handle.
type Repositories interface {
	Shares(db database.DBTX) Repository
}

// Metrics receives call outcomes.
type Metrics interface {
	ObserveCall(op string, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCall(string, error) {}

// Service is the sharing service.
type Service struct {
	db      *sqlx.DB
	repos   Repositories
	policy  *resilience.Policy
	metrics Metrics
	now     func() time.Time
}

// NewService wires the sharing service. Calls run through policy; metrics
// may be nil.
func NewService(db *sqlx.DB, repos Repositories, policy *resilience.Policy, metrics Metrics) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		db:      db,
		repos:   repos,
		policy:  policy,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.policy.Execute(ctx, fn)
	if errors.Is(err, resilience.ErrOpen) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// Share records folderPath as shared with every address in emails, all or
// nothing. Duplicate addresses are stored as given.
func (s *Service) Share(ctx context.Context, folderPath string, emails []string) (err error) {
	defer func() { s.metrics.ObserveCall("share", err) }()

	if strings.TrimSpace(folderPath) == "" {
		return fmt.Errorf("%w: folder path is required", ErrValidation)
	}
	if len(emails) == 0 {
		return fmt.Errorf("%w: at least one email is required", ErrValidation)
	}
	for _, e := range emails {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("%w: email must not be blank", ErrValidation)
		}
	}

	at := s.now()
	err = s.execute(ctx, func(ctx context.Context) error {
		return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
			return s.repos.Shares(tx).InsertAll(ctx, folderPath, emails, at)
		})
	})
	if err != nil {
		log.Error().Str("folder_path", folderPath).Err(err).Msg("Failed to share folder")
		return err
	}

	log.Info().Str("folder_path", folderPath).Int("emails", len(emails)).Msg("Folder shared")
	return nil
}

// SharedEmails returns every address folderPath was shared with, in the
// order they were recorded. An unknown folder yields an empty slice.
func (s *Service) SharedEmails(ctx context.Context, folderPath string) (emails []string, err error) {
	defer func() { s.metrics.ObserveCall("shared_emails", err) }()

	err = s.execute(ctx, func(ctx context.Context) error {
		var err error
		emails, err = s.repos.Shares(s.db).EmailsForFolder(ctx, folderPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []string{}
	}
	return emails, nil
}

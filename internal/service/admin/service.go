// Package admin implements the operator-side subscriber list actions.
// Callers are expected to have authenticated the operator already.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmehdipour/subscribers/internal/csvcodec"
	"github.com/jmehdipour/subscribers/internal/metrics"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/util"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("name must be non-empty and email must be valid")

type Store interface {
	Exists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, name, email string, source model.SignupSource) (model.Subscriber, error)
	Update(ctx context.Context, id int64, name, email string) (model.Subscriber, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (model.Subscriber, error)
	List(ctx context.Context) ([]model.Subscriber, error)
	Count(ctx context.Context) (int, error)
}

type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

func (s *Service) List(ctx context.Context) ([]model.Subscriber, error) {
	return s.store.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (model.Subscriber, error) {
	return s.store.Get(ctx, id)
}

// Update applies the same cleaning as public sign-up. Errors are
// ErrInvalidInput, repository.ErrNotFound or repository.ErrDuplicate.
func (s *Service) Update(ctx context.Context, id int64, name, email string) (model.Subscriber, error) {
	name = util.SanitizeText(name)
	email = util.SanitizeEmail(email)
	if !util.ValidName(name) || !util.ValidEmail(email) {
		return model.Subscriber{}, ErrInvalidInput
	}
	sub, err := s.store.Update(ctx, id, name, email)
	if err != nil {
		return model.Subscriber{}, err
	}
	s.log.Info("subscriber updated", zap.Int64("subscriber_id", id))
	return sub, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("subscriber deleted", zap.Int64("subscriber_id", id))
	return nil
}

// ImportCSV inserts every new address in src. A bad header aborts before
// anything is written. Unreadable rows and rows with an invalid name or
// email are skipped as invalid; addresses already stored, or seen earlier in
// the same file, are skipped as duplicates. A store failure stops the import
// and returns the counts so far together with the error.
func (s *Service) ImportCSV(ctx context.Context, src io.Reader) (model.ImportSummary, error) {
	var sum model.ImportSummary

	ir, err := csvcodec.NewImportReader(src)
	if err != nil {
		return sum, err
	}

	for row, err := range ir.Rows() {
		if err != nil {
			if errors.Is(err, csvcodec.ErrMalformedRow) {
				s.skipInvalid(&sum, row.Line, err)
				continue
			}
			return sum, fmt.Errorf("import: %w", err)
		}

		name := util.SanitizeText(row.Name)
		email := util.SanitizeEmail(row.Email)
		if !util.ValidName(name) || !util.ValidEmail(email) {
			s.skipInvalid(&sum, row.Line, ErrInvalidInput)
			continue
		}

		exists, err := s.store.Exists(ctx, email)
		if err != nil {
			return sum, fmt.Errorf("import line %d: %w", row.Line, err)
		}
		if exists {
			s.skipDuplicate(&sum)
			continue
		}

		if _, err := s.store.Insert(ctx, name, email, model.SourceImport); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				s.skipDuplicate(&sum)
				continue
			}
			return sum, fmt.Errorf("import line %d: %w", row.Line, err)
		}
		sum.Inserted++
		metrics.ImportRowsTotal.WithLabelValues("inserted").Inc()
	}

	s.log.Info("csv import finished",
		zap.Int("inserted", sum.Inserted),
		zap.Int("skipped_duplicate", sum.SkippedDuplicate),
		zap.Int("skipped_invalid", sum.SkippedInvalid),
	)
	return sum, nil
}

func (s *Service) skipInvalid(sum *model.ImportSummary, line int, reason error) {
	sum.SkippedInvalid++
	metrics.ImportRowsTotal.WithLabelValues("invalid").Inc()
	s.log.Debug("csv import row skipped", zap.Int("line", line), zap.Error(reason))
}

func (s *Service) skipDuplicate(sum *model.ImportSummary) {
	sum.SkippedDuplicate++
	metrics.ImportRowsTotal.WithLabelValues("duplicate").Inc()
}

// ExportCSV renders the whole list, ordered by id.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return csvcodec.SerializeExport(subs)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmoiron/sqlx"
)

// SignupsRepository is the ClickHouse projection of signup events.
type SignupsRepository interface {
	InsertBatch(ctx context.Context, events []model.SignupEnvelope) error
	DailyCounts(ctx context.Context, since time.Time) ([]model.DailySignups, error)
}

type signupsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewSignupsRepository(ch *sqlx.DB) SignupsRepository {
	return &signupsRepository{ch: ch}
}

// InsertBatch writes events with the clickhouse-go batch idiom: one prepared
// INSERT inside a transaction is sent as a single block on Commit.
func (r *signupsRepository) InsertBatch(ctx context.Context, events []model.SignupEnvelope) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subscriber_signups (event_id, subscriber_id, source, occurred_at)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.EventID, uint64(e.SubscriberID), e.Source.String(), e.OccurredAt.UTC()); err != nil {
			return fmt.Errorf("append %s: %w", e.EventID, err)
		}
	}
	return tx.Commit()
}

func (r *signupsRepository) DailyCounts(ctx context.Context, since time.Time) ([]model.DailySignups, error) {
	const q = `
		SELECT toDate(occurred_at) AS day, source, count() AS count
		FROM subscriber_signups FINAL
		WHERE occurred_at >= ?
		GROUP BY day, source
		ORDER BY day ASC, source ASC
	`
	rows := []model.DailySignups{}
	if err := r.ch.SelectContext(ctx, &rows, q, since.UTC()); err != nil {
		return nil, err
	}
	return rows, nil
}

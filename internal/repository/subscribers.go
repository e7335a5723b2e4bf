package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/util"
	"github.com/jmoiron/sqlx"
)

// SignupsTopic is the outbox topic for subscriber.created events.
const SignupsTopic = "subscribers.signups"

// SubscribersRepository is the subscriber store. Email uniqueness is compared
// on the lower-cased address and backed by a UNIQUE index, so a lost
// check-then-insert race surfaces as ErrDuplicate instead of a second row.
type SubscribersRepository interface {
	Exists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, name, email string, source model.SignupSource) (model.Subscriber, error)
	Update(ctx context.Context, id int64, name, email string) (model.Subscriber, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (model.Subscriber, error)
	List(ctx context.Context) ([]model.Subscriber, error)
	Count(ctx context.Context) (int, error)
}

type SubscribersRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
	now    func() time.Time
}

func NewSubscribersRepository(db *sqlx.DB, outbox OutboxRepository) *SubscribersRepositoryImpl {
	return &SubscribersRepositoryImpl{db: db, outbox: outbox, now: time.Now}
}

var _ SubscribersRepository = (*SubscribersRepositoryImpl)(nil)

const subscriberColumns = `id, name, email, email_normalized, created_at, updated_at`

func (r *SubscribersRepositoryImpl) Exists(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM subscribers WHERE email_normalized = ?`, util.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("subscriber exists: %w", err)
	}
	return n > 0, nil
}

// Insert creates a subscriber and its signup outbox event in one transaction.
// Returns ErrDuplicate if the normalized email is already stored.
func (r *SubscribersRepositoryImpl) Insert(ctx context.Context, name, email string, source model.SignupSource) (model.Subscriber, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	norm := util.NormalizeEmail(email)

	var out model.Subscriber
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM subscribers WHERE email_normalized = ?`, norm); err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO subscribers (name, email, email_normalized, created_at, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`, name, email, norm)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if err := tx.GetContext(ctx, &out,
			`SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("reload: %w", err)
		}

		return r.writeSignupEvent(ctx, tx, out.ID, source)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return model.Subscriber{}, ErrDuplicate
		}
		return model.Subscriber{}, fmt.Errorf("insert subscriber: %w", err)
	}
	return out, nil
}

func (r *SubscribersRepositoryImpl) writeSignupEvent(ctx context.Context, tx *sqlx.Tx, id int64, source model.SignupSource) error {
	now := r.now().UTC()
	env := model.SignupEnvelope{
		EventID:      util.NewEventID(now),
		SubscriberID: id,
		Source:       source,
		OccurredAt:   now,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal signup envelope: %w", err)
	}
	if err := r.outbox.Insert(ctx, tx, "subscriber", strconv.FormatInt(id, 10), SignupsTopic, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

// Update rewrites name and email. The new email must not belong to another
// subscriber (ErrDuplicate); a missing id yields ErrNotFound.
func (r *SubscribersRepositoryImpl) Update(ctx context.Context, id int64, name, email string) (model.Subscriber, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	norm := util.NormalizeEmail(email)

	var out model.Subscriber
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscribers WHERE id = ?`, id); err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		if err := tx.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM subscribers WHERE email_normalized = ? AND id <> ?`, norm, id); err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE subscribers
			SET name = ?, email = ?, email_normalized = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, name, email, norm, id); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}

		return tx.GetContext(ctx, &out, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id)
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate):
		return model.Subscriber{}, err
	default:
		return model.Subscriber{}, fmt.Errorf("update subscriber %d: %w", id, err)
	}
}

func (r *SubscribersRepositoryImpl) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subscriber %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscribersRepositoryImpl) Get(ctx context.Context, id int64) (model.Subscriber, error) {
	var s model.Subscriber
	err := r.db.GetContext(ctx, &s, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("get subscriber %d: %w", id, err)
	}
	return s, nil
}

// List returns every subscriber ordered by id.
func (r *SubscribersRepositoryImpl) List(ctx context.Context) ([]model.Subscriber, error) {
	rows := []model.Subscriber{}
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return rows, nil
}

func (r *SubscribersRepositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscribers`); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

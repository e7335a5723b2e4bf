package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmoiron/sqlx"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type SQLOpts struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// OptsFrom maps a config section onto pool options.
func OptsFrom(c config.DatabaseConfig) SQLOpts {
	return SQLOpts{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

// Open connects the subscriber store database for the given driver.
func Open(driver, dsn string, opts SQLOpts) (*sqlx.DB, error) {
	switch driver {
	case "", DriverMySQL:
		return NewMySQLConnection(dsn, opts)
	case DriverSQLite:
		return NewSQLiteConnection(dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewMySQLConnection opens a *sqlx.DB with sensible pool/timeouts.
// The DSN needs parseTime=true so DATETIME columns scan into time.Time.
func NewMySQLConnection(dsn string, opts SQLOpts) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	db, err := sqlx.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, err
	}
	applyPool(db, opts)

	if err := ping(db, opts.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyPool(db *sqlx.DB, opts SQLOpts) {
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func ping(db *sqlx.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}

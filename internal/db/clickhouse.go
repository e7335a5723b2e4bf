package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

type ClickHouseOpts struct {
	DSN string // e.g. clickhouse://default:@localhost:9000/subscribers?dial_timeout=5s
	SQLOpts
}

// NewClickHouseConnection opens the reporting store used by the signup projection.
func NewClickHouseConnection(opts ClickHouseOpts) (*sqlx.DB, error) {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	db, err := sqlx.Open("clickhouse", opts.DSN)
	if err != nil {
		return nil, err
	}
	applyPool(db, opts.SQLOpts)

	if err := ping(db, opts.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

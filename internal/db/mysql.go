package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// PoolOpts tunes the database/sql pool behind a store connection.
type PoolOpts struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// NewMySQLConnection opens the production store. The DSN should not set
// multiStatements; migrations are executed statement by statement.
func NewMySQLConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	db, err := sqlx.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, err
	}
	return configure(db, opts, 5*time.Second)
}

// NewStoreConnection opens the local store for the configured driver.
func NewStoreConnection(driver, dsn string, opts PoolOpts) (*sqlx.DB, error) {
	switch driver {
	case DriverMySQL, "":
		return NewMySQLConnection(dsn, opts)
	case DriverSQLite:
		return NewSQLiteConnection(dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func configure(db *sqlx.DB, opts PoolOpts, defaultPing time.Duration) (*sqlx.DB, error) {
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

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPing
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

const (
	// DriverPostgres selects the PostgreSQL backend
	DriverPostgres = "postgres"
	// DriverMemory selects the in-process backend used for development and tests
	DriverMemory = "memory"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
}

// Ensure DB implements Store interface
var _ Store = (*DB)(nil)

// Config holds database configuration
type Config struct {
	Driver           string
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// Open returns the store selected by cfg.Driver. PostgreSQL stores are
// migrated before being returned.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == DriverMemory {
		logrus.Warn("Using in-memory store, data will not survive a restart")
		return NewMemoryStore(), nil
	}

	db, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewConnection creates a new database connection
func NewConnection(cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}

	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{db}, nil
}

// Ping verifies the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

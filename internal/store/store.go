package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bighogz/insider-clusters/internal/logging"
	_ "github.com/lib/pq"
	logger "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNullColumn is returned when a bronze row lacks a required numeric column.
var ErrNullColumn = errors.New("store: required column is null")

// Store owns the database handle. It is not safe for concurrent use: the
// SQLite handle is pinned to a single connection.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	log     *logger.Entry
}

// New wraps an already opened handle.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{
		DB:      db,
		Dialect: d,
		log:     logging.Component("store").WithField("dialect", d.Name),
	}
}

// Open connects to the configured engine and pings it.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.Name == SQLite.Name && isFilePath(dsn) {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}

	s := New(db, d)
	if d.Name == SQLite.Name {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			s.log.WithError(err).Warn("failed to set WAL mode")
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
			s.log.WithError(err).Warn("failed to set synchronous mode")
		}
	}
	s.log.Info("database connection established")
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// NewWriter returns an incremental writer committing every batchSize writes.
func (s *Store) NewWriter(batchSize int) *Writer {
	return NewWriter(s.DB, s.Dialect, batchSize)
}

// WithWriter runs fn with a writer that is flushed when fn returns.
func (s *Store) WithWriter(ctx context.Context, batchSize int, fn func(*Writer) error) error {
	return WithWriter(ctx, s.DB, s.Dialect, batchSize, fn)
}

func (s *Store) rebind(q string) string {
	return s.Dialect.Rebind(q)
}

func isFilePath(dsn string) bool {
	return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

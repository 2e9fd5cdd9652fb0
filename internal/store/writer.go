package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bighogz/insider-clusters/internal/logging"
	logger "github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of writes buffered before a commit.
const DefaultBatchSize = 100

var (
	ErrArityMismatch     = errors.New("store: column and value counts differ")
	ErrInvalidIdentifier = errors.New("store: invalid table or column name")
	ErrWriterClosed      = errors.New("store: writer is closed")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Writer buffers inserts in an open transaction and commits every batchSize
// writes. Rows below the threshold are durable only after Flush or Close.
// A Writer is not safe for concurrent use.
type Writer struct {
	db        *sql.DB
	dialect   Dialect
	tx        *sql.Tx
	batchSize int
	backlog   int
	committed int
	closed    bool
	queries   map[string]string
	log       *logger.Entry
}

func NewWriter(db *sql.DB, d Dialect, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		db:        db,
		dialect:   d,
		batchSize: batchSize,
		queries:   make(map[string]string),
		log:       logging.Component("writer"),
	}
}

// WithWriter acquires a writer, runs fn and releases it. On success the
// pending tail is committed; when fn fails or panics the uncommitted tail is
// rolled back. Batches committed earlier are kept either way.
func WithWriter(ctx context.Context, db *sql.DB, d Dialect, batchSize int, fn func(*Writer) error) (err error) {
	w := NewWriter(db, d, batchSize)
	defer func() {
		if r := recover(); r != nil {
			w.Rollback()
			panic(r)
		}
	}()
	if err = fn(w); err != nil {
		if rbErr := w.Rollback(); rbErr != nil {
			w.log.WithError(rbErr).Warn("rollback of pending writes failed")
		}
		return err
	}
	return w.Close()
}

// Write inserts one row and returns its surrogate id.
func (w *Writer) Write(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if len(columns) != len(values) {
		return 0, fmt.Errorf("%w: %d columns, %d values for %s", ErrArityMismatch, len(columns), len(values), table)
	}
	query, err := w.insertQuery(table, columns)
	if err != nil {
		return 0, err
	}
	if w.tx == nil {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to begin write batch: %w", err)
		}
		w.tx = tx
	}

	var id int64
	if w.dialect.returning {
		if err := w.tx.QueryRowContext(ctx, query, values...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
	} else {
		res, err := w.tx.ExecContext(ctx, query, values...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("insert into %s: last insert id: %w", table, err)
		}
	}

	w.backlog++
	if w.backlog >= w.batchSize {
		if err := w.Flush(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Flush commits every pending write.
func (w *Writer) Flush() error {
	if w.tx == nil {
		return nil
	}
	tx, n := w.tx, w.backlog
	w.tx = nil
	w.backlog = 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %d writes: %w", n, err)
	}
	w.committed += n
	w.log.WithField("rows", n).Debug("committed write batch")
	return nil
}

// Rollback discards writes that have not been committed yet.
func (w *Writer) Rollback() error {
	if w.tx == nil {
		return nil
	}
	tx, n := w.tx, w.backlog
	w.tx = nil
	w.backlog = 0
	w.log.WithField("rows", n).Warn("discarding uncommitted writes")
	return tx.Rollback()
}

// Close flushes pending writes. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush()
}

// Pending is the number of writes not yet committed.
func (w *Writer) Pending() int { return w.backlog }

// Committed is the number of writes committed so far.
func (w *Writer) Committed() int { return w.committed }

func (w *Writer) insertQuery(table string, columns []string) (string, error) {
	key := table + "|" + strings.Join(columns, ",")
	if q, ok := w.queries[key]; ok {
		return q, nil
	}
	if len(columns) == 0 || !identRe.MatchString(table) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	for _, c := range columns {
		if !identRe.MatchString(c) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, c)
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(len(columns)))
	if w.dialect.returning {
		q += " RETURNING id"
	}
	q = w.dialect.Rebind(q)
	w.queries[key] = q
	return q, nil
}

// RowWriter is the write side used by the pipeline stages.
type RowWriter interface {
	Write(ctx context.Context, table string, columns []string, values []any) (int64, error)
}

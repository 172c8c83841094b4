package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"datahub/internal/store"
)

const (
	// maxDepth ограничивает рекурсивные CTE на случай испорченных данных.
	maxDepth = 1000
	// writeAttempts: повторы serializable-транзакции при 40001.
	writeAttempts = 3
)

// Store: реализация store.Store поверх database/sql + pgx.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	// Postgres хранит микросекунды
	return &Store{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

func (s *Store) ReadTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) WriteTx(ctx context.Context, fn func(store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err = s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		slog.DebugContext(ctx, "serialization conflict, retrying", "attempt", attempt)
	}
	return err
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&pgTx{tx: tx, now: s.now}); err != nil {
		return mapErr(err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

type pgTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *pgTx) Nodes() store.NodeStore { return nodes{t} }
func (t *pgTx) Files() store.FileStore { return files{t} }
func (t *pgTx) Users() store.UserStore { return users{t} }

// mapErr переводит коды Postgres в ошибки store.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "25006": // read_only_sql_transaction
			return store.ErrReadOnly
		}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func count(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var ok bool
	if err := tx.QueryRowContext(ctx, "select exists ("+query+")", args...).Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

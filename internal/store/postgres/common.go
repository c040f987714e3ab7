// Package postgres provides the durable tracking backend, registered under
// the postgres:// scheme.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tracklab-io/tracklab/internal/platform/postgres"
	"github.com/tracklab-io/tracklab/internal/store"
)

func init() {
	store.Register("postgres", func(ctx context.Context, uri *url.URL) (store.Store, error) {
		cfg, err := postgres.ConfigForURL(uri.String())
		if err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	})
}

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres-backed tracking backend.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", entity, id, store.ErrNotFound)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

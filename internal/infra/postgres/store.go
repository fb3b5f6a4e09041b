// Package postgres persists gateway state with bun on a shared connection
// pool. Tenant channel bindings are read through a separate pgx loader.
package postgres

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store implements the app-facing session, conversation, rule, and catalog
// persistence on one bun handle.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Connect opens a bun handle for a postgres URL.
func Connect(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// DB exposes the handle for migrations and seeding.
func (s *Store) DB() *bun.DB {
	return s.db
}

func isIntegrityViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx, so repositories can be
// bound to either a pool or a running transaction.
type Querier interface {
	sqlx.ExtContext
}

// Tx exposes the repositories that take part in a unit of work.
type Tx interface {
	Orders() OrderRepository
	Carts() CartRepository
	Products() ProductRepository
}

// UnitOfWork runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type unitOfWork struct {
	db *sqlx.DB
}

// NewUnitOfWork creates a UnitOfWork backed by read-committed transactions.
func NewUnitOfWork(db *sqlx.DB) UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txScope{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txScope struct {
	tx *sqlx.Tx
}

func (s *txScope) Orders() OrderRepository     { return NewOrderRepository(s.tx) }
func (s *txScope) Carts() CartRepository       { return NewCartRepository(s.tx) }
func (s *txScope) Products() ProductRepository { return NewProductRepository(s.tx) }

// isUniqueViolation reports whether err is a Postgres unique_violation on the given constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

// rebind rewrites ? placeholders produced by sqlx.In into Postgres positional ones.
func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UnitOfWork opens request-scoped transactions.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one open transaction bound to one logical operation.
//
// Statements use positional ? markers and are rebound through the dialect.
// Exactly one of Commit or Rollback must be called; a second call returns
// sql.ErrTxDone. A failed statement leaves the transaction open so the caller
// can roll it back: Tx never rolls back on its own after an error. Release
// returns the underlying resources, rolls back a transaction that is still
// open, and is safe to call more than once. A Tx is not safe for concurrent use.
type Tx interface {
	Dialect() Dialect
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
	Release()
}

// NewUnitOfWork picks the transaction strategy for the dialect: a dedicated
// connection per transaction for MySQL, a pool-bound transaction object for
// SQL Server.
func NewUnitOfWork(db *sql.DB, dialect Dialect) UnitOfWork {
	if dialect.Name() == DriverMSSQL {
		return NewPoolUnitOfWork(db, dialect)
	}
	return NewConnUnitOfWork(db, dialect)
}

// ConnUnitOfWork acquires a pooled connection and begins a native
// transaction on it. Release hands the connection back to the pool.
type ConnUnitOfWork struct {
	db      *sql.DB
	dialect Dialect
}

// NewConnUnitOfWork creates the connection-per-transaction strategy.
func NewConnUnitOfWork(db *sql.DB, dialect Dialect) *ConnUnitOfWork {
	return &ConnUnitOfWork{db: db, dialect: dialect}
}

func (u *ConnUnitOfWork) Begin(ctx context.Context) (Tx, error) {
	conn, err := u.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txContext{dialect: u.dialect, tx: sqlTx, closer: conn.Close}, nil
}

// PoolUnitOfWork builds the transaction object directly on the shared pool.
type PoolUnitOfWork struct {
	db      *sql.DB
	dialect Dialect
}

// NewPoolUnitOfWork creates the pool-bound transaction strategy.
func NewPoolUnitOfWork(db *sql.DB, dialect Dialect) *PoolUnitOfWork {
	return &PoolUnitOfWork{db: db, dialect: dialect}
}

func (u *PoolUnitOfWork) Begin(ctx context.Context) (Tx, error) {
	sqlTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txContext{dialect: u.dialect, tx: sqlTx}, nil
}

type txContext struct {
	dialect  Dialect
	tx       *sql.Tx
	closer   func() error
	done     bool
	released bool
}

func (t *txContext) Dialect() Dialect { return t.dialect }

func (t *txContext) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txContext) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txContext) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txContext) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *txContext) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func (t *txContext) Release() {
	if t.released {
		return
	}
	t.released = true
	if !t.done {
		t.done = true
		_ = t.tx.Rollback()
	}
	if t.closer != nil {
		_ = t.closer()
	}
}

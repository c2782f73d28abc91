package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
)

// Fields maps column names to values for inserts and updates. Keys outside
// the schema's writable set are dropped.
type Fields map[string]any

// Scanner is satisfied by both *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Schema describes how an entity maps onto one table. Table and column names
// come only from here, never from request data.
type Schema[T any] struct {
	Table      string
	PrimaryKey string
	Columns    []string // select list, in Scan order
	Writable   []string
	Scan       func(s Scanner) (*T, error)
}

func (s Schema[T]) checkColumn(column string) error {
	if slices.Contains(s.Columns, column) {
		return nil
	}
	return fmt.Errorf("%w: %s.%s", domainErrors.ErrUnknownColumn, s.Table, column)
}

// writable filters f down to the whitelist, in whitelist order so generated
// statements are stable.
func (s Schema[T]) writable(f Fields) ([]string, []any) {
	cols := make([]string, 0, len(s.Writable))
	args := make([]any, 0, len(s.Writable))
	for _, c := range s.Writable {
		if v, ok := f[c]; ok {
			cols = append(cols, c)
			args = append(args, v)
		}
	}
	return cols, args
}

// Repository implements record CRUD once for any schema, on either dialect.
// Lookups that match nothing return nil with a nil error; a non-nil error
// always means the backend failed or the call was malformed.
type Repository[T any] struct {
	schema Schema[T]
}

// NewRepository creates a repository for the given schema.
func NewRepository[T any](schema Schema[T]) *Repository[T] {
	return &Repository[T]{schema: schema}
}

// Schema returns the descriptor the repository was built with.
func (r *Repository[T]) Schema() Schema[T] { return r.schema }

// Find retrieves a row by primary key.
func (r *Repository[T]) Find(ctx context.Context, tx Tx, id any) (*T, error) {
	query := tx.Dialect().Select(SelectSpec{
		Columns: r.schema.Columns,
		Table:   r.schema.Table,
		Where:   r.schema.PrimaryKey + " = ?",
	})
	return r.scanOne(tx.QueryRow(ctx, query, id))
}

// FirstMatching retrieves the first row whose column equals value.
func (r *Repository[T]) FirstMatching(ctx context.Context, tx Tx, column string, value any) (*T, error) {
	return r.first(ctx, tx, column, value, false)
}

// FirstMatchingForUpdate is FirstMatching with a row lock held until the
// transaction commits or rolls back.
func (r *Repository[T]) FirstMatchingForUpdate(ctx context.Context, tx Tx, column string, value any) (*T, error) {
	return r.first(ctx, tx, column, value, true)
}

func (r *Repository[T]) first(ctx context.Context, tx Tx, column string, value any, lock bool) (*T, error) {
	if err := r.schema.checkColumn(column); err != nil {
		return nil, err
	}
	query := tx.Dialect().Select(SelectSpec{
		Columns:   r.schema.Columns,
		Table:     r.schema.Table,
		Where:     column + " = ?",
		Single:    true,
		ForUpdate: lock,
	})
	return r.scanOne(tx.QueryRow(ctx, query, value))
}

// ExistsWhere reports whether any row has column equal to value.
func (r *Repository[T]) ExistsWhere(ctx context.Context, tx Tx, column string, value any) (bool, error) {
	if err := r.schema.checkColumn(column); err != nil {
		return false, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", r.schema.Table, column)
	if err := tx.QueryRow(ctx, query, value).Scan(&count); err != nil {
		return false, fmt.Errorf("count %s: %w", r.schema.Table, err)
	}
	return count > 0, nil
}

// ScalarValue reads one column of the first row matching whereColumn.
// It returns nil when no row matches. Text columns come back as string.
func (r *Repository[T]) ScalarValue(ctx context.Context, tx Tx, column, whereColumn string, whereValue any) (any, error) {
	if err := r.schema.checkColumn(column); err != nil {
		return nil, err
	}
	if err := r.schema.checkColumn(whereColumn); err != nil {
		return nil, err
	}
	query := tx.Dialect().Select(SelectSpec{
		Columns: []string{column},
		Table:   r.schema.Table,
		Where:   whereColumn + " = ?",
		Single:  true,
	})
	var v any
	if err := tx.QueryRow(ctx, query, whereValue).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s.%s: %w", r.schema.Table, column, err)
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

// Insert writes the whitelisted fields and returns the stored row. It returns
// nil when nothing writable was supplied or no key was generated.
func (r *Repository[T]) Insert(ctx context.Context, tx Tx, fields Fields) (*T, error) {
	cols, args := r.schema.writable(fields)
	if len(cols) == 0 {
		return nil, nil
	}
	d := tx.Dialect()
	id, err := d.InsertID(ctx, tx, d.Insert(r.schema.Table, r.schema.PrimaryKey, cols), args)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.schema.Table, err)
	}
	if id == 0 {
		return nil, nil
	}
	return r.Find(ctx, tx, id)
}

// Update writes the whitelisted fields and re-reads the row. It returns nil
// when the row does not exist.
func (r *Repository[T]) Update(ctx context.Context, tx Tx, id any, fields Fields) (*T, error) {
	cols, args := r.schema.writable(fields)
	if len(cols) > 0 {
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", r.schema.Table, setClause(cols), r.schema.PrimaryKey)
		if _, err := tx.Exec(ctx, query, append(args, id)...); err != nil {
			return nil, fmt.Errorf("update %s: %w", r.schema.Table, err)
		}
	}
	return r.Find(ctx, tx, id)
}

// UpdateWhere updates the row only while guardColumn still equals guardValue
// and returns the number of rows changed. It is a compare-and-swap: a caller
// that sees 0 lost the race or found the row already moved on.
func (r *Repository[T]) UpdateWhere(ctx context.Context, tx Tx, id any, fields Fields, guardColumn string, guardValue any) (int64, error) {
	if err := r.schema.checkColumn(guardColumn); err != nil {
		return 0, err
	}
	cols, args := r.schema.writable(fields)
	if len(cols) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?",
		r.schema.Table, setClause(cols), r.schema.PrimaryKey, guardColumn)
	res, err := tx.Exec(ctx, query, append(args, id, guardValue)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", r.schema.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Delete removes a row by primary key and reports whether one existed.
func (r *Repository[T]) Delete(ctx context.Context, tx Tx, id any) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.schema.Table, r.schema.PrimaryKey)
	res, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", r.schema.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *Repository[T]) scanOne(row *sql.Row) (*T, error) {
	v, err := r.schema.Scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", r.schema.Table, err)
	}
	return v, nil
}

func setClause(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " = ?"
	}
	return strings.Join(parts, ", ")
}

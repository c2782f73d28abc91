package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
)

// Driver names a supported backend. It is read from configuration once at
// startup; nothing else in the repository switches on it.
type Driver string

const (
	DriverMySQL Driver = "mysql"
	DriverMSSQL Driver = "mssql"
)

// SelectSpec describes a single-table read. Where uses positional ? markers.
type SelectSpec struct {
	Columns   []string
	Table     string
	Where     string
	Single    bool // cap the result at one row
	ForUpdate bool // take a row lock held until the transaction ends
}

// Dialect captures the SQL differences between the two backends: placeholder
// syntax, the single-row cap, row locking, and how an insert reports the
// generated key.
type Dialect interface {
	Name() Driver
	// Rebind rewrites positional ? markers into the backend's syntax.
	Rebind(query string) string
	Select(s SelectSpec) string
	Insert(table, primaryKey string, columns []string) string
	// InsertID executes a statement built by Insert and returns the generated
	// key, or 0 when the backend reported none.
	InsertID(ctx context.Context, tx Tx, query string, args []any) (int64, error)
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch Driver(strings.ToLower(driver)) {
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverMSSQL, "sqlserver":
		return mssqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// --- MySQL ---

type mysqlDialect struct{}

func (mysqlDialect) Name() Driver { return DriverMySQL }

func (mysqlDialect) Rebind(query string) string { return query }

func (mysqlDialect) Select(s SelectSpec) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(s.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.Table)
	if s.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where)
	}
	if s.Single {
		b.WriteString(" LIMIT 1")
	}
	if s.ForUpdate {
		b.WriteString(" FOR UPDATE")
	}
	return b.String()
}

func (mysqlDialect) Insert(table, _ string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
}

func (mysqlDialect) InsertID(ctx context.Context, tx Tx, query string, args []any) (int64, error) {
	res, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read insert id: %w", err)
	}
	return id, nil
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// --- SQL Server ---

type mssqlDialect struct{}

func (mssqlDialect) Name() Driver { return DriverMSSQL }

// Rebind numbers markers @p1..@pN, skipping quoted literals.
func (mssqlDialect) Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (mssqlDialect) Select(s SelectSpec) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Single {
		b.WriteString("TOP 1 ")
	}
	b.WriteString(strings.Join(s.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.Table)
	if s.ForUpdate {
		b.WriteString(" WITH (UPDLOCK, ROWLOCK)")
	}
	if s.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where)
	}
	return b.String()
}

func (mssqlDialect) Insert(table, primaryKey string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		table, strings.Join(columns, ", "), primaryKey, placeholders(len(columns)))
}

func (mssqlDialect) InsertID(ctx context.Context, tx Tx, query string, args []any) (int64, error) {
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

func (mssqlDialect) IsUniqueViolation(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2601 || msErr.Number == 2627
	}
	return false
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

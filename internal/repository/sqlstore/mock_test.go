package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// dialects runs a subtest per backend with a fresh mock and an open Tx.
func dialects(t *testing.T, fn func(t *testing.T, mock sqlmock.Sqlmock, tx Tx)) {
	t.Helper()
	for _, name := range []string{"mysql", "mssql"} {
		t.Run(name, func(t *testing.T) {
			mock, tx := beginMock(t, name)
			fn(t, mock, tx)
			tx.Release()
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func beginMock(t *testing.T, driver string) (sqlmock.Sqlmock, Tx) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d, err := DialectFor(driver)
	require.NoError(t, err)

	mock.ExpectBegin()
	tx, err := NewUnitOfWork(db, d).Begin(context.Background())
	require.NoError(t, err)
	return mock, tx
}

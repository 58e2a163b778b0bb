package database_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wotcworks/wotc-app/wotc/database"
)

func TestDBSatisfiesQueryableAndExecutable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var wrapped database.Queryable = &database.DB{DB: db}

	mock.ExpectQuery("SELECT name FROM state_portal_configs").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Texas Workforce Commission"))

	var name string
	require.NoError(t, wrapped.QueryRowContext(context.Background(),
		"SELECT name FROM state_portal_configs WHERE id = 1").Scan(&name))
	assert.Equal(t, "Texas Workforce Commission", name)

	mock.ExpectExec("UPDATE state_portal_configs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var exec database.Executable = &database.DB{DB: db}
	result, err := exec.ExecContext(context.Background(),
		"UPDATE state_portal_configs SET disabled = true WHERE id = 1")
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxSatisfiesQueryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	var wrapped database.Queryable = &database.Tx{Tx: tx}
	rows, err := wrapped.QueryContext(context.Background(), "SELECT COUNT(1) FROM submission_jobs")
	require.NoError(t, err)

	require.True(t, rows.Next())
	var count int
	require.NoError(t, rows.Scan(&count))
	assert.Equal(t, 2, count)
	require.NoError(t, rows.Close())

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

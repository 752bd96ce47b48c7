package dao_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dao"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/dialect/sql"
)

var (
	incrementSQL = regexp.QuoteMeta("UPDATE SEQUENCE SET value = value + 1 WHERE name = ?")
	readSQL      = regexp.QuoteMeta("SELECT value FROM SEQUENCE WHERE name = ?")
)

func TestNextIDCommitsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(incrementSQL).WithArgs("SEQ_ORDER").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readSQL).WithArgs("SEQ_ORDER").WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))
	mock.ExpectCommit()

	id, err := dao.NextID(context.Background(), sql.OpenDB(dialect.MySQL, db), "SEQ_ORDER")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIDUnknownSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(incrementSQL).WithArgs("NOPE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = dao.NextID(context.Background(), sql.OpenDB(dialect.MySQL, db), "NOPE")
	require.Error(t, err)
	assert.True(t, iscore.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIDRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(incrementSQL).WithArgs("SEQ_ORDER").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readSQL).WithArgs("SEQ_ORDER").WillReturnError(boom)
	mock.ExpectRollback()

	_, err = dao.NextID(context.Background(), sql.OpenDB(dialect.MySQL, db), "SEQ_ORDER")
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIDSequenceTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE id_seq SET value = value + 1 WHERE name = $1")).WithArgs("SEQ_ORDER").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM id_seq WHERE name = $1")).WithArgs("SEQ_ORDER").WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	mock.ExpectCommit()

	orders := registry(t, dao.WithSequenceTable("id_seq")).MustDAO("Order")
	id, err := orders.NextID(context.Background(), sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = registry(t).MustDAO("Tag").NextID(context.Background(), sql.OpenDB(dialect.Postgres, db))
	assert.True(t, iscore.IsConfigError(err))
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

var holder = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")

const (
	createTable = "CREATE TABLE IF NOT EXISTS state"
	selectState = "SELECT bucket, payload FROM state WHERE namespace = $1"
	upsertState = "INSERT INTO state(namespace,bucket,payload) VALUES($1,$2,$3) ON CONFLICT(namespace,bucket) DO UPDATE SET payload=EXCLUDED.payload"
)

func openMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		assert.Equal(t, defaultDriver, driverName)
		return db, nil
	})
	t.Cleanup(restore)
	return db, mock
}

func TestNewStoreCreatesTableAndLoadsNamespace(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"bucket", "payload"}).
		AddRow(memory.BucketAccounts, []byte(`{"`+string(holder)+`":{"address":"`+string(holder)+`","balance":"12"}}`)).
		AddRow("unknown", []byte(`{}`))
	mock.ExpectQuery(regexp.QuoteMeta(selectState)).WithArgs("token").WillReturnRows(rows)

	store, err := NewStore("", "token", domain.NewRulesEngine())
	require.NoError(t, err)
	assert.Equal(t, "token", store.Namespace())

	err = store.View(context.Background(), func(v domain.TransactionView) error {
		acct, ok := v.FindAccount(holder)
		assert.True(t, ok)
		assert.Equal(t, "12", acct.Balance.String())
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionPersistsEveryBucket(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectState)).WithArgs(defaultNamespace).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore("postgres://example", "", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, bucket := range memory.Buckets {
		mock.ExpectExec(regexp.QuoteMeta(upsertState)).
			WithArgs(defaultNamespace, bucket, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateAccount(holder, func(a *domain.Account) error {
			a.Balance = domain.NewAmount(1)
			return nil
		})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnUpsertFailure(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectState)).WithArgs("registry").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore("", "registry", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertState)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateAccount(holder, func(a *domain.Account) error {
			a.Balance = domain.NewAmount(3000)
			return nil
		})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert token")
	assert.NoError(t, mock.ExpectationsWereMet())

	err = store.View(context.Background(), func(v domain.TransactionView) error {
		_, ok := v.FindAccount(holder)
		assert.False(t, ok, "failed write must not leave the account in memory")
		return nil
	})
	require.NoError(t, err)
}

func TestRunInTransactionSkipsPersistOnError(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectState)).WithArgs("token").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore("", "token", nil)
	require.NoError(t, err)

	_, err = store.RunInTransaction(context.Background(), func(domain.Transaction) error {
		return domain.ErrInsufficientBalance
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreSurfacesSetupErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") })
		defer restore()
		_, err := NewStore("", "token", nil)
		assert.ErrorContains(t, err, "open postgres")
	})
	t.Run("ddl", func(t *testing.T) {
		_, mock := openMock(t)
		mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnError(errors.New("denied"))
		_, err := NewStore("", "token", nil)
		assert.ErrorContains(t, err, "ensure state table")
	})
	t.Run("decode", func(t *testing.T) {
		_, mock := openMock(t)
		mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(selectState)).WithArgs("token").
			WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}).AddRow(memory.BucketItems, []byte("{")))
		_, err := NewStore("", "token", nil)
		assert.ErrorContains(t, err, "decode items")
	})
}

package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

func newRepoWithMock(t *testing.T) (AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(db), mock
}

var accountCols = []string{"id", "handle", "first_name", "last_name", "display_name", "email", "bio",
	"is_active", "last_login_at", "created_at", "updated_at"}

func TestAccountRepository_Create(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	a := &Account{ID: "a1", Handle: "alice", Email: "a@x.com", IsActive: true, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts`).
		WithArgs("a1", "alice", "", "", "", "a@x.com", "", true, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_DuplicateIsConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), &Account{ID: "a1"})
	assert.True(t, apperror.IsConflict(err))
}

func TestAccountRepository_FindByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^SELECT .+ FROM accounts WHERE id = \?$`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow("a1", "alice", "Alice", "Liddell", "alice", "a@x.com", "", true, nil, now, now))

	a, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Handle)
	assert.True(t, a.IsActive)
	assert.Nil(t, a.LastLoginAt)
}

func TestAccountRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM accounts WHERE id`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "nope")
	assert.True(t, apperror.IsNotFound(err))
}

func TestAccountRepository_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`DELETE FROM accounts WHERE id = \?`).WithArgs("a1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(context.Background(), "a1"))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`DELETE FROM accounts WHERE id = \?`).WithArgs("a1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.True(t, apperror.IsNotFound(repo.Delete(context.Background(), "a1")))
	})
}

func TestAccountRepository_List(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`(?s)FROM accounts ORDER BY created_at DESC LIMIT \? OFFSET \?`).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow("a1", "alice", "", "", "", "a@x.com", "", true, nil, now, now).
			AddRow("a2", "bob", "", "", "", "b@x.com", "", false, now, now, now))

	items, total, err := repo.List(context.Background(), 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.NotNil(t, items[1].LastLoginAt)
}

func TestAccountRepository_List_QueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("db down"))

	_, _, err := repo.List(context.Background(), 0, 50)
	assert.ErrorContains(t, err, "counting accounts")
}

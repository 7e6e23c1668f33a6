package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
	"github.com/keyxmakerx/rootapp/internal/plugins/accounts/accountstest"
)

func newService(t *testing.T) (accounts.AccountService, *accountstest.Repository) {
	t.Helper()
	repo := accountstest.NewRepository()
	return accounts.NewAccountService(repo), repo
}

func TestCreate_NormalizesAndActivates(t *testing.T) {
	svc, _ := newService(t)

	a, err := svc.Create(context.Background(), accounts.CreateAccountInput{
		Handle: " alice ", Email: "  A@X.com ", DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Handle)
	assert.Equal(t, "a@x.com", a.Email)
	assert.True(t, a.IsActive)
	assert.NotEmpty(t, a.ID)
}

func TestCreate_StripsMarkupFromNames(t *testing.T) {
	svc, _ := newService(t)

	a, err := svc.Create(context.Background(), accounts.CreateAccountInput{
		Handle: "alice", Email: "a@x.com",
		FirstName: "<b>Alice</b>", LastName: " Liddell ", DisplayName: `<img src=x onerror="x()">Al`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.FirstName)
	assert.Equal(t, "Liddell", a.LastName)
	assert.Equal(t, "Al", a.DisplayName)
}

func TestCreate_Conflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "other@x.com"})
	assert.True(t, apperror.IsConflict(err))

	_, err = svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice2", Email: "A@x.com"})
	assert.True(t, apperror.IsConflict(err))
}

func TestIsActive(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	active, err := svc.IsActive(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = svc.SetActive(ctx, a.ID, false)
	require.NoError(t, err)

	active, err = svc.IsActive(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = svc.IsActive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSetActive_Missing(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SetActive(context.Background(), "missing", true)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.Equal(t, 0, repo.Len())
	assert.True(t, apperror.IsNotFound(svc.Delete(ctx, a.ID)))
}

func TestList_ClampsPage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 1, list.Total)
	assert.Len(t, list.Accounts, 1)
}

func TestUpdateLastLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, accounts.CreateAccountInput{Handle: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateLastLogin(ctx, a.ID))
	got, err := svc.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)
}

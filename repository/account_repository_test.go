package repository

import (
	"context"
	"testing"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_SystemAccountsSeeded(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	accounts, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 4)

	ids := make([]entities.AccountID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
		assert.Equal(t, entities.Amount(0), a.Balance)
	}
	assert.Equal(t, []entities.AccountID{-4, -3, -2, -1}, ids)
}

func TestAccountRepository_EnsureAndUpdate(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing account returns nil", func(t *testing.T) {
		account, err := repo.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("ensure creates zero balance once", func(t *testing.T) {
		account, err := repo.EnsureAccount(ctx, 555)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, entities.AccountID(555), account.ID)
		assert.Equal(t, entities.Amount(0), account.Balance)

		require.NoError(t, repo.UpdateBalance(ctx, 555, entities.MustParseAmount("12.5")))

		again, err := repo.EnsureAccount(ctx, 555)
		require.NoError(t, err)
		assert.Equal(t, entities.MustParseAmount("12.5"), again.Balance)
	})

	t.Run("update unknown account", func(t *testing.T) {
		err := repo.UpdateBalance(ctx, 424242, 1)
		assert.ErrorIs(t, err, domain.ErrAccountUnresolved)
	})

	t.Run("negative balance rejected outside reserve", func(t *testing.T) {
		_, err := repo.EnsureAccount(ctx, 777)
		require.NoError(t, err)
		assert.Error(t, repo.UpdateBalance(ctx, 777, -1))

		assert.NoError(t, repo.UpdateBalance(ctx, entities.DefaultSystemAccounts().Reserve, -1))
		require.NoError(t, repo.UpdateBalance(ctx, entities.DefaultSystemAccounts().Reserve, 0))
	})
}

func TestAccountRepository_SumBalances(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()
	system := entities.DefaultSystemAccounts()

	testDB.SeedBalances(t, map[entities.AccountID]entities.Amount{
		1:                  entities.MustParseAmount("40"),
		2:                  entities.MustParseAmount("60"),
		system.Treasury:    entities.MustParseAmount("1000"),
		system.FineRevenue: entities.MustParseAmount("5"),
	})

	total, err := repo.SumBalances(ctx, []entities.AccountID{system.Treasury})
	require.NoError(t, err)
	assert.Equal(t, entities.MustParseAmount("105"), total)

	all, err := repo.SumBalances(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.MustParseAmount("1105"), all)
}

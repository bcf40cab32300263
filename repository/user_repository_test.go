package repository

import (
	"context"
	"testing"

	"arenaserver/models"
	"arenaserver/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByID(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("user not found", func(t *testing.T) {
		user, err := repo.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("user found", func(t *testing.T) {
		created, err := repo.Create(ctx, "alice", decimal.RequireFromString("1.00"))
		require.NoError(t, err)

		user, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, user)

		assert.Equal(t, "alice", user.Username)
		assert.True(t, user.Balance.Equal(decimal.RequireFromString("1.00")))
		assert.False(t, user.Banned)
		assert.Equal(t, 0, user.ReportCount)
	})
}

func TestUserRepository_BalanceChanges(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()
	user := testutil.InsertUser(t, testDB.DB, "bob", "1.00")

	t.Run("deduct within balance", func(t *testing.T) {
		require.NoError(t, repo.DeductBalance(ctx, user.ID, decimal.RequireFromString("0.25")))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("0.75")))
	})

	t.Run("deduct beyond balance", func(t *testing.T) {
		err := repo.DeductBalance(ctx, user.ID, decimal.RequireFromString("5.00"))
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("0.75")))
	})

	t.Run("add", func(t *testing.T) {
		require.NoError(t, repo.AddBalance(ctx, user.ID, decimal.RequireFromString("0.45")))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("1.20")))
	})

	t.Run("non positive amounts", func(t *testing.T) {
		assert.Error(t, repo.AddBalance(ctx, user.ID, decimal.Zero))
		assert.Error(t, repo.DeductBalance(ctx, user.ID, decimal.RequireFromString("-1")))
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.Error(t, repo.AddBalance(ctx, 424242, decimal.RequireFromString("1")))
		assert.Error(t, repo.DeductBalance(ctx, 424242, decimal.RequireFromString("1")))
	})
}

func TestUserRepository_Moderation(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()
	user := testutil.InsertUser(t, testDB.DB, "carol", "0")

	for want := 1; want <= 3; want++ {
		count, err := repo.IncrementReportCount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	require.NoError(t, repo.SetBanned(ctx, user.ID, true))
	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Banned)
	assert.Equal(t, 3, got.ReportCount)
}

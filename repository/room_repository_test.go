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

func TestRoomRepository_Lifecycle(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()

	room := testutil.CreateTestKeywordRoom("chess", "friday")
	require.NoError(t, repo.Create(ctx, room))
	assert.NotZero(t, room.ID)
	assert.False(t, room.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "friday", got.KeywordValue())
	assert.Equal(t, models.RoomStatusWaiting, got.Status)

	require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusPlaying))
	require.NoError(t, repo.UpdateBetting(ctx, room.ID, decimal.RequireFromString("2.50"), models.BettingStatusLocked))

	got, err = repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPlaying, got.Status)
	assert.Equal(t, models.BettingStatusLocked, got.BettingStatus)
	assert.True(t, got.BettingAmount.Equal(decimal.RequireFromString("2.5")))

	require.NoError(t, repo.Delete(ctx, room.ID))
	got, err = repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusWaiting))
}

func TestRoomRepository_Members(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()
	alice := testutil.InsertUser(t, testDB.DB, "alice", "1.00")
	bob := testutil.InsertUser(t, testDB.DB, "bob", "1.00")

	room := testutil.CreateTestRoom("tictactoe")
	require.NoError(t, repo.Create(ctx, room))

	require.NoError(t, repo.AddMember(ctx, &models.RoomMember{RoomID: room.ID, UserID: alice.ID, IsHost: true, JoinOrder: 0}))
	require.NoError(t, repo.AddMember(ctx, &models.RoomMember{RoomID: room.ID, UserID: bob.ID, JoinOrder: 1}))

	members, err := repo.GetMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, alice.ID, members[0].UserID)
	assert.True(t, members[0].IsHost)

	t.Run("a user sits in one room only", func(t *testing.T) {
		other := testutil.CreateTestRoom("tictactoe")
		require.NoError(t, repo.Create(ctx, other))

		err := repo.AddMember(ctx, &models.RoomMember{RoomID: other.ID, UserID: alice.ID})
		assert.ErrorIs(t, err, models.ErrStore)
	})

	t.Run("host passes on leave", func(t *testing.T) {
		require.NoError(t, repo.RemoveMember(ctx, room.ID, alice.ID))
		require.NoError(t, repo.SetHost(ctx, room.ID, bob.ID))

		members, err := repo.GetMembers(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, bob.ID, members[0].UserID)
		assert.True(t, members[0].IsHost)
	})

	t.Run("delete cascades members", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, room.ID))

		members, err := repo.GetMembers(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})
}

func TestRoomRepository_GetAllOrdersByCreation(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()

	first := testutil.CreateTestRoom("checkers")
	second := testutil.CreateTestRoom("chess")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	rooms, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
}

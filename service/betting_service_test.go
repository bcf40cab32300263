package service

import (
	"context"
	"errors"
	"testing"

	"arenaserver/game"
	"arenaserver/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func playingRoom(p1, p2 int64) *LiveRoom {
	room := &models.Room{
		ID:            7,
		GameType:      string(game.TypeTicTacToe),
		Status:        models.RoomStatusPlaying,
		BettingAmount: testStake,
		BettingStatus: models.BettingStatusProposed,
	}
	members := []*models.RoomMember{
		{RoomID: 7, UserID: p1, IsHost: true},
		{RoomID: 7, UserID: p2, JoinOrder: 1},
	}
	lr := newLiveRoom(room, members)
	lr.Game = newGameInstance(game.TicTacToe{}, members)
	return lr
}

func TestBettingService_Accept_RollsBackOnDebitFailure(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockRoomRepo := new(MockRoomRepository)
	mockProposalRepo := new(MockBettingProposalRepository)
	mockLedgerRepo := new(MockBettingTransactionRepository)
	mockPublisher := new(MockEventPublisher)

	mockUoW.SetRepositories(mockUserRepo, mockRoomRepo, mockProposalRepo, mockLedgerRepo, nil)
	mockUoW.SetEventPublisher(mockPublisher)

	service := NewBettingService(mockFactory, testStake, testFeeRate)
	lr := playingRoom(1, 2)
	amount := decimal.RequireFromString("0.50")

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockProposalRepo.On("GetPending", ctx, int64(7), int64(1)).Return(&models.BettingProposal{
		ID: 3, RoomID: 7, ProposerID: 1, Amount: amount, Status: models.ProposalStatusPending,
	}, nil)
	mockUserRepo.On("GetForUpdate", ctx, int64(1)).Return(&models.User{ID: 1, Balance: decimal.RequireFromString("1.00")}, nil)
	mockUserRepo.On("GetForUpdate", ctx, int64(2)).Return(&models.User{ID: 2, Balance: decimal.RequireFromString("1.00")}, nil)
	mockUserRepo.On("DeductBalance", ctx, int64(1), amount).Return(nil)
	mockUserRepo.On("DeductBalance", ctx, int64(2), amount).Return(errors.New("connection reset"))
	mockLedgerRepo.On("Record", ctx, mock.MatchedBy(func(e *models.BettingTransaction) bool {
		return *e.UserID == 1 && e.Type == models.TransactionTypeStakeLock && e.Amount.Equal(amount.Neg())
	})).Return(nil)
	mockPublisher.On("Publish", mock.Anything).Return()

	err := service.Accept(ctx, lr, 2, amount)

	assert.Error(t, err)
	assert.Equal(t, models.BettingStatusProposed, lr.Room.BettingStatus)
	assert.True(t, testStake.Equal(lr.Room.BettingAmount))
	mockUoW.AssertNotCalled(t, "Commit")
	mockUoW.AssertCalled(t, "Rollback")
	mockRoomRepo.AssertNotCalled(t, "UpdateBetting", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockProposalRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestBettingService_Accept_RequiresMatchingProposal(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockProposalRepo := new(MockBettingProposalRepository)
	mockUoW.SetRepositories(nil, nil, mockProposalRepo, nil, nil)

	service := NewBettingService(mockFactory, testStake, testFeeRate)
	lr := playingRoom(1, 2)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockProposalRepo.On("GetPending", ctx, int64(7), int64(1)).Return(&models.BettingProposal{
		ID: 3, RoomID: 7, ProposerID: 1, Amount: decimal.RequireFromString("0.50"),
	}, nil).Once()
	mockProposalRepo.On("GetPending", ctx, int64(7), int64(1)).Return(nil, nil).Once()

	err := service.Accept(ctx, lr, 2, decimal.RequireFromString("0.40"))
	assert.ErrorIs(t, err, models.ErrProposalNotFound)

	err = service.Accept(ctx, lr, 2, decimal.RequireFromString("0.50"))
	assert.ErrorIs(t, err, models.ErrProposalNotFound)

	mockUoW.AssertNotCalled(t, "Commit")
}

func TestBettingService_ProposeValidation(t *testing.T) {
	ctx := context.Background()
	service := NewBettingService(new(MockUnitOfWorkFactory), testStake, testFeeRate)

	tests := []struct {
		name    string
		mutate  func(lr *LiveRoom)
		userID  int64
		amount  string
		wantErr error
	}{
		{"not a member", func(*LiveRoom) {}, 9, "0.25", models.ErrNotInRoom},
		{"no opponent", func(lr *LiveRoom) { lr.Members = lr.Members[:1] }, 1, "0.25", models.ErrNoOpponent},
		{"already locked", func(lr *LiveRoom) { lr.Room.BettingStatus = models.BettingStatusLocked }, 1, "0.25", models.ErrAlreadyLocked},
		{"game over", func(lr *LiveRoom) { lr.Game.Result = &game.Result{IsDraw: true} }, 1, "0.25", models.ErrNotPlaying},
		{"zero amount", func(*LiveRoom) {}, 1, "0", models.ErrInvalidAmount},
		{"negative amount", func(*LiveRoom) {}, 1, "-1", models.ErrInvalidAmount},
		{"sub-cent amount", func(*LiveRoom) {}, 1, "0.001", models.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := playingRoom(1, 2)
			tt.mutate(lr)
			_, err := service.Propose(ctx, lr, tt.userID, decimal.RequireFromString(tt.amount))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBettingService_ProposeAndReject(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("0.10")
	room, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	require.NoError(t, a.rooms.WithUserRoom(ctx, p2, func(lr *LiveRoom) error {
		_, err := a.betting.Propose(ctx, lr, p2, decimal.RequireFromString("0.25"))
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		return nil
	}))

	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		if _, err := a.betting.Propose(ctx, lr, p1, decimal.RequireFromString("0.30")); err != nil {
			return err
		}
		proposal, err := a.betting.Propose(ctx, lr, p1, decimal.RequireFromString("0.50"))
		if err != nil {
			return err
		}
		assert.True(t, decimal.RequireFromString("0.50").Equal(proposal.Amount))

		info, err := a.betting.Info(ctx, lr)
		require.NoError(t, err)
		assert.Equal(t, models.BettingStatusProposed, info.Status)
		require.Len(t, info.Proposals, 1)
		assert.Equal(t, p1, info.Proposals[0].ProposerID)
		return nil
	}))

	require.NoError(t, a.rooms.WithUserRoom(ctx, p2, func(lr *LiveRoom) error {
		err := a.betting.Accept(ctx, lr, p2, decimal.RequireFromString("0.50"))
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)

		rejected, err := a.betting.Reject(ctx, lr, p2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rejected)
		return nil
	}))

	assert.Equal(t, models.BettingStatusUnlocked, room.Room.BettingStatus)
	assertDecimal(t, "0.25", room.Room.BettingAmount)
	assertDecimal(t, "1.00", a.store.Balance(p1))
	assertDecimal(t, "0.10", a.store.Balance(p2))
	assert.Empty(t, a.store.LedgerOf(models.TransactionTypeStakeLock))
}

func TestBettingService_LockedStakeCannotChange(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)
	a.lockStake(t, p1, p2, "0.25")

	require.NoError(t, a.rooms.WithUserRoom(ctx, p2, func(lr *LiveRoom) error {
		_, err := a.betting.Propose(ctx, lr, p2, decimal.RequireFromString("0.50"))
		assert.ErrorIs(t, err, models.ErrAlreadyLocked)

		_, err = a.betting.Reject(ctx, lr, p2)
		assert.ErrorIs(t, err, models.ErrAlreadyLocked)
		return nil
	}))
	assertDecimal(t, "0.75", a.store.Balance(p1))
}

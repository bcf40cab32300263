package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"arenaserver/events"
	"arenaserver/game"
	"arenaserver/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testStake   = decimal.RequireFromString("0.25")
	testFeeRate = decimal.RequireFromString("0.10")
)

type testArena struct {
	store   *MemoryStore
	factory *MemoryUnitOfWorkFactory
	rooms   RoomService
	betting BettingService
}

func newTestArena() *testArena {
	store := NewMemoryStore()
	return newTestArenaOn(store)
}

func newTestArenaOn(store *MemoryStore) *testArena {
	factory := NewMemoryUnitOfWorkFactory(store)
	betting := NewBettingService(factory, testStake, testFeeRate)
	return &testArena{
		store:   store,
		factory: factory,
		rooms:   NewRoomService(factory, betting, testStake),
		betting: betting,
	}
}

func (a *testArena) join(t *testing.T, userID int64, gameType game.Type) (*LiveRoom, JoinOutcome) {
	t.Helper()
	var room *LiveRoom
	var outcome JoinOutcome
	err := a.rooms.JoinRandom(context.Background(), userID, gameType, func(lr *LiveRoom, o JoinOutcome) error {
		room, outcome = lr, o
		return nil
	})
	require.NoError(t, err)
	return room, outcome
}

func (a *testArena) move(userID int64, cell int) (*MoveOutcome, error) {
	var out *MoveOutcome
	err := a.rooms.WithUserRoom(context.Background(), userID, func(lr *LiveRoom) error {
		var err error
		out, err = a.rooms.Move(context.Background(), lr, userID, json.RawMessage(strconv.Itoa(cell)))
		return err
	})
	return out, err
}

// play alternates moves between x and o starting with x
func (a *testArena) play(t *testing.T, x, o int64, cells ...int) *MoveOutcome {
	t.Helper()
	var last *MoveOutcome
	for i, cell := range cells {
		player := x
		if i%2 == 1 {
			player = o
		}
		out, err := a.move(player, cell)
		require.NoError(t, err, "move %d at cell %d", i, cell)
		last = out
	}
	return last
}

func (a *testArena) lockStake(t *testing.T, proposer, acceptor int64, amount string) {
	t.Helper()
	ctx := context.Background()
	stake := decimal.RequireFromString(amount)
	require.NoError(t, a.rooms.WithUserRoom(ctx, proposer, func(lr *LiveRoom) error {
		_, err := a.betting.Propose(ctx, lr, proposer, stake)
		return err
	}))
	require.NoError(t, a.rooms.WithUserRoom(ctx, acceptor, func(lr *LiveRoom) error {
		return a.betting.Accept(ctx, lr, acceptor, stake)
	}))
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}

func TestRoomService_SecondJoinStartsGame(t *testing.T) {
	a := newTestArena()
	p1 := a.store.SeedUser("1.00")
	p2 := a.store.SeedUser("1.00")

	first, outcome := a.join(t, p1, game.TypeTicTacToe)
	assert.True(t, outcome.Created)
	assert.Equal(t, models.RoomStatusWaiting, first.Room.Status)

	second, outcome := a.join(t, p2, game.TypeTicTacToe)
	assert.True(t, outcome.Started)
	assert.Same(t, first, second)
	assert.Equal(t, models.RoomStatusPlaying, second.Room.Status)
	assert.Equal(t, []int64{p1, p2}, second.MemberIDs())
	assert.Equal(t, game.SideX, second.Game.Sides[p1])
	assert.Equal(t, game.SideO, second.Game.Sides[p2])

	stored, ok := a.store.Room(second.ID())
	require.True(t, ok)
	assert.Equal(t, models.RoomStatusPlaying, stored.Status)
	assert.Len(t, a.store.RoomMembers(second.ID()), 2)
}

func TestRoomService_ThirdJoinOpensNewRoom(t *testing.T) {
	a := newTestArena()
	p1, p2, p3 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00"), a.store.SeedUser("1.00")

	full, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	fresh, outcome := a.join(t, p3, game.TypeTicTacToe)
	assert.True(t, outcome.Created)
	assert.NotEqual(t, full.ID(), fresh.ID())
	assert.Equal(t, models.RoomStatusWaiting, fresh.Room.Status)
	assert.Len(t, full.Members, 2)
}

func TestRoomService_MatchesOldestRoomOfSameType(t *testing.T) {
	a := newTestArena()
	p1, p2, p3, p4 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00"), a.store.SeedUser("1.00"), a.store.SeedUser("1.00")

	ticTacToe, _ := a.join(t, p1, game.TypeTicTacToe)
	checkers, _ := a.join(t, p2, game.TypeCheckers)

	var keyworded *LiveRoom
	require.NoError(t, a.rooms.JoinKeyword(context.Background(), p3, game.TypeTicTacToe, "friends", func(lr *LiveRoom, o JoinOutcome) error {
		keyworded = lr
		assert.True(t, o.Created)
		return nil
	}))
	assert.NotEqual(t, ticTacToe.ID(), keyworded.ID())

	joined, outcome := a.join(t, p4, game.TypeTicTacToe)
	assert.True(t, outcome.Started)
	assert.Equal(t, ticTacToe.ID(), joined.ID())
	assert.Len(t, checkers.Members, 1)
	assert.Len(t, keyworded.Members, 1)
}

func TestRoomService_JoinKeywordPairsSameKeyword(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")

	var first, second *LiveRoom
	require.NoError(t, a.rooms.JoinKeyword(ctx, p1, game.TypeChess, "club", func(lr *LiveRoom, o JoinOutcome) error {
		first = lr
		return nil
	}))
	require.NoError(t, a.rooms.JoinKeyword(ctx, p2, game.TypeChess, " club ", func(lr *LiveRoom, o JoinOutcome) error {
		second = lr
		assert.True(t, o.Started)
		return nil
	}))
	assert.Same(t, first, second)
	assert.Equal(t, game.SideWhite, second.Game.Sides[p1])

	err := a.rooms.JoinKeyword(ctx, p1, game.TypeChess, "   ", func(*LiveRoom, JoinOutcome) error { return nil })
	assert.Error(t, err)
}

func TestRoomService_RejoinKeepsWaitingSeat(t *testing.T) {
	a := newTestArena()
	p1 := a.store.SeedUser("1.00")

	room, _ := a.join(t, p1, game.TypeCheckers)

	again, outcome := a.join(t, p1, game.TypeCheckers)
	assert.True(t, outcome.Rejoined)
	assert.Same(t, room, again)
	assert.Len(t, again.Members, 1)
}

func TestRoomService_JoinFromFinishedRoomFindsNewOpponent(t *testing.T) {
	a := newTestArena()
	p1, p2, p3 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00"), a.store.SeedUser("1.00")

	finished, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)
	last := a.play(t, p1, p2, 1, 4, 2, 5, 3)
	require.NotNil(t, last.Result)

	waiting, _ := a.join(t, p3, game.TypeTicTacToe)
	require.NotEqual(t, finished.ID(), waiting.ID())

	room, outcome := a.join(t, p1, game.TypeTicTacToe)
	assert.False(t, outcome.Rejoined)
	assert.True(t, outcome.Started)
	assert.Equal(t, waiting.ID(), room.ID())

	roomID, ok := a.rooms.RoomOf(p1)
	require.True(t, ok)
	assert.Equal(t, waiting.ID(), roomID)

	members := a.store.RoomMembers(finished.ID())
	require.Len(t, members, 1)
	assert.Equal(t, p2, members[0].UserID)
	stored, _ := a.store.Room(finished.ID())
	assert.Equal(t, models.RoomStatusWaiting, stored.Status)
}

func TestRoomService_JoinDuringGameForfeitsAndRequeues(t *testing.T) {
	a := newTestArena()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")

	var stale []LeaveOutcome
	a.rooms.OnStaleLeave(func(lr *LiveRoom, o LeaveOutcome) error {
		stale = append(stale, o)
		return nil
	})

	playing, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	room, outcome := a.join(t, p1, game.TypeTicTacToe)
	assert.True(t, outcome.Created)
	assert.NotEqual(t, playing.ID(), room.ID())

	require.Len(t, stale, 1)
	assert.True(t, stale[0].Forfeit)
	assert.Equal(t, p2, stale[0].RemainingID)
	require.NotNil(t, stale[0].Result)
	assert.Equal(t, game.SideO, stale[0].Result.Winner)
}

func TestRoomService_JoinOtherTypeLeavesStaleRoom(t *testing.T) {
	a := newTestArena()
	p1 := a.store.SeedUser("1.00")

	var stale []LeaveOutcome
	a.rooms.OnStaleLeave(func(lr *LiveRoom, o LeaveOutcome) error {
		stale = append(stale, o)
		return nil
	})

	old, _ := a.join(t, p1, game.TypeTicTacToe)
	fresh, outcome := a.join(t, p1, game.TypeChess)

	assert.True(t, outcome.Created)
	require.Len(t, stale, 1)
	assert.True(t, stale[0].RoomDeleted)
	assert.Equal(t, old.ID(), stale[0].RoomID)
	_, exists := a.store.Room(old.ID())
	assert.False(t, exists)

	roomID, ok := a.rooms.RoomOf(p1)
	assert.True(t, ok)
	assert.Equal(t, fresh.ID(), roomID)
}

func TestRoomService_ConcurrentJoinsPairEveryone(t *testing.T) {
	a := newTestArena()
	const players = 10

	ids := make([]int64, players)
	for i := range ids {
		ids[i] = a.store.SeedUser("1.00")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			err := a.rooms.JoinRandom(context.Background(), userID, game.TypeTicTacToe, func(*LiveRoom, JoinOutcome) error { return nil })
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	rooms := make(map[int64]bool)
	for _, id := range ids {
		roomID, ok := a.rooms.RoomOf(id)
		require.True(t, ok)
		rooms[roomID] = true
	}
	assert.Len(t, rooms, players/2)
	for roomID := range rooms {
		assert.Len(t, a.store.RoomMembers(roomID), 2)
		stored, _ := a.store.Room(roomID)
		assert.Equal(t, models.RoomStatusPlaying, stored.Status)
	}
}

func TestRoomService_DecisiveGamePaysWinner(t *testing.T) {
	a := newTestArena()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	room, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	a.lockStake(t, p1, p2, "0.25")
	assertDecimal(t, "0.75", a.store.Balance(p1))
	assertDecimal(t, "0.75", a.store.Balance(p2))
	locks := a.store.LedgerOf(models.TransactionTypeStakeLock)
	require.Len(t, locks, 2)
	assertDecimal(t, "-0.25", locks[0].Amount)

	last := a.play(t, p1, p2, 4, 0, 1, 3, 7)
	require.NotNil(t, last.Result)
	assert.Equal(t, game.SideX, last.Result.Winner)
	require.NotNil(t, last.Settlement)
	assertDecimal(t, "0.50", last.Settlement.Pot)
	assertDecimal(t, "0.45", last.Settlement.Payout)
	assertDecimal(t, "0.05", last.Settlement.Fee)
	require.NotNil(t, last.Settlement.WinnerID)
	assert.Equal(t, p1, *last.Settlement.WinnerID)

	assertDecimal(t, "1.20", a.store.Balance(p1))
	assertDecimal(t, "0.75", a.store.Balance(p2))

	fees := a.store.LedgerOf(models.TransactionTypePlatformFee)
	require.Len(t, fees, 1)
	assertDecimal(t, "0.05", fees[0].Amount)
	assert.Nil(t, fees[0].UserID)
	assert.Empty(t, a.store.LedgerOf(models.TransactionTypeRefund))

	stored, _ := a.store.Room(room.ID())
	assert.Equal(t, models.RoomStatusFinished, stored.Status)
	assert.Equal(t, models.BettingStatusUnlocked, stored.BettingStatus)
	assertDecimal(t, "0.25", stored.BettingAmount)
	assert.Equal(t, 1, a.store.MatchCount())
	assert.Len(t, a.store.EventsOf(events.EventTypeBalanceChange), 3)
	assert.Len(t, a.store.EventsOf(events.EventTypeBettingSettled), 1)
	assert.Len(t, a.store.EventsOf(events.EventTypeMatchFinished), 1)
}

func TestRoomService_DrawRefundsBoth(t *testing.T) {
	a := newTestArena()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)
	a.lockStake(t, p1, p2, "0.25")

	last := a.play(t, p1, p2, 1, 2, 3, 5, 4, 6, 8, 7, 9)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.IsDraw)
	require.NotNil(t, last.Settlement)
	assert.True(t, last.Settlement.Refunded)
	assert.Nil(t, last.Settlement.WinnerID)

	assertDecimal(t, "1.00", a.store.Balance(p1))
	assertDecimal(t, "1.00", a.store.Balance(p2))
	assert.Len(t, a.store.LedgerOf(models.TransactionTypeRefund), 2)
	assert.Empty(t, a.store.LedgerOf(models.TransactionTypePlatformFee))
	assert.Empty(t, a.store.LedgerOf(models.TransactionTypePayout))
}

func TestRoomService_UnstakedGameRecordsMatchOnly(t *testing.T) {
	a := newTestArena()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	last := a.play(t, p1, p2, 4, 0, 1, 3, 7)
	require.NotNil(t, last.Settlement)
	assert.False(t, last.Settlement.Staked)
	assertDecimal(t, "1.00", a.store.Balance(p1))
	assertDecimal(t, "1.00", a.store.Balance(p2))
	assert.Equal(t, 1, a.store.MatchCount())
	assert.Empty(t, a.store.EventsOf(events.EventTypeBettingSettled))
}

func TestRoomService_SettlementHappensOnce(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)
	a.lockStake(t, p1, p2, "0.25")
	first := a.play(t, p1, p2, 4, 0, 1, 3, 7).Settlement

	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		again, err := a.betting.Settle(ctx, lr)
		require.NoError(t, err)
		assert.Same(t, first, again)

		// Losing the in-memory flag must not pay out a recorded match twice.
		lr.Game.Settled = false
		lr.Game.Settlement = nil
		lr.Room.BettingStatus = models.BettingStatusLocked
		_, err = a.betting.Settle(ctx, lr)
		return err
	}))

	assertDecimal(t, "1.20", a.store.Balance(p1))
	assert.Len(t, a.store.LedgerOf(models.TransactionTypePayout), 1)
	assert.Equal(t, 1, a.store.MatchCount())
}

func TestRoomService_MoveRejections(t *testing.T) {
	a := newTestArena()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	a.join(t, p1, game.TypeTicTacToe)

	_, err := a.move(p1, 4)
	assert.ErrorIs(t, err, models.ErrNotPlaying)

	a.join(t, p2, game.TypeTicTacToe)
	_, err = a.move(p2, 4)
	assert.ErrorIs(t, err, game.ErrInvalidMove)

	a.play(t, p1, p2, 4, 0, 1, 3, 7)
	_, err = a.move(p2, 8)
	assert.ErrorIs(t, err, game.ErrInvalidMove)

	_, err = a.move(a.store.SeedUser("1.00"), 0)
	assert.ErrorIs(t, err, models.ErrNotInRoom)
}

func TestRoomService_ChessPromotionThroughRoom(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	room, _ := a.join(t, p1, game.TypeChess)
	a.join(t, p2, game.TypeChess)

	var board [8][8]game.Piece
	board[7][4] = "wK"
	board[0][7] = "bK"
	board[1][0] = "wP"
	room.Game.State = game.ChessState{Board: board, Turn: game.SideWhite, FullMove: 40}

	var out *MoveOutcome
	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		var err error
		out, err = a.rooms.Move(ctx, lr, p1, json.RawMessage(`{"from":{"row":1,"col":0},"to":{"row":0,"col":0}}`))
		return err
	}))
	require.NotNil(t, out.PromotionPending)
	assert.Equal(t, game.Position{Row: 0, Col: 0}, *out.PromotionPending)
	assert.Nil(t, out.Result)

	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		var err error
		out, err = a.rooms.Promote(ctx, lr, p1, game.Position{Row: 0, Col: 0}, "queen")
		return err
	}))
	assert.Nil(t, out.PromotionPending)
	state := out.State.(game.ChessState)
	assert.Equal(t, game.Piece("wQ"), state.Board[0][0])
	assert.Equal(t, game.SideBlack, state.Turn)
	assert.Len(t, room.Game.Moves, 2)
	assert.Equal(t, "queen", room.Game.Moves[1].Promotion)
}

func TestRoomService_LeaveForfeitsToOpponent(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	room, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)
	a.lockStake(t, p1, p2, "0.25")
	_, err := a.move(p1, 4)
	require.NoError(t, err)

	var outcome LeaveOutcome
	require.NoError(t, a.rooms.Leave(ctx, p1, func(lr *LiveRoom, o LeaveOutcome) error {
		outcome = o
		return nil
	}))

	assert.True(t, outcome.Forfeit)
	assert.False(t, outcome.RoomDeleted)
	assert.Equal(t, p2, outcome.RemainingID)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, ReasonForfeit, outcome.Result.Reason)
	assert.Equal(t, game.SideO, outcome.Result.Winner)
	require.NotNil(t, outcome.Settlement)
	assert.Equal(t, p2, *outcome.Settlement.WinnerID)

	assertDecimal(t, "0.75", a.store.Balance(p1))
	assertDecimal(t, "1.20", a.store.Balance(p2))

	stored, _ := a.store.Room(room.ID())
	assert.Equal(t, models.RoomStatusWaiting, stored.Status)
	members := a.store.RoomMembers(room.ID())
	require.Len(t, members, 1)
	assert.Equal(t, p2, members[0].UserID)
	assert.True(t, members[0].IsHost)

	assert.Equal(t, []int64{p2}, room.MemberIDs())
	assert.False(t, room.Game.Over())
	assert.Empty(t, room.Game.Moves)
	_, inRoom := a.rooms.RoomOf(p1)
	assert.False(t, inRoom)

	p3 := a.store.SeedUser("1.00")
	rejoined, joinOutcome := a.join(t, p3, game.TypeTicTacToe)
	assert.True(t, joinOutcome.Started)
	assert.Equal(t, room.ID(), rejoined.ID())
}

func TestRoomService_LastLeaveDeletesRoom(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1 := a.store.SeedUser("1.00")
	room, _ := a.join(t, p1, game.TypeCheckers)

	var outcome LeaveOutcome
	require.NoError(t, a.rooms.Leave(ctx, p1, func(lr *LiveRoom, o LeaveOutcome) error {
		outcome = o
		return nil
	}))
	assert.True(t, outcome.RoomDeleted)
	assert.False(t, outcome.Forfeit)
	_, exists := a.store.Room(room.ID())
	assert.False(t, exists)

	assert.ErrorIs(t, a.rooms.Leave(ctx, p1, nil), models.ErrNotInRoom)
	assert.ErrorIs(t, a.rooms.WithRoom(ctx, room.ID(), func(*LiveRoom) error { return nil }), models.ErrNotInRoom)
}

func TestRoomService_Rematch(t *testing.T) {
	a := newTestArena()
	ctx := context.Background()
	p1, p2 := a.store.SeedUser("1.00"), a.store.SeedUser("1.00")
	room, _ := a.join(t, p1, game.TypeTicTacToe)
	a.join(t, p2, game.TypeTicTacToe)

	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		_, err := a.rooms.RequestRematch(ctx, lr, p1)
		assert.ErrorIs(t, err, models.ErrGameNotOver)
		return nil
	}))

	a.play(t, p1, p2, 4, 0, 1, 3, 7)
	firstMatch := room.Game.MatchID

	var outcome *RematchOutcome
	require.NoError(t, a.rooms.WithUserRoom(ctx, p1, func(lr *LiveRoom) error {
		var err error
		outcome, err = a.rooms.RequestRematch(ctx, lr, p1)
		return err
	}))
	assert.False(t, outcome.Started)
	assert.Equal(t, 1, outcome.Votes)
	assert.Equal(t, 2, outcome.Needed)

	require.NoError(t, a.rooms.WithUserRoom(ctx, p2, func(lr *LiveRoom) error {
		var err error
		outcome, err = a.rooms.RequestRematch(ctx, lr, p2)
		return err
	}))
	assert.True(t, outcome.Started)
	assert.NotEqual(t, firstMatch, room.Game.MatchID)
	assert.Equal(t, models.RoomStatusPlaying, room.Room.Status)
	assert.Equal(t, 0, room.RematchVotes())

	_, err := a.move(p1, 0)
	assert.NoError(t, err)
}

func TestRoomService_RestoreRefundsLockedRooms(t *testing.T) {
	store := NewMemoryStore()
	p1, p2, p3 := store.SeedUser("0.50"), store.SeedUser("0.50"), store.SeedUser("1.00")

	seed := newTestArenaOn(store)
	locked, _ := seed.join(t, p1, game.TypeTicTacToe)
	seed.join(t, p2, game.TypeTicTacToe)
	waiting, _ := seed.join(t, p3, game.TypeChess)

	// Simulate a crash while the stake was in escrow.
	room, _ := store.Room(locked.ID())
	room.BettingStatus = models.BettingStatusLocked
	room.BettingAmount = decimal.RequireFromString("0.50")
	store.PutRoom(room)
	store.PutRoom(models.Room{ID: 999, GameType: "checkers", Status: models.RoomStatusWaiting})

	restarted := newTestArenaOn(store)
	require.NoError(t, restarted.rooms.Restore(context.Background()))

	assertDecimal(t, "1.00", store.Balance(p1))
	assertDecimal(t, "1.00", store.Balance(p2))
	assert.Len(t, store.LedgerOf(models.TransactionTypeRefund), 2)

	stored, _ := store.Room(locked.ID())
	assert.Equal(t, models.BettingStatusUnlocked, stored.BettingStatus)
	assert.Equal(t, models.RoomStatusPlaying, stored.Status)
	_, exists := store.Room(999)
	assert.False(t, exists)

	roomID, ok := restarted.rooms.RoomOf(p2)
	assert.True(t, ok)
	assert.Equal(t, locked.ID(), roomID)

	require.NoError(t, restarted.rooms.WithRoom(context.Background(), waiting.ID(), func(lr *LiveRoom) error {
		assert.Equal(t, models.RoomStatusWaiting, lr.Room.Status)
		assert.NotNil(t, lr.Game)
		return nil
	}))

	_, err := restarted.move(p1, 4)
	assert.NoError(t, err)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"arenaserver/game"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ReasonForfeit is the result reason of a game abandoned by one side
const ReasonForfeit = "forfeit"

// JoinOutcome describes what a join did
type JoinOutcome struct {
	// Rejoined is set when the user already held a seat in a matching room
	Rejoined bool
	// Created is set when a new room was opened for the user
	Created bool
	// Started is set when the join filled the room and the game began
	Started bool
}

// JoinFunc runs under the room lock once a join committed
type JoinFunc func(lr *LiveRoom, outcome JoinOutcome) error

// LeaveOutcome describes what a leave did
type LeaveOutcome struct {
	UserID      int64
	RoomID      int64
	RoomDeleted bool
	Forfeit     bool
	MatchID     uuid.UUID
	Result      *game.Result
	FinalState  game.State
	Settlement  *Settlement
	RemainingID int64
}

// LeaveFunc runs under the room lock once a leave committed
type LeaveFunc func(lr *LiveRoom, outcome LeaveOutcome) error

// MoveOutcome is the state of a game after an accepted move
type MoveOutcome struct {
	MatchID          uuid.UUID
	Side             game.Side
	State            game.State
	PromotionPending *game.Position
	Result           *game.Result
	Settlement       *Settlement
}

// RematchOutcome reports the rematch vote count and whether a new game began
type RematchOutcome struct {
	Votes   int
	Needed  int
	Started bool
}

// roomService implements the RoomService interface. joinMu serialises
// matchmaking so two waiting users never each open a room. mu guards the
// room index; each LiveRoom carries its own lock. Lock order is joinMu,
// then a room lock, then mu.
type roomService struct {
	uowFactory   UnitOfWorkFactory
	settler      Settler
	defaultStake decimal.Decimal

	joinMu sync.Mutex

	mu       sync.RWMutex
	rooms    map[int64]*LiveRoom
	userRoom map[int64]int64

	staleLeave LeaveFunc
}

// NewRoomService creates a new room service
func NewRoomService(uowFactory UnitOfWorkFactory, settler Settler, defaultStake decimal.Decimal) RoomService {
	return &roomService{
		uowFactory:   uowFactory,
		settler:      settler,
		defaultStake: defaultStake,
		rooms:        make(map[int64]*LiveRoom),
		userRoom:     make(map[int64]int64),
	}
}

// OnStaleLeave sets the callback run when a join moves a user out of a room
// of another game type or keyword
func (s *roomService) OnStaleLeave(fn LeaveFunc) {
	s.staleLeave = fn
}

// JoinRandom seats the user in the oldest waiting room of the game type or opens a new one
func (s *roomService) JoinRandom(ctx context.Context, userID int64, gameType game.Type, fn JoinFunc) error {
	return s.join(ctx, userID, gameType, nil, fn)
}

// JoinKeyword pairs users that supply the same keyword and game type
func (s *roomService) JoinKeyword(ctx context.Context, userID int64, gameType game.Type, keyword string, fn JoinFunc) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	return s.join(ctx, userID, gameType, &keyword, fn)
}

func (s *roomService) join(ctx context.Context, userID int64, gameType game.Type, keyword *string, fn JoinFunc) error {
	engine, err := game.EngineFor(gameType)
	if err != nil {
		return err
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	// the room just left is not a candidate; its remaining member waits for someone else
	var left *LiveRoom
	if current := s.roomOf(userID); current != nil {
		rejoined, err := s.rejoinOrLeave(ctx, current, userID, gameType, keyword, fn)
		if err != nil || rejoined {
			return err
		}
		left = current
	}

	if candidate := s.findWaiting(gameType, keyword, left); candidate != nil {
		joined, err := s.seatSecond(ctx, candidate, userID, fn)
		if err != nil || joined {
			return err
		}
	}

	return s.open(ctx, userID, gameType, keyword, engine, fn)
}

// rejoinOrLeave keeps the user's seat only in a matching room that is still
// waiting for its second member. Any other membership is left, forfeiting a
// game in progress, so the user can be matched again.
func (s *roomService) rejoinOrLeave(ctx context.Context, lr *LiveRoom, userID int64, gameType game.Type, keyword *string, fn JoinFunc) (bool, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.closed || !lr.HasMember(userID) {
		return false, nil
	}
	if lr.matches(gameType, keyword) && lr.Room.Status == models.RoomStatusWaiting && len(lr.Members) < 2 {
		return true, fn(lr, JoinOutcome{Rejoined: true})
	}
	if err := s.leaveLocked(ctx, lr, userID, s.staleLeave); err != nil {
		return false, fmt.Errorf("failed to leave room %d: %w", lr.ID(), err)
	}
	return false, nil
}

// findWaiting returns the oldest open room with one member matching the request
func (s *roomService) findWaiting(gameType game.Type, keyword *string, exclude *LiveRoom) *LiveRoom {
	s.mu.RLock()
	candidates := make([]*LiveRoom, 0, len(s.rooms))
	for _, lr := range s.rooms {
		if lr != exclude {
			candidates = append(candidates, lr)
		}
	}
	s.mu.RUnlock()

	var oldest *LiveRoom
	var oldestRoom models.Room
	for _, lr := range candidates {
		lr.mu.Lock()
		eligible := s.waitingFor(lr, gameType, keyword)
		room := *lr.Room
		lr.mu.Unlock()

		if !eligible {
			continue
		}
		if oldest == nil || room.CreatedAt.Before(oldestRoom.CreatedAt) ||
			(room.CreatedAt.Equal(oldestRoom.CreatedAt) && room.ID < oldestRoom.ID) {
			oldest = lr
			oldestRoom = room
		}
	}
	return oldest
}

func (s *roomService) waitingFor(lr *LiveRoom, gameType game.Type, keyword *string) bool {
	return !lr.closed &&
		len(lr.Members) == 1 &&
		lr.Room.Status == models.RoomStatusWaiting &&
		lr.matches(gameType, keyword)
}

// seatSecond adds the user as the second member and starts the game. It
// returns false without error if the room stopped waiting in the meantime.
func (s *roomService) seatSecond(ctx context.Context, lr *LiveRoom, userID int64, fn JoinFunc) (bool, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if !s.waitingFor(lr, lr.GameType(), lr.Room.Keyword) {
		return false, nil
	}

	member := &models.RoomMember{
		RoomID:    lr.ID(),
		UserID:    userID,
		JoinOrder: nextJoinOrder(lr.Members),
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return true, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.RoomRepository().AddMember(ctx, member); err != nil {
		return true, fmt.Errorf("failed to seat user %d: %w", userID, err)
	}
	if err := uow.RoomRepository().UpdateStatus(ctx, lr.ID(), models.RoomStatusPlaying); err != nil {
		return true, fmt.Errorf("failed to start room %d: %w", lr.ID(), err)
	}
	if err := uow.Commit(); err != nil {
		return true, fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.Members = append(lr.Members, member)
	lr.Room.Status = models.RoomStatusPlaying
	if lr.Game == nil || lr.Game.Over() {
		engine, err := game.EngineFor(lr.GameType())
		if err != nil {
			return true, err
		}
		lr.Game = newGameInstance(engine, lr.Members)
	} else {
		lr.Game.Sides[userID] = lr.Game.Engine.AssignSide(len(lr.Members) - 1)
	}
	clear(lr.rematchVotes)

	s.mu.Lock()
	s.userRoom[userID] = lr.ID()
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"room_id":   lr.ID(),
		"user_id":   userID,
		"game_type": lr.Room.GameType,
		"match_id":  lr.Game.MatchID,
	}).Info("Room filled, game started")

	return true, fn(lr, JoinOutcome{Started: true})
}

// open persists a new room with the user as host and registers it
func (s *roomService) open(ctx context.Context, userID int64, gameType game.Type, keyword *string, engine game.Engine, fn JoinFunc) error {
	room := &models.Room{
		GameType:      string(gameType),
		Keyword:       keyword,
		Status:        models.RoomStatusWaiting,
		BettingAmount: s.defaultStake,
		BettingStatus: models.BettingStatusUnlocked,
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.RoomRepository().Create(ctx, room); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	host := &models.RoomMember{RoomID: room.ID, UserID: userID, IsHost: true}
	if err := uow.RoomRepository().AddMember(ctx, host); err != nil {
		return fmt.Errorf("failed to seat host %d: %w", userID, err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr := newLiveRoom(room, []*models.RoomMember{host})
	lr.Game = newGameInstance(engine, lr.Members)

	lr.mu.Lock()
	defer lr.mu.Unlock()

	s.mu.Lock()
	s.rooms[room.ID] = lr
	s.userRoom[userID] = room.ID
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"room_id":   room.ID,
		"user_id":   userID,
		"game_type": room.GameType,
		"keyword":   room.KeywordValue(),
	}).Info("Opened room")

	return fn(lr, JoinOutcome{Created: true})
}

// Leave removes the user from their room. A game in progress is forfeited to
// the opponent and settled before the seat is released.
func (s *roomService) Leave(ctx context.Context, userID int64, fn LeaveFunc) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	lr := s.roomOf(userID)
	if lr == nil {
		return models.ErrNotInRoom
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.closed || !lr.HasMember(userID) {
		return models.ErrNotInRoom
	}
	return s.leaveLocked(ctx, lr, userID, fn)
}

func (s *roomService) leaveLocked(ctx context.Context, lr *LiveRoom, userID int64, fn LeaveFunc) error {
	outcome := LeaveOutcome{UserID: userID, RoomID: lr.ID()}
	remaining := lr.Opponent(userID)

	if g := lr.Game; g != nil {
		if !g.Over() && remaining != 0 && lr.Room.Status == models.RoomStatusPlaying {
			g.Result = &game.Result{Winner: g.Sides[remaining], Reason: ReasonForfeit}
			outcome.Forfeit = true
		}
		if g.Over() && !g.Settled {
			settlement, err := s.settler.Settle(ctx, lr)
			if err != nil {
				if outcome.Forfeit {
					g.Result = nil
				}
				return fmt.Errorf("failed to settle match %s: %w", g.MatchID, err)
			}
			outcome.Settlement = settlement
		}
		outcome.MatchID = g.MatchID
		outcome.Result = g.Result
		outcome.FinalState = g.State
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rooms := uow.RoomRepository()
	if err := rooms.RemoveMember(ctx, lr.ID(), userID); err != nil {
		return fmt.Errorf("failed to remove user %d: %w", userID, err)
	}
	if remaining == 0 {
		if err := rooms.Delete(ctx, lr.ID()); err != nil {
			return fmt.Errorf("failed to delete room %d: %w", lr.ID(), err)
		}
	} else {
		if err := s.resetRoom(ctx, uow, lr.ID(), models.RoomStatusWaiting); err != nil {
			return err
		}
		if err := rooms.SetHost(ctx, lr.ID(), remaining); err != nil {
			return fmt.Errorf("failed to hand host to user %d: %w", remaining, err)
		}
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.removeMember(userID)
	clear(lr.rematchVotes)

	s.mu.Lock()
	delete(s.userRoom, userID)
	if remaining == 0 {
		delete(s.rooms, lr.ID())
	}
	s.mu.Unlock()

	fields := log.Fields{"room_id": lr.ID(), "user_id": userID, "forfeit": outcome.Forfeit}
	if remaining == 0 {
		lr.closed = true
		lr.Game = nil
		outcome.RoomDeleted = true
		log.WithFields(fields).Info("User left, room deleted")
	} else {
		lr.Members[0].IsHost = true
		s.applyReset(lr, models.RoomStatusWaiting)
		if engine, err := game.EngineFor(lr.GameType()); err == nil {
			lr.Game = newGameInstance(engine, lr.Members)
		}
		outcome.RemainingID = remaining
		log.WithFields(fields).Info("User left room")
	}

	if fn != nil {
		return fn(lr, outcome)
	}
	return nil
}

// resetRoom returns a room row to the given status with the default stake
// unlocked and any pending proposals rejected
func (s *roomService) resetRoom(ctx context.Context, uow UnitOfWork, roomID int64, status models.RoomStatus) error {
	if err := uow.RoomRepository().UpdateStatus(ctx, roomID, status); err != nil {
		return fmt.Errorf("failed to update room %d: %w", roomID, err)
	}
	if err := uow.RoomRepository().UpdateBetting(ctx, roomID, s.defaultStake, models.BettingStatusUnlocked); err != nil {
		return fmt.Errorf("failed to reset betting of room %d: %w", roomID, err)
	}
	if _, err := uow.BettingProposalRepository().RejectAllPending(ctx, roomID); err != nil {
		return fmt.Errorf("failed to reject proposals of room %d: %w", roomID, err)
	}
	return nil
}

func (s *roomService) applyReset(lr *LiveRoom, status models.RoomStatus) {
	lr.Room.Status = status
	lr.Room.BettingAmount = s.defaultStake
	lr.Room.BettingStatus = models.BettingStatusUnlocked
}

// WithUserRoom runs fn under the lock of the user's room
func (s *roomService) WithUserRoom(ctx context.Context, userID int64, fn func(lr *LiveRoom) error) error {
	lr := s.roomOf(userID)
	if lr == nil {
		return models.ErrNotInRoom
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.closed || !lr.HasMember(userID) {
		return models.ErrNotInRoom
	}
	return fn(lr)
}

// WithRoom runs fn under the lock of a room
func (s *roomService) WithRoom(ctx context.Context, roomID int64, fn func(lr *LiveRoom) error) error {
	s.mu.RLock()
	lr := s.rooms[roomID]
	s.mu.RUnlock()
	if lr == nil {
		return fmt.Errorf("%w: room %d", models.ErrNotInRoom, roomID)
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.closed {
		return fmt.Errorf("%w: room %d", models.ErrNotInRoom, roomID)
	}
	return fn(lr)
}

// RoomOf returns the id of the user's room
func (s *roomService) RoomOf(userID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userRoom[userID]
	return id, ok
}

func (s *roomService) roomOf(userID int64) *LiveRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userRoom[userID]
	if !ok {
		return nil
	}
	return s.rooms[id]
}

// Move applies a move for the user. A move that ends the game settles it.
// The caller holds the room lock.
func (s *roomService) Move(ctx context.Context, lr *LiveRoom, userID int64, move json.RawMessage) (*MoveOutcome, error) {
	g, side, err := s.playable(lr, userID)
	if err != nil {
		return nil, err
	}

	next, err := g.Engine.ApplyMove(g.State, move, side)
	if err != nil {
		return nil, err
	}
	g.State = next
	g.Moves = append(g.Moves, MoveRecord{
		UserID: userID,
		Side:   side,
		Move:   append(json.RawMessage(nil), move...),
	})

	return s.afterMove(ctx, lr, side), nil
}

// Promote completes a pending pawn promotion. The caller holds the room lock.
func (s *roomService) Promote(ctx context.Context, lr *LiveRoom, userID int64, at game.Position, piece string) (*MoveOutcome, error) {
	g, side, err := s.playable(lr, userID)
	if err != nil {
		return nil, err
	}

	promoter, ok := g.Engine.(game.Promoter)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no promotions", game.ErrInvalidMove, g.Engine.Type())
	}

	next, err := promoter.Promote(g.State, at, piece, side)
	if err != nil {
		return nil, err
	}
	g.State = next
	g.Moves = append(g.Moves, MoveRecord{UserID: userID, Side: side, Promotion: piece})

	return s.afterMove(ctx, lr, side), nil
}

func (s *roomService) playable(lr *LiveRoom, userID int64) (*GameInstance, game.Side, error) {
	g := lr.Game
	if g == nil {
		return nil, "", models.ErrNotPlaying
	}
	if g.Over() {
		return nil, "", fmt.Errorf("%w: game is over", game.ErrInvalidMove)
	}
	if lr.Room.Status != models.RoomStatusPlaying {
		return nil, "", models.ErrNotPlaying
	}
	side, ok := g.Sides[userID]
	if !ok {
		return nil, "", models.ErrNotInRoom
	}
	return g, side, nil
}

func (s *roomService) afterMove(ctx context.Context, lr *LiveRoom, side game.Side) *MoveOutcome {
	g := lr.Game
	outcome := &MoveOutcome{MatchID: g.MatchID, Side: side, State: g.State}

	if cs, ok := g.State.(game.ChessState); ok && cs.PendingPromotion != nil {
		at := *cs.PendingPromotion
		outcome.PromotionPending = &at
	}

	result := g.Engine.Terminal(g.State)
	if result == nil {
		return outcome
	}

	g.Result = result
	outcome.Result = result

	settlement, err := s.settler.Settle(ctx, lr)
	if err != nil {
		// The result stands; settlement is retried on rematch or leave.
		log.WithFields(log.Fields{
			"room_id":  lr.ID(),
			"match_id": g.MatchID,
		}).WithError(err).Error("Failed to settle finished match")
		return outcome
	}
	outcome.Settlement = settlement
	return outcome
}

// RequestRematch records the user's vote and starts a new game once every
// member voted. The caller holds the room lock.
func (s *roomService) RequestRematch(ctx context.Context, lr *LiveRoom, userID int64) (*RematchOutcome, error) {
	g := lr.Game
	if g == nil || !g.Over() {
		return nil, models.ErrGameNotOver
	}
	if !lr.IsFull() {
		return nil, models.ErrNoOpponent
	}
	if !g.Settled {
		if _, err := s.settler.Settle(ctx, lr); err != nil {
			return nil, fmt.Errorf("failed to settle match %s: %w", g.MatchID, err)
		}
	}

	lr.rematchVotes[userID] = true
	votes := 0
	for _, id := range lr.MemberIDs() {
		if lr.rematchVotes[id] {
			votes++
		}
	}
	outcome := &RematchOutcome{Votes: votes, Needed: len(lr.Members)}
	if votes < len(lr.Members) {
		return outcome, nil
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := s.resetRoom(ctx, uow, lr.ID(), models.RoomStatusPlaying); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.applyReset(lr, models.RoomStatusPlaying)
	lr.Game = newGameInstance(g.Engine, lr.Members)
	clear(lr.rematchVotes)
	outcome.Started = true

	log.WithFields(log.Fields{
		"room_id":  lr.ID(),
		"match_id": lr.Game.MatchID,
	}).Info("Rematch started")

	return outcome, nil
}

// Restore reloads persisted rooms after a restart. Games in memory were lost,
// so stakes locked for them are refunded and every room starts a fresh game.
func (s *roomService) Restore(ctx context.Context) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rooms, err := uow.RoomRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rooms: %w", err)
	}

	var restored []*LiveRoom
	for _, room := range rooms {
		lr, err := s.restoreRoom(ctx, uow, room)
		if err != nil {
			return err
		}
		if lr != nil {
			restored = append(restored, lr)
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	for _, lr := range restored {
		s.rooms[lr.ID()] = lr
		for _, id := range lr.MemberIDs() {
			s.userRoom[id] = lr.ID()
		}
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"restored": len(restored),
		"dropped":  len(rooms) - len(restored),
	}).Info("Restored rooms")
	return nil
}

func (s *roomService) restoreRoom(ctx context.Context, uow UnitOfWork, room *models.Room) (*LiveRoom, error) {
	members, err := uow.RoomRepository().GetMembers(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of room %d: %w", room.ID, err)
	}

	engine, engineErr := game.EngineFor(game.Type(room.GameType))
	if len(members) == 0 || engineErr != nil {
		if err := uow.RoomRepository().Delete(ctx, room.ID); err != nil {
			return nil, fmt.Errorf("failed to delete room %d: %w", room.ID, err)
		}
		return nil, nil
	}

	if room.BettingStatus == models.BettingStatusLocked {
		matchID := uuid.New()
		for _, m := range members {
			if err := creditUser(ctx, uow, m.UserID, room.BettingAmount, models.TransactionTypeRefund, room.ID, matchID); err != nil {
				return nil, fmt.Errorf("failed to refund stake in room %d: %w", room.ID, err)
			}
		}
		log.WithFields(log.Fields{
			"room_id": room.ID,
			"stake":   room.BettingAmount.StringFixed(2),
		}).Warn("Refunded stake locked before restart")
	}

	status := models.RoomStatusWaiting
	if len(members) >= models.MaxRoomMembers {
		status = models.RoomStatusPlaying
	}
	if err := s.resetRoom(ctx, uow, room.ID, status); err != nil {
		return nil, err
	}

	lr := newLiveRoom(room, members)
	s.applyReset(lr, status)
	lr.Game = newGameInstance(engine, members)
	return lr, nil
}

func nextJoinOrder(members []*models.RoomMember) int {
	next := 0
	for _, m := range members {
		if m.JoinOrder >= next {
			next = m.JoinOrder + 1
		}
	}
	return next
}

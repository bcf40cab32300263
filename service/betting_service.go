package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"arenaserver/events"
	"arenaserver/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// BettingInfo is the escrow view of a room
type BettingInfo struct {
	RoomID    int64                     `json:"roomId"`
	Amount    decimal.Decimal           `json:"amount"`
	Status    models.BettingStatus      `json:"status"`
	Proposals []*models.BettingProposal `json:"proposals"`
}

// bettingService implements the BettingService interface. Every method
// expects the caller to hold the room lock.
type bettingService struct {
	uowFactory   UnitOfWorkFactory
	defaultStake decimal.Decimal
	feeRate      decimal.Decimal
}

// NewBettingService creates a new betting service
func NewBettingService(uowFactory UnitOfWorkFactory, defaultStake, feeRate decimal.Decimal) BettingService {
	return &bettingService{
		uowFactory:   uowFactory,
		defaultStake: defaultStake,
		feeRate:      feeRate,
	}
}

// DefaultStake returns the stake a room carries until a proposal changes it
func (s *bettingService) DefaultStake() decimal.Decimal {
	return s.defaultStake
}

// checkOpen validates that the room can still take a stake of amount
func (s *bettingService) checkOpen(lr *LiveRoom, userID int64, amount decimal.Decimal) error {
	if !lr.HasMember(userID) {
		return models.ErrNotInRoom
	}
	if !lr.IsFull() {
		return models.ErrNoOpponent
	}
	if lr.Room.BettingStatus == models.BettingStatusLocked {
		return models.ErrAlreadyLocked
	}
	if lr.Game == nil || lr.Game.Over() || lr.Room.Status != models.RoomStatusPlaying {
		return models.ErrNotPlaying
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount.String())
	}
	return nil
}

// Propose offers a stake to the opponent, replacing the user's pending proposal
func (s *bettingService) Propose(ctx context.Context, lr *LiveRoom, userID int64, amount decimal.Decimal) (*models.BettingProposal, error) {
	if err := s.checkOpen(lr, userID, amount); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if !user.CanCover(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s", models.ErrInsufficientBalance, user.Balance.StringFixed(2), amount.StringFixed(2))
	}

	proposal, err := uow.BettingProposalRepository().Upsert(ctx, lr.ID(), userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to store proposal: %w", err)
	}
	if err := uow.RoomRepository().UpdateBetting(ctx, lr.ID(), amount, models.BettingStatusProposed); err != nil {
		return nil, fmt.Errorf("failed to update room betting: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.Room.BettingAmount = amount
	lr.Room.BettingStatus = models.BettingStatusProposed
	return proposal, nil
}

// Accept takes the opponent's pending proposal of amount and moves the stake
// of both players into escrow
func (s *bettingService) Accept(ctx context.Context, lr *LiveRoom, userID int64, amount decimal.Decimal) error {
	if err := s.checkOpen(lr, userID, amount); err != nil {
		return err
	}
	opponentID := lr.Opponent(userID)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	proposal, err := uow.BettingProposalRepository().GetPending(ctx, lr.ID(), opponentID)
	if err != nil {
		return fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil || !proposal.Amount.Equal(amount) {
		return fmt.Errorf("%w: no pending proposal of %s from user %d", models.ErrProposalNotFound, amount.StringFixed(2), opponentID)
	}

	// Lock rows in id order so concurrent accepts cannot deadlock.
	ids := []int64{userID, opponentID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	players := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := uow.UserRepository().GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to lock user %d: %w", id, err)
		}
		if user == nil {
			return fmt.Errorf("user %d not found", id)
		}
		if !user.CanCover(amount) {
			return fmt.Errorf("%w: user %d has %s, stake is %s", models.ErrInsufficientBalance, id, user.Balance.StringFixed(2), amount.StringFixed(2))
		}
		players = append(players, user)
	}

	matchID := lr.Game.MatchID
	for _, user := range players {
		if err := debitUser(ctx, uow, user, amount, models.TransactionTypeStakeLock, lr.ID(), matchID); err != nil {
			return err
		}
	}

	if err := uow.BettingProposalRepository().SetStatus(ctx, proposal.ID, models.ProposalStatusAccepted); err != nil {
		return fmt.Errorf("failed to accept proposal: %w", err)
	}
	if _, err := uow.BettingProposalRepository().RejectAllPending(ctx, lr.ID()); err != nil {
		return fmt.Errorf("failed to reject other proposals: %w", err)
	}
	if err := uow.RoomRepository().UpdateBetting(ctx, lr.ID(), amount, models.BettingStatusLocked); err != nil {
		return fmt.Errorf("failed to lock room betting: %w", err)
	}

	uow.EventBus().Publish(events.BettingLockedEvent{
		RoomID:  lr.ID(),
		MatchID: matchID,
		Amount:  amount,
		UserIDs: ids,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.Room.BettingAmount = amount
	lr.Room.BettingStatus = models.BettingStatusLocked

	log.WithFields(log.Fields{
		"room_id":  lr.ID(),
		"match_id": matchID,
		"stake":    amount.StringFixed(2),
	}).Info("Stake locked")
	return nil
}

// Reject declines every pending proposal and restores the default stake
func (s *bettingService) Reject(ctx context.Context, lr *LiveRoom, userID int64) (int64, error) {
	if !lr.HasMember(userID) {
		return 0, models.ErrNotInRoom
	}
	if lr.Room.BettingStatus == models.BettingStatusLocked {
		return 0, models.ErrAlreadyLocked
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rejected, err := uow.BettingProposalRepository().RejectAllPending(ctx, lr.ID())
	if err != nil {
		return 0, fmt.Errorf("failed to reject proposals: %w", err)
	}
	if err := uow.RoomRepository().UpdateBetting(ctx, lr.ID(), s.defaultStake, models.BettingStatusUnlocked); err != nil {
		return 0, fmt.Errorf("failed to reset room betting: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.Room.BettingAmount = s.defaultStake
	lr.Room.BettingStatus = models.BettingStatusUnlocked
	return rejected, nil
}

// Info returns the room's stake, escrow status and pending proposals
func (s *bettingService) Info(ctx context.Context, lr *LiveRoom) (*BettingInfo, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	proposals, err := uow.BettingProposalRepository().GetPendingByRoom(ctx, lr.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get proposals: %w", err)
	}

	return &BettingInfo{
		RoomID:    lr.ID(),
		Amount:    lr.Room.BettingAmount,
		Status:    lr.Room.BettingStatus,
		Proposals: proposals,
	}, nil
}

// Settle records the finished game and pays out or refunds a locked stake.
// A match is settled at most once: repeated calls return the first
// settlement and a match id already in the store is not paid again.
func (s *bettingService) Settle(ctx context.Context, lr *LiveRoom) (*Settlement, error) {
	g := lr.Game
	if g == nil || !g.Over() {
		return nil, models.ErrGameNotOver
	}
	if g.Settled {
		return g.Settlement, nil
	}

	moves, err := json.Marshal(g.Moves)
	if err != nil {
		return nil, fmt.Errorf("failed to encode move log: %w", err)
	}

	staked := lr.Room.BettingStatus == models.BettingStatusLocked
	stake := lr.Room.BettingAmount
	winnerID := g.WinnerID()

	settlement := &Settlement{
		MatchID:  g.MatchID,
		Staked:   staked,
		Stake:    stake,
		WinnerID: winnerID,
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	recordedStake := decimal.Zero
	if staked {
		recordedStake = stake
	}
	inserted, err := uow.MatchRepository().Create(ctx, &models.Match{
		MatchID:  g.MatchID,
		RoomID:   lr.ID(),
		GameType: lr.Room.GameType,
		WinnerID: winnerID,
		IsDraw:   g.Result.IsDraw,
		Result:   g.Result.Reason,
		Moves:    moves,
		Stake:    recordedStake,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record match: %w", err)
	}
	if !inserted {
		log.WithField("match_id", g.MatchID).Warn("Match already settled")
		g.Settled = true
		g.Settlement = settlement
		return settlement, nil
	}

	if staked {
		if err := s.resolveEscrow(ctx, uow, lr, settlement); err != nil {
			return nil, err
		}
	}

	if err := uow.RoomRepository().UpdateBetting(ctx, lr.ID(), s.defaultStake, models.BettingStatusUnlocked); err != nil {
		return nil, fmt.Errorf("failed to reset room betting: %w", err)
	}
	if _, err := uow.BettingProposalRepository().RejectAllPending(ctx, lr.ID()); err != nil {
		return nil, fmt.Errorf("failed to reject proposals: %w", err)
	}
	if err := uow.RoomRepository().UpdateStatus(ctx, lr.ID(), models.RoomStatusFinished); err != nil {
		return nil, fmt.Errorf("failed to finish room: %w", err)
	}

	uow.EventBus().Publish(events.MatchFinishedEvent{
		RoomID:   lr.ID(),
		MatchID:  g.MatchID,
		GameType: lr.Room.GameType,
		WinnerID: winnerID,
		IsDraw:   g.Result.IsDraw,
		Reason:   g.Result.Reason,
	})
	if staked {
		uow.EventBus().Publish(events.BettingSettledEvent{
			RoomID:   lr.ID(),
			MatchID:  g.MatchID,
			Pot:      settlement.Pot,
			Payout:   settlement.Payout,
			Fee:      settlement.Fee,
			WinnerID: winnerID,
			Refunded: settlement.Refunded,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	lr.Room.Status = models.RoomStatusFinished
	lr.Room.BettingAmount = s.defaultStake
	lr.Room.BettingStatus = models.BettingStatusUnlocked
	g.Settled = true
	g.Settlement = settlement

	log.WithFields(log.Fields{
		"room_id":  lr.ID(),
		"match_id": g.MatchID,
		"reason":   g.Result.Reason,
		"staked":   staked,
		"payout":   settlement.Payout.StringFixed(2),
	}).Info("Match settled")
	return settlement, nil
}

// resolveEscrow pays the pot less the platform fee to the winner, or
// refunds both stakes on a draw
func (s *bettingService) resolveEscrow(ctx context.Context, uow UnitOfWork, lr *LiveRoom, settlement *Settlement) error {
	stake := settlement.Stake
	pot := stake.Mul(decimal.NewFromInt(int64(len(lr.Members))))
	settlement.Pot = pot

	if settlement.WinnerID == nil {
		settlement.Refunded = true
		settlement.Payout = decimal.Zero
		settlement.Fee = decimal.Zero
		for _, id := range lr.MemberIDs() {
			if err := creditUser(ctx, uow, id, stake, models.TransactionTypeRefund, lr.ID(), settlement.MatchID); err != nil {
				return fmt.Errorf("failed to refund user %d: %w", id, err)
			}
		}
		return nil
	}

	payout := pot.Mul(decimal.NewFromInt(1).Sub(s.feeRate)).Round(2)
	fee := pot.Sub(payout)
	settlement.Payout = payout
	settlement.Fee = fee

	if payout.IsPositive() {
		if err := creditUser(ctx, uow, *settlement.WinnerID, payout, models.TransactionTypePayout, lr.ID(), settlement.MatchID); err != nil {
			return fmt.Errorf("failed to pay winner: %w", err)
		}
	}
	if fee.IsPositive() {
		err := RecordBalanceChange(ctx, uow, &models.BettingTransaction{
			RoomID:  lr.ID(),
			MatchID: settlement.MatchID,
			Type:    models.TransactionTypePlatformFee,
			Amount:  fee,
		})
		if err != nil {
			return fmt.Errorf("failed to record platform fee: %w", err)
		}
	}
	return nil
}

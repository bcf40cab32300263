package service

import (
	"context"
	"fmt"

	"arenaserver/events"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordBalanceChange writes a ledger entry and, for entries owned by a user,
// raises a BalanceChangeEvent that is delivered after commit. Every escrow
// balance change goes through here.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, entry *models.BettingTransaction) error {
	if err := uow.BettingTransactionRepository().Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}

	if entry.UserID != nil {
		uow.EventBus().Publish(events.BalanceChangeEvent{
			UserID:          *entry.UserID,
			RoomID:          entry.RoomID,
			MatchID:         entry.MatchID,
			OldBalance:      entry.BalanceBefore.Decimal,
			NewBalance:      entry.BalanceAfter.Decimal,
			TransactionType: entry.Type,
			ChangeAmount:    entry.Amount,
		})
	}
	return nil
}

// creditUser adds amount to a user's balance under a row lock and records it
func creditUser(ctx context.Context, uow UnitOfWork, userID int64, amount decimal.Decimal, txType models.TransactionType, roomID int64, matchID uuid.UUID) error {
	user, err := uow.UserRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d not found", userID)
	}

	if err := uow.UserRepository().AddBalance(ctx, userID, amount); err != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, err)
	}

	return RecordBalanceChange(ctx, uow, &models.BettingTransaction{
		UserID:        &user.ID,
		RoomID:        roomID,
		MatchID:       matchID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: decimal.NewNullDecimal(user.Balance),
		BalanceAfter:  decimal.NewNullDecimal(user.Balance.Add(amount)),
	})
}

// debitUser removes amount from a user already locked by the caller
func debitUser(ctx context.Context, uow UnitOfWork, user *models.User, amount decimal.Decimal, txType models.TransactionType, roomID int64, matchID uuid.UUID) error {
	if err := uow.UserRepository().DeductBalance(ctx, user.ID, amount); err != nil {
		return fmt.Errorf("failed to debit user %d: %w", user.ID, err)
	}

	return RecordBalanceChange(ctx, uow, &models.BettingTransaction{
		UserID:        &user.ID,
		RoomID:        roomID,
		MatchID:       matchID,
		Type:          txType,
		Amount:        amount.Neg(),
		BalanceBefore: decimal.NewNullDecimal(user.Balance),
		BalanceAfter:  decimal.NewNullDecimal(user.Balance.Sub(amount)),
	})
}

package repository

import (
	"context"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, user_id, room_id, match_id, transaction_type, amount, balance_before, balance_after, created_at`

// BettingTransactionRepository implements the append-only escrow ledger
type BettingTransactionRepository struct {
	q queryable
}

// NewBettingTransactionRepository creates a new ledger repository
func NewBettingTransactionRepository(db *database.DB) *BettingTransactionRepository {
	return &BettingTransactionRepository{q: db.Pool}
}

func newBettingTransactionRepositoryWithTx(tx queryable) *BettingTransactionRepository {
	return &BettingTransactionRepository{q: tx}
}

// Record appends a ledger entry and fills its ID and timestamp
func (r *BettingTransactionRepository) Record(ctx context.Context, entry *models.BettingTransaction) error {
	query := `
		INSERT INTO betting_transactions (
			user_id, room_id, match_id, transaction_type, amount, balance_before, balance_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		entry.UserID,
		entry.RoomID,
		entry.MatchID,
		entry.Type,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return storeError(fmt.Sprintf("record %s entry for match %s", entry.Type, entry.MatchID), err)
	}
	return nil
}

// GetByMatch returns the ledger entries of one match in insertion order
func (r *BettingTransactionRepository) GetByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.BettingTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM betting_transactions WHERE match_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, matchID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list ledger of match %s", matchID), err)
	}
	return collectLedger(rows)
}

// GetByUser returns the newest ledger entries of a user
func (r *BettingTransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BettingTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM betting_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list ledger of user %d", userID), err)
	}
	return collectLedger(rows)
}

func collectLedger(rows pgx.Rows) ([]*models.BettingTransaction, error) {
	defer rows.Close()

	var entries []*models.BettingTransaction
	for rows.Next() {
		var e models.BettingTransaction
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.RoomID,
			&e.MatchID,
			&e.Type,
			&e.Amount,
			&e.BalanceBefore,
			&e.BalanceAfter,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, storeError("scan ledger entry", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate ledger entries", err)
	}
	return entries, nil
}

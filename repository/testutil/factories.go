package testutil

import (
	"context"
	"testing"
	"time"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// InsertUser writes a user row with the given balance and returns it
func InsertUser(t *testing.T, db *database.DB, username string, balance string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Balance: decimal.RequireFromString(balance)}

	err := db.WithTransaction(context.Background(), func(tx pgx.Tx) error {
		return tx.QueryRow(context.Background(),
			`INSERT INTO users (username, balance) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
			user.Username, user.Balance,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	})
	require.NoError(t, err)
	return user
}

// CreateTestRoom returns an unsaved waiting room
func CreateTestRoom(gameType string) *models.Room {
	return &models.Room{
		GameType:      gameType,
		Status:        models.RoomStatusWaiting,
		BettingAmount: decimal.RequireFromString("0.25"),
		BettingStatus: models.BettingStatusUnlocked,
	}
}

// CreateTestKeywordRoom returns an unsaved waiting room bound to a keyword
func CreateTestKeywordRoom(gameType, keyword string) *models.Room {
	room := CreateTestRoom(gameType)
	room.Keyword = &keyword
	return room
}

// CreateTestMatch returns an unsaved decisive match record
func CreateTestMatch(room *models.Room, winnerID int64) *models.Match {
	return &models.Match{
		RoomID:    room.ID,
		GameType:  room.GameType,
		WinnerID:  &winnerID,
		Result:    "three_in_a_row",
		Moves:     []byte(`[{"userId":1,"side":"X","move":4}]`),
		Stake:     room.BettingAmount,
		CreatedAt: time.Now(),
	}
}

// CountLedgerEntries counts the ledger rows of a room with the given type
func CountLedgerEntries(t *testing.T, db *database.DB, roomID int64, txType models.TransactionType) int {
	t.Helper()
	var count int
	err := db.WithTransactionOptions(context.Background(), pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return tx.QueryRow(context.Background(),
			`SELECT COUNT(*) FROM betting_transactions WHERE room_id = $1 AND transaction_type = $2`,
			roomID, string(txType),
		).Scan(&count)
	})
	require.NoError(t, err)
	return count
}

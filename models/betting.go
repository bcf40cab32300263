package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalStatus represents the state of a betting proposal
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// BettingProposal is a stake offered by one room member to the other
type BettingProposal struct {
	ID         int64           `db:"id"`
	RoomID     int64           `db:"room_id"`
	ProposerID int64           `db:"proposer_id"`
	Amount     decimal.Decimal `db:"amount"`
	Status     ProposalStatus  `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	TransactionTypeStakeLock   TransactionType = "stake_lock"
	TransactionTypePayout      TransactionType = "payout"
	TransactionTypeRefund      TransactionType = "refund"
	TransactionTypePlatformFee TransactionType = "platform_fee"
)

// BettingTransaction is an append-only ledger entry for a balance change.
// Platform fee entries carry no user.
type BettingTransaction struct {
	ID            int64               `db:"id"`
	UserID        *int64              `db:"user_id"`
	RoomID        int64               `db:"room_id"`
	MatchID       uuid.UUID           `db:"match_id"`
	Type          TransactionType     `db:"transaction_type"`
	Amount        decimal.Decimal     `db:"amount"`
	BalanceBefore decimal.NullDecimal `db:"balance_before"`
	BalanceAfter  decimal.NullDecimal `db:"balance_after"`
	CreatedAt     time.Time           `db:"created_at"`
}

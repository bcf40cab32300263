package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a player account with a wallet balance
type User struct {
	ID          int64           `db:"id"`
	Username    string          `db:"username"`
	Balance     decimal.Decimal `db:"balance"`
	Banned      bool            `db:"banned"`
	ReportCount int             `db:"report_count"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// CanCover reports whether the user's balance is at least amount
func (u *User) CanCover(amount decimal.Decimal) bool {
	return u.Balance.GreaterThanOrEqual(amount)
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Match is the historical record of one finished game
type Match struct {
	ID        int64           `db:"id"`
	MatchID   uuid.UUID       `db:"match_id"`
	RoomID    int64           `db:"room_id"`
	GameType  string          `db:"game_type"`
	WinnerID  *int64          `db:"winner_id"`
	IsDraw    bool            `db:"is_draw"`
	Result    string          `db:"result"`
	Moves     json.RawMessage `db:"moves"`
	Stake     decimal.Decimal `db:"stake"`
	CreatedAt time.Time       `db:"created_at"`
}

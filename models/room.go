package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
)

// BettingStatus represents the escrow state of a room
type BettingStatus string

const (
	BettingStatusUnlocked BettingStatus = "unlocked"
	BettingStatusProposed BettingStatus = "proposed"
	BettingStatusLocked   BettingStatus = "locked"
)

// MaxRoomMembers is the seat count of every room
const MaxRoomMembers = 2

// Room represents a two-seat match container
type Room struct {
	ID            int64           `db:"id"`
	GameType      string          `db:"game_type"`
	Keyword       *string         `db:"keyword"`
	Status        RoomStatus      `db:"status"`
	BettingAmount decimal.Decimal `db:"betting_amount"`
	BettingStatus BettingStatus   `db:"betting_status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// RoomMember represents a user's seat in a room
type RoomMember struct {
	RoomID    int64     `db:"room_id"`
	UserID    int64     `db:"user_id"`
	IsHost    bool      `db:"is_host"`
	JoinOrder int       `db:"join_order"`
	JoinedAt  time.Time `db:"joined_at"`
}

// KeywordValue returns the room keyword or an empty string for random rooms
func (r *Room) KeywordValue() string {
	if r.Keyword == nil {
		return ""
	}
	return *r.Keyword
}

package service

import (
	"encoding/json"
	"sync"

	"arenaserver/game"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoveRecord is one entry of a game's move log
type MoveRecord struct {
	UserID    int64           `json:"userId"`
	Side      game.Side       `json:"side"`
	Move      json.RawMessage `json:"move,omitempty"`
	Promotion string          `json:"promotion,omitempty"`
}

// Settlement describes how a finished match resolved its escrow
type Settlement struct {
	MatchID  uuid.UUID       `json:"matchId"`
	Staked   bool            `json:"staked"`
	Stake    decimal.Decimal `json:"stake"`
	Pot      decimal.Decimal `json:"pot"`
	Payout   decimal.Decimal `json:"payout"`
	Fee      decimal.Decimal `json:"fee"`
	WinnerID *int64          `json:"winnerId,omitempty"`
	Refunded bool            `json:"refunded"`
}

// GameInstance is the in-memory game of a room. It lives as long as the
// room and is replaced when members change or a rematch starts.
type GameInstance struct {
	MatchID    uuid.UUID
	Engine     game.Engine
	State      game.State
	Sides      map[int64]game.Side
	Moves      []MoveRecord
	Result     *game.Result
	Settled    bool
	Settlement *Settlement
}

func newGameInstance(engine game.Engine, members []*models.RoomMember) *GameInstance {
	g := &GameInstance{
		MatchID: uuid.New(),
		Engine:  engine,
		State:   engine.Initialize(),
		Sides:   make(map[int64]game.Side, len(members)),
	}
	for i, m := range members {
		g.Sides[m.UserID] = engine.AssignSide(i)
	}
	return g
}

// Over reports whether the game reached a result
func (g *GameInstance) Over() bool {
	return g.Result != nil
}

// UserForSide returns the user playing side, 0 if the seat is empty
func (g *GameInstance) UserForSide(side game.Side) int64 {
	for userID, s := range g.Sides {
		if s == side {
			return userID
		}
	}
	return 0
}

// WinnerID returns the winning user, nil for draws and unfinished games
func (g *GameInstance) WinnerID() *int64 {
	if g.Result == nil || g.Result.IsDraw || g.Result.Winner == "" {
		return nil
	}
	if id := g.UserForSide(g.Result.Winner); id != 0 {
		return &id
	}
	return nil
}

// LiveRoom is the in-memory mirror of a room row plus its game. Every field
// is guarded by the room lock held for the duration of a With*/Join*/Leave
// callback.
type LiveRoom struct {
	mu sync.Mutex

	Room    *models.Room
	Members []*models.RoomMember
	Game    *GameInstance

	rematchVotes map[int64]bool
	closed       bool
}

func newLiveRoom(room *models.Room, members []*models.RoomMember) *LiveRoom {
	return &LiveRoom{
		Room:         room,
		Members:      members,
		rematchVotes: make(map[int64]bool),
	}
}

// ID returns the room id
func (lr *LiveRoom) ID() int64 {
	return lr.Room.ID
}

// GameType returns the room's game variant
func (lr *LiveRoom) GameType() game.Type {
	return game.Type(lr.Room.GameType)
}

// MemberIDs returns the member user ids in join order
func (lr *LiveRoom) MemberIDs() []int64 {
	ids := make([]int64, len(lr.Members))
	for i, m := range lr.Members {
		ids[i] = m.UserID
	}
	return ids
}

// HasMember reports whether userID holds a seat
func (lr *LiveRoom) HasMember(userID int64) bool {
	for _, m := range lr.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Opponent returns the other member, 0 if the room has no second member
func (lr *LiveRoom) Opponent(userID int64) int64 {
	for _, m := range lr.Members {
		if m.UserID != userID {
			return m.UserID
		}
	}
	return 0
}

// IsFull reports whether both seats are taken
func (lr *LiveRoom) IsFull() bool {
	return len(lr.Members) >= models.MaxRoomMembers
}

// RematchVotes returns the number of members that asked for a rematch
func (lr *LiveRoom) RematchVotes() int {
	return len(lr.rematchVotes)
}

func (lr *LiveRoom) matches(gameType game.Type, keyword *string) bool {
	if lr.Room.GameType != string(gameType) {
		return false
	}
	if keyword == nil {
		return lr.Room.Keyword == nil
	}
	return lr.Room.Keyword != nil && *lr.Room.Keyword == *keyword
}

func (lr *LiveRoom) removeMember(userID int64) {
	kept := lr.Members[:0]
	for _, m := range lr.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	lr.Members = kept
}

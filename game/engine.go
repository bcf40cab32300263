// Package game holds the rule engines for the board games played in rooms.
//
// Each variant is a stateless Engine; all game data lives in the State value
// it returns, so applying a move never changes the state passed in.
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type identifies a game variant
type Type string

const (
	TypeTicTacToe Type = "tictactoe"
	TypeCheckers  Type = "checkers"
	TypeChess     Type = "chess"
)

// Side identifies a player seat inside a game
type Side string

const (
	SideX       Side = "X"
	SideO       Side = "O"
	SidePlayer1 Side = "player1"
	SidePlayer2 Side = "player2"
	SideWhite   Side = "white"
	SideBlack   Side = "black"
)

var (
	// ErrInvalidMove is returned for wrong-turn, malformed, illegal or post-game moves
	ErrInvalidMove = errors.New("invalid move")

	// ErrUnknownGame is returned for an unsupported game type
	ErrUnknownGame = errors.New("unknown game type")
)

// Result describes how a finished game ended
type Result struct {
	Winner Side   `json:"winner,omitempty"`
	IsDraw bool   `json:"isDraw"`
	Reason string `json:"reason"`
}

// State is the pure data of a game in progress
type State interface {
	GameType() Type
	SideToMove() Side
}

// Engine is the rule set of one game variant
type Engine interface {
	Type() Type
	Initialize() State
	ApplyMove(state State, move json.RawMessage, side Side) (State, error)
	Terminal(state State) *Result
	AssignSide(joinOrder int) Side
}

// Promoter is implemented by engines with a pending-promotion sub-state
type Promoter interface {
	Promote(state State, at Position, piece string, side Side) (State, error)
}

// Position is a square on an 8x8 board. Row 0 is the top of the board as
// seen by the first player.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) onBoard() bool {
	return p.Row >= 0 && p.Row < 8 && p.Col >= 0 && p.Col < 8
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// boardMove is the wire shape of a from/to move on an 8x8 board
type boardMove struct {
	From      *Position `json:"from"`
	To        *Position `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
}

func parseBoardMove(raw json.RawMessage) (Position, Position, string, error) {
	var mv boardMove
	if err := json.Unmarshal(raw, &mv); err != nil || mv.From == nil || mv.To == nil {
		return Position{}, Position{}, "", invalid("malformed move")
	}
	if !mv.From.onBoard() || !mv.To.onBoard() {
		return Position{}, Position{}, "", invalid("move %v -> %v is off the board", *mv.From, *mv.To)
	}
	return *mv.From, *mv.To, mv.Promotion, nil
}

var engines = map[Type]Engine{
	TypeTicTacToe: TicTacToe{},
	TypeCheckers:  Checkers{},
	TypeChess:     Chess{},
}

// EngineFor returns the engine for a game type
func EngineFor(t Type) (Engine, error) {
	engine, ok := engines[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, t)
	}
	return engine, nil
}

// ParseType normalizes a client-supplied game type
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := engines[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGame, s)
	}
	return t, nil
}

// Opponent returns the other side of the same variant
func Opponent(side Side) Side {
	switch side {
	case SideX:
		return SideO
	case SideO:
		return SideX
	case SidePlayer1:
		return SidePlayer2
	case SidePlayer2:
		return SidePlayer1
	case SideWhite:
		return SideBlack
	case SideBlack:
		return SideWhite
	}
	return ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMove, fmt.Sprintf(format, args...))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

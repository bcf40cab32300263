package game

import (
	"bytes"
	"encoding/json"
)

// TicTacToeState is a 3x3 board stored row-major. Clients address cells
// 1..9 (rows {1,2,3}, {4,5,6}, {7,8,9}); Board[i] holds cell i+1.
type TicTacToeState struct {
	Board [9]Side `json:"board"`
	Turn  Side    `json:"turn"`
}

func (s TicTacToeState) GameType() Type   { return TypeTicTacToe }
func (s TicTacToeState) SideToMove() Side { return s.Turn }

// winning lines by cell number
var ticTacToeLines = [8][3]int{
	{1, 2, 3}, {4, 5, 6}, {7, 8, 9},
	{1, 4, 7}, {2, 5, 8}, {3, 6, 9},
	{1, 5, 9}, {3, 5, 7},
}

// cellIndex maps a cell number to its Board index. 0 is accepted as cell 9
// for keypads that put 0 in the last position.
func cellIndex(cell int) (int, bool) {
	if cell == 0 {
		cell = 9
	}
	if cell < 1 || cell > 9 {
		return 0, false
	}
	return cell - 1, true
}

// TicTacToe implements the tic-tac-toe rules. X always moves first.
type TicTacToe struct{}

func (TicTacToe) Type() Type { return TypeTicTacToe }

func (TicTacToe) Initialize() State {
	return TicTacToeState{Turn: SideX}
}

func (TicTacToe) AssignSide(joinOrder int) Side {
	if joinOrder == 0 {
		return SideX
	}
	return SideO
}

func (t TicTacToe) ApplyMove(state State, move json.RawMessage, side Side) (State, error) {
	s, ok := state.(TicTacToeState)
	if !ok {
		return nil, invalid("state is not a tic-tac-toe game")
	}
	if t.Terminal(s) != nil {
		return nil, invalid("game is over")
	}
	if side != s.Turn {
		return nil, invalid("not %s's turn", side)
	}

	cell, err := parseCell(move)
	if err != nil {
		return nil, err
	}
	idx, ok := cellIndex(cell)
	if !ok {
		return nil, invalid("cell %d is off the board", cell)
	}
	if s.Board[idx] != "" {
		return nil, invalid("cell %d is occupied", cell)
	}

	next := s
	next.Board[idx] = side
	next.Turn = Opponent(side)
	return next, nil
}

func (TicTacToe) Terminal(state State) *Result {
	s, ok := state.(TicTacToeState)
	if !ok {
		return nil
	}
	for _, line := range ticTacToeLines {
		mark := s.Board[line[0]-1]
		if mark != "" && mark == s.Board[line[1]-1] && mark == s.Board[line[2]-1] {
			return &Result{Winner: mark, Reason: "three_in_a_row"}
		}
	}
	for _, cell := range s.Board {
		if cell == "" {
			return nil
		}
	}
	return &Result{IsDraw: true, Reason: "board_full"}
}

// parseCell accepts either a bare cell number or {"index": n}
func parseCell(raw json.RawMessage) (int, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, invalid("malformed move")
	}

	var cell int
	if err := json.Unmarshal(raw, &cell); err == nil {
		return cell, nil
	}

	var mv struct {
		Index    *int `json:"index"`
		Position *int `json:"position"`
	}
	if err := json.Unmarshal(raw, &mv); err != nil {
		return 0, invalid("malformed move")
	}
	switch {
	case mv.Index != nil:
		return *mv.Index, nil
	case mv.Position != nil:
		return *mv.Position, nil
	}
	return 0, invalid("malformed move")
}

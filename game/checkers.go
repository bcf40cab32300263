package game

import "encoding/json"

// Cell is the content of one checkers square
type Cell int8

const (
	CellEmpty Cell = iota
	CellPlayer1Man
	CellPlayer1King
	CellPlayer2Man
	CellPlayer2King
)

func (c Cell) owner() Side {
	switch c {
	case CellPlayer1Man, CellPlayer1King:
		return SidePlayer1
	case CellPlayer2Man, CellPlayer2King:
		return SidePlayer2
	}
	return ""
}

func (c Cell) isKing() bool {
	return c == CellPlayer1King || c == CellPlayer2King
}

func (c Cell) crowned() Cell {
	switch c {
	case CellPlayer1Man:
		return CellPlayer1King
	case CellPlayer2Man:
		return CellPlayer2King
	}
	return c
}

// CheckersState is an 8x8 board. Player one starts on rows 5-7 and moves
// toward row 0. ContinueFrom is set while a multi-jump is in progress.
type CheckersState struct {
	Board        [8][8]Cell `json:"board"`
	Turn         Side       `json:"turn"`
	ContinueFrom *Position  `json:"continueFrom,omitempty"`
}

func (s CheckersState) GameType() Type   { return TypeCheckers }
func (s CheckersState) SideToMove() Side { return s.Turn }

func (s CheckersState) at(p Position) Cell {
	return s.Board[p.Row][p.Col]
}

// Checkers implements the 8x8 draughts rules. Captures are not mandatory.
type Checkers struct{}

func (Checkers) Type() Type { return TypeCheckers }

func (Checkers) Initialize() State {
	s := CheckersState{Turn: SidePlayer1}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if (row+col)%2 == 0 {
				continue
			}
			switch {
			case row <= 2:
				s.Board[row][col] = CellPlayer2Man
			case row >= 5:
				s.Board[row][col] = CellPlayer1Man
			}
		}
	}
	return s
}

func (Checkers) AssignSide(joinOrder int) Side {
	if joinOrder == 0 {
		return SidePlayer1
	}
	return SidePlayer2
}

func (c Checkers) ApplyMove(state State, move json.RawMessage, side Side) (State, error) {
	s, ok := state.(CheckersState)
	if !ok {
		return nil, invalid("state is not a checkers game")
	}
	if c.Terminal(s) != nil {
		return nil, invalid("game is over")
	}
	if side != s.Turn {
		return nil, invalid("not %s's turn", side)
	}

	from, to, _, err := parseBoardMove(move)
	if err != nil {
		return nil, err
	}
	piece := s.at(from)
	if piece.owner() != side {
		return nil, invalid("no %s piece at %v", side, from)
	}
	if s.ContinueFrom != nil && from != *s.ContinueFrom {
		return nil, invalid("must continue jumping with the piece at %v", *s.ContinueFrom)
	}
	if s.at(to) != CellEmpty {
		return nil, invalid("destination %v is occupied", to)
	}

	dr, dc := to.Row-from.Row, to.Col-from.Col
	if abs(dr) != abs(dc) {
		return nil, invalid("pieces move diagonally")
	}
	if !piece.isKing() && dr*forward(side) < 0 {
		return nil, invalid("men cannot move backwards")
	}

	next := s
	captured := false
	switch abs(dr) {
	case 1:
		if s.ContinueFrom != nil {
			return nil, invalid("must continue jumping with the piece at %v", *s.ContinueFrom)
		}
	case 2:
		mid := Position{Row: from.Row + dr/2, Col: from.Col + dc/2}
		victim := s.at(mid)
		if victim == CellEmpty || victim.owner() == side {
			return nil, invalid("no opponent piece to jump at %v", mid)
		}
		next.Board[mid.Row][mid.Col] = CellEmpty
		captured = true
	default:
		return nil, invalid("moves are one or two diagonal steps")
	}

	next.Board[from.Row][from.Col] = CellEmpty
	crowned := !piece.isKing() && to.Row == crownRow(side)
	if crowned {
		piece = piece.crowned()
	}
	next.Board[to.Row][to.Col] = piece

	if captured && !crowned && next.canJumpFrom(to) {
		landing := to
		next.ContinueFrom = &landing
		return next, nil
	}
	next.ContinueFrom = nil
	next.Turn = Opponent(side)
	return next, nil
}

func (Checkers) Terminal(state State) *Result {
	s, ok := state.(CheckersState)
	if !ok {
		return nil
	}
	counts := map[Side]int{}
	for row := range s.Board {
		for _, cell := range s.Board[row] {
			if owner := cell.owner(); owner != "" {
				counts[owner]++
			}
		}
	}
	for _, side := range []Side{SidePlayer1, SidePlayer2} {
		if counts[side] == 0 {
			return &Result{Winner: Opponent(side), Reason: "no_pieces"}
		}
	}
	if s.ContinueFrom == nil && !s.hasAnyMove(s.Turn) {
		return &Result{Winner: Opponent(s.Turn), Reason: "no_moves"}
	}
	return nil
}

func forward(side Side) int {
	if side == SidePlayer1 {
		return -1
	}
	return 1
}

func crownRow(side Side) int {
	if side == SidePlayer1 {
		return 0
	}
	return 7
}

func (s CheckersState) directions(piece Cell) [][2]int {
	if piece.isKing() {
		return [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	}
	f := forward(piece.owner())
	return [][2]int{{f, -1}, {f, 1}}
}

func (s CheckersState) canJumpFrom(from Position) bool {
	piece := s.at(from)
	for _, d := range s.directions(piece) {
		mid := Position{Row: from.Row + d[0], Col: from.Col + d[1]}
		land := Position{Row: from.Row + 2*d[0], Col: from.Col + 2*d[1]}
		if !land.onBoard() {
			continue
		}
		victim := s.at(mid)
		if victim != CellEmpty && victim.owner() != piece.owner() && s.at(land) == CellEmpty {
			return true
		}
	}
	return false
}

func (s CheckersState) hasAnyMove(side Side) bool {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			from := Position{Row: row, Col: col}
			piece := s.at(from)
			if piece.owner() != side {
				continue
			}
			for _, d := range s.directions(piece) {
				step := Position{Row: row + d[0], Col: col + d[1]}
				if step.onBoard() && s.at(step) == CellEmpty {
					return true
				}
			}
			if s.canJumpFrom(from) {
				return true
			}
		}
	}
	return false
}

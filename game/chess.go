package game

import (
	"encoding/json"
	"strings"
)

// Piece is a chess piece as colour + kind, e.g. "wK" or "bP". Empty means no piece.
type Piece string

func (p Piece) color() byte {
	if len(p) != 2 {
		return 0
	}
	return p[0]
}

func (p Piece) kind() byte {
	if len(p) != 2 {
		return 0
	}
	return p[1]
}

const (
	white byte = 'w'
	black byte = 'b'
)

func colorOf(side Side) byte {
	if side == SideWhite {
		return white
	}
	return black
}

func otherColor(c byte) byte {
	if c == white {
		return black
	}
	return white
}

// CastlingRights tracks which castles are still available
type CastlingRights struct {
	WhiteKingSide  bool `json:"whiteKingSide"`
	WhiteQueenSide bool `json:"whiteQueenSide"`
	BlackKingSide  bool `json:"blackKingSide"`
	BlackQueenSide bool `json:"blackQueenSide"`
}

// ChessState stores the board with row 0 as rank 8 and row 7 as rank 1.
// While PendingPromotion is set the mover must promote before anything else.
type ChessState struct {
	Board            [8][8]Piece    `json:"board"`
	Turn             Side           `json:"turn"`
	Castling         CastlingRights `json:"castling"`
	EnPassant        *Position      `json:"enPassant,omitempty"`
	PendingPromotion *Position      `json:"pendingPromotion,omitempty"`
	FullMove         int            `json:"fullMove"`
}

func (s ChessState) GameType() Type   { return TypeChess }
func (s ChessState) SideToMove() Side { return s.Turn }

func (s ChessState) at(p Position) Piece {
	return s.Board[p.Row][p.Col]
}

// Chess implements standard chess without repetition or fifty-move draws.
type Chess struct{}

func (Chess) Type() Type { return TypeChess }

func (Chess) Initialize() State {
	s := ChessState{
		Turn:     SideWhite,
		Castling: CastlingRights{true, true, true, true},
		FullMove: 1,
	}
	back := "RNBQKBNR"
	for col := 0; col < 8; col++ {
		s.Board[0][col] = Piece("b" + back[col:col+1])
		s.Board[1][col] = "bP"
		s.Board[6][col] = "wP"
		s.Board[7][col] = Piece("w" + back[col:col+1])
	}
	return s
}

func (Chess) AssignSide(joinOrder int) Side {
	if joinOrder == 0 {
		return SideWhite
	}
	return SideBlack
}

func (c Chess) ApplyMove(state State, move json.RawMessage, side Side) (State, error) {
	s, ok := state.(ChessState)
	if !ok {
		return nil, invalid("state is not a chess game")
	}
	if s.PendingPromotion != nil {
		return nil, invalid("pawn promotion pending at %v", *s.PendingPromotion)
	}
	if c.Terminal(s) != nil {
		return nil, invalid("game is over")
	}
	if side != s.Turn {
		return nil, invalid("not %s's turn", side)
	}

	from, to, promotion, err := parseBoardMove(move)
	if err != nil {
		return nil, err
	}
	piece := s.at(from)
	if piece.color() != colorOf(side) {
		return nil, invalid("no %s piece at %v", side, from)
	}
	if !containsPosition(s.legalTargets(from), to) {
		return nil, invalid("illegal move %v -> %v", from, to)
	}

	next := s.move(from, to)
	if next.PendingPromotion != nil && promotion != "" {
		return c.Promote(next, to, promotion, side)
	}
	return next, nil
}

// Promote replaces the pawn waiting on the last rank and passes the turn
func (Chess) Promote(state State, at Position, piece string, side Side) (State, error) {
	s, ok := state.(ChessState)
	if !ok {
		return nil, invalid("state is not a chess game")
	}
	if s.PendingPromotion == nil || *s.PendingPromotion != at {
		return nil, invalid("no promotion pending at %v", at)
	}
	if side != s.Turn {
		return nil, invalid("not %s's promotion", side)
	}
	kind, ok := promotionKind(piece)
	if !ok {
		return nil, invalid("cannot promote to %q", piece)
	}

	next := s
	next.Board[at.Row][at.Col] = Piece([]byte{colorOf(side), kind})
	next.PendingPromotion = nil
	next.passTurn()
	return next, nil
}

func (Chess) Terminal(state State) *Result {
	s, ok := state.(ChessState)
	if !ok || s.PendingPromotion != nil {
		return nil
	}
	if s.insufficientMaterial() {
		return &Result{IsDraw: true, Reason: "insufficient_material"}
	}
	if s.hasLegalMove(colorOf(s.Turn)) {
		return nil
	}
	if s.inCheck(colorOf(s.Turn)) {
		return &Result{Winner: Opponent(s.Turn), Reason: "checkmate"}
	}
	return &Result{IsDraw: true, Reason: "stalemate"}
}

// InCheck reports whether the side to move is in check
func (s ChessState) InCheck() bool {
	return s.inCheck(colorOf(s.Turn))
}

func promotionKind(piece string) (byte, bool) {
	switch strings.ToLower(strings.TrimSpace(piece)) {
	case "q", "queen":
		return 'Q', true
	case "r", "rook":
		return 'R', true
	case "b", "bishop":
		return 'B', true
	case "n", "knight":
		return 'N', true
	}
	return 0, false
}

func (s *ChessState) passTurn() {
	s.Turn = Opponent(s.Turn)
	if s.Turn == SideWhite {
		s.FullMove++
	}
}

// move performs a pseudo-legal move including the side effects of castling,
// en passant and promotion. The caller checks legality.
func (s ChessState) move(from, to Position) ChessState {
	next := s
	piece := s.at(from)

	if piece.kind() == 'P' && from.Col != to.Col && s.at(to) == "" {
		next.Board[from.Row][to.Col] = ""
	}
	next.Board[to.Row][to.Col] = piece
	next.Board[from.Row][from.Col] = ""

	if piece.kind() == 'K' && abs(to.Col-from.Col) == 2 {
		rookFrom, rookTo := 7, 5
		if to.Col < from.Col {
			rookFrom, rookTo = 0, 3
		}
		next.Board[from.Row][rookTo] = next.Board[from.Row][rookFrom]
		next.Board[from.Row][rookFrom] = ""
	}

	next.Castling = s.Castling.after(piece, from, to)

	next.EnPassant = nil
	if piece.kind() == 'P' && abs(to.Row-from.Row) == 2 {
		ep := Position{Row: (from.Row + to.Row) / 2, Col: from.Col}
		next.EnPassant = &ep
	}

	if piece.kind() == 'P' && (to.Row == 0 || to.Row == 7) {
		pending := to
		next.PendingPromotion = &pending
		return next
	}
	next.passTurn()
	return next
}

func (c CastlingRights) after(piece Piece, from, to Position) CastlingRights {
	switch piece {
	case "wK":
		c.WhiteKingSide, c.WhiteQueenSide = false, false
	case "bK":
		c.BlackKingSide, c.BlackQueenSide = false, false
	}
	for _, p := range []Position{from, to} {
		switch p {
		case Position{Row: 7, Col: 0}:
			c.WhiteQueenSide = false
		case Position{Row: 7, Col: 7}:
			c.WhiteKingSide = false
		case Position{Row: 0, Col: 0}:
			c.BlackQueenSide = false
		case Position{Row: 0, Col: 7}:
			c.BlackKingSide = false
		}
	}
	return c
}

var (
	knightSteps   = [][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingSteps     = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	straightLines = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	diagonalLines = [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

func pawnDirection(color byte) int {
	if color == white {
		return -1
	}
	return 1
}

func (s ChessState) pseudoTargets(from Position) []Position {
	piece := s.at(from)
	color := piece.color()
	var targets []Position

	addIfEnterable := func(p Position) bool {
		if !p.onBoard() {
			return false
		}
		occupant := s.at(p)
		if occupant == "" {
			targets = append(targets, p)
			return true
		}
		if occupant.color() != color {
			targets = append(targets, p)
		}
		return false
	}
	slide := func(lines [][2]int) {
		for _, d := range lines {
			p := Position{Row: from.Row + d[0], Col: from.Col + d[1]}
			for addIfEnterable(p) {
				p = Position{Row: p.Row + d[0], Col: p.Col + d[1]}
			}
		}
	}

	switch piece.kind() {
	case 'P':
		dir := pawnDirection(color)
		one := Position{Row: from.Row + dir, Col: from.Col}
		if one.onBoard() && s.at(one) == "" {
			targets = append(targets, one)
			startRow := 6
			if color == black {
				startRow = 1
			}
			two := Position{Row: from.Row + 2*dir, Col: from.Col}
			if from.Row == startRow && s.at(two) == "" {
				targets = append(targets, two)
			}
		}
		for _, dc := range []int{-1, 1} {
			diag := Position{Row: from.Row + dir, Col: from.Col + dc}
			if !diag.onBoard() {
				continue
			}
			occupant := s.at(diag)
			if (occupant != "" && occupant.color() != color) || (s.EnPassant != nil && *s.EnPassant == diag) {
				targets = append(targets, diag)
			}
		}
	case 'N':
		for _, d := range knightSteps {
			addIfEnterable(Position{Row: from.Row + d[0], Col: from.Col + d[1]})
		}
	case 'B':
		slide(diagonalLines)
	case 'R':
		slide(straightLines)
	case 'Q':
		slide(straightLines)
		slide(diagonalLines)
	case 'K':
		for _, d := range kingSteps {
			addIfEnterable(Position{Row: from.Row + d[0], Col: from.Col + d[1]})
		}
	}
	return targets
}

func (s ChessState) legalTargets(from Position) []Position {
	piece := s.at(from)
	color := piece.color()
	var legal []Position
	for _, to := range s.pseudoTargets(from) {
		if !s.move(from, to).inCheck(color) {
			legal = append(legal, to)
		}
	}
	if piece.kind() == 'K' {
		legal = append(legal, s.castleTargets(from, color)...)
	}
	return legal
}

func (s ChessState) castleTargets(from Position, color byte) []Position {
	homeRow := 7
	kingSide, queenSide := s.Castling.WhiteKingSide, s.Castling.WhiteQueenSide
	if color == black {
		homeRow = 0
		kingSide, queenSide = s.Castling.BlackKingSide, s.Castling.BlackQueenSide
	}
	if from != (Position{Row: homeRow, Col: 4}) || s.inCheck(color) {
		return nil
	}
	rook := Piece([]byte{color, 'R'})
	enemy := otherColor(color)
	empty := func(cols ...int) bool {
		for _, col := range cols {
			if s.Board[homeRow][col] != "" {
				return false
			}
		}
		return true
	}
	safe := func(cols ...int) bool {
		for _, col := range cols {
			if s.attacked(Position{Row: homeRow, Col: col}, enemy) {
				return false
			}
		}
		return true
	}

	var targets []Position
	if kingSide && s.Board[homeRow][7] == rook && empty(5, 6) && safe(5, 6) {
		targets = append(targets, Position{Row: homeRow, Col: 6})
	}
	if queenSide && s.Board[homeRow][0] == rook && empty(1, 2, 3) && safe(3, 2) {
		targets = append(targets, Position{Row: homeRow, Col: 2})
	}
	return targets
}

func (s ChessState) inCheck(color byte) bool {
	king := Piece([]byte{color, 'K'})
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if s.Board[row][col] == king {
				return s.attacked(Position{Row: row, Col: col}, otherColor(color))
			}
		}
	}
	return false
}

// attacked reports whether any piece of colour by attacks square p
func (s ChessState) attacked(p Position, by byte) bool {
	pieceAt := func(row, col int) Piece {
		q := Position{Row: row, Col: col}
		if !q.onBoard() {
			return ""
		}
		return s.at(q)
	}
	is := func(piece Piece, kinds ...byte) bool {
		if piece.color() != by {
			return false
		}
		for _, k := range kinds {
			if piece.kind() == k {
				return true
			}
		}
		return false
	}

	dir := pawnDirection(by)
	for _, dc := range []int{-1, 1} {
		if is(pieceAt(p.Row-dir, p.Col+dc), 'P') {
			return true
		}
	}
	for _, d := range knightSteps {
		if is(pieceAt(p.Row+d[0], p.Col+d[1]), 'N') {
			return true
		}
	}
	for _, d := range kingSteps {
		if is(pieceAt(p.Row+d[0], p.Col+d[1]), 'K') {
			return true
		}
	}
	ray := func(lines [][2]int, kinds ...byte) bool {
		for _, d := range lines {
			for row, col := p.Row+d[0], p.Col+d[1]; (Position{Row: row, Col: col}).onBoard(); row, col = row+d[0], col+d[1] {
				piece := s.Board[row][col]
				if piece == "" {
					continue
				}
				if is(piece, kinds...) {
					return true
				}
				break
			}
		}
		return false
	}
	return ray(straightLines, 'R', 'Q') || ray(diagonalLines, 'B', 'Q')
}

func (s ChessState) hasLegalMove(color byte) bool {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			from := Position{Row: row, Col: col}
			if s.at(from).color() == color && len(s.legalTargets(from)) > 0 {
				return true
			}
		}
	}
	return false
}

// insufficientMaterial covers bare kings, a single minor piece, and bishops
// all standing on one square colour.
func (s ChessState) insufficientMaterial() bool {
	var minors []Piece
	bishopSquares := map[int]bool{}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			piece := s.Board[row][col]
			switch piece.kind() {
			case 0, 'K':
				continue
			case 'B':
				bishopSquares[(row+col)%2] = true
			case 'N':
			default:
				return false
			}
			minors = append(minors, piece)
		}
	}
	if len(minors) <= 1 {
		return true
	}
	for _, piece := range minors {
		if piece.kind() != 'B' {
			return false
		}
	}
	return len(bishopSquares) == 1
}

func containsPosition(list []Position, p Position) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

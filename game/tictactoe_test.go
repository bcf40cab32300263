package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playTicTacToe(t *testing.T, moves ...int) State {
	t.Helper()
	engine := TicTacToe{}
	state := engine.Initialize()
	side := SideX
	for _, cell := range moves {
		next, err := engine.ApplyMove(state, json.RawMessage(mustJSON(t, cell)), side)
		require.NoError(t, err, "move %d by %s", cell, side)
		state = next
		side = Opponent(side)
	}
	return state
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestTicTacToe_AssignSide(t *testing.T) {
	engine := TicTacToe{}
	assert.Equal(t, SideX, engine.AssignSide(0))
	assert.Equal(t, SideO, engine.AssignSide(1))
}

func TestTicTacToe_ColumnWin(t *testing.T) {
	state := playTicTacToe(t, 4, 0, 1, 3, 7)

	result := TicTacToe{}.Terminal(state)
	require.NotNil(t, result)
	assert.Equal(t, SideX, result.Winner)
	assert.False(t, result.IsDraw)
}

func TestTicTacToe_MiddleRowWin(t *testing.T) {
	state := playTicTacToe(t, 4, 0, 5, 8, 6)

	result := TicTacToe{}.Terminal(state)
	require.NotNil(t, result)
	assert.Equal(t, SideX, result.Winner)
	assert.False(t, result.IsDraw)

	board := state.(TicTacToeState).Board
	assert.Equal(t, [9]Side{"", "", "", SideX, SideX, SideX, "", SideO, SideO}, board)
}

func TestTicTacToe_CellNumbering(t *testing.T) {
	tests := []struct {
		cell  int
		index int
	}{
		{1, 0}, {5, 4}, {9, 8}, {0, 8},
	}
	for _, tt := range tests {
		state := playTicTacToe(t, tt.cell)
		assert.Equal(t, SideX, state.(TicTacToeState).Board[tt.index], "cell %d", tt.cell)
	}

	// 0 and 9 name the same cell
	_, err := TicTacToe{}.ApplyMove(playTicTacToe(t, 9), json.RawMessage(`0`), SideO)
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestTicTacToe_Draw(t *testing.T) {
	// X O X / X O O / O X X
	state := playTicTacToe(t, 1, 2, 3, 5, 4, 6, 8, 7, 9)

	result := TicTacToe{}.Terminal(state)
	require.NotNil(t, result)
	assert.True(t, result.IsDraw)
	assert.Empty(t, result.Winner)
}

func TestTicTacToe_RejectedMoves(t *testing.T) {
	engine := TicTacToe{}
	afterOne := playTicTacToe(t, 4)

	tests := []struct {
		name  string
		state State
		move  string
		side  Side
	}{
		{"wrong turn", engine.Initialize(), `0`, SideO},
		{"occupied cell", afterOne, `4`, SideO},
		{"off board", afterOne, `10`, SideO},
		{"negative cell", afterOne, `-1`, SideO},
		{"malformed", afterOne, `"middle"`, SideO},
		{"null move", afterOne, `null`, SideO},
		{"after game over", playTicTacToe(t, 4, 0, 1, 3, 7), `8`, SideO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := engine.ApplyMove(tt.state, json.RawMessage(tt.move), tt.side)
			assert.ErrorIs(t, err, ErrInvalidMove)
			assert.Nil(t, next)
		})
	}
}

func TestTicTacToe_ApplyMoveDoesNotMutateInput(t *testing.T) {
	engine := TicTacToe{}
	start := engine.Initialize()

	_, err := engine.ApplyMove(start, json.RawMessage(`{"index":4}`), SideX)
	require.NoError(t, err)

	assert.Equal(t, TicTacToeState{Turn: SideX}, start)
}

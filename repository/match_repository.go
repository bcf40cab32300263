package repository

import (
	"context"
	"errors"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MatchRepository implements the MatchRepository interface
type MatchRepository struct {
	q queryable
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{q: db.Pool}
}

func newMatchRepositoryWithTx(tx queryable) *MatchRepository {
	return &MatchRepository{q: tx}
}

// Create stores a match record. It returns false without error when the
// match id was recorded before.
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) (bool, error) {
	moves := match.Moves
	if len(moves) == 0 {
		moves = []byte("[]")
	}

	query := `
		INSERT INTO matches (match_id, room_id, game_type, winner_id, is_draw, result, moves, stake)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO NOTHING
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		match.MatchID,
		match.RoomID,
		match.GameType,
		match.WinnerID,
		match.IsDraw,
		match.Result,
		moves,
		match.Stake,
	).Scan(&match.ID, &match.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError(fmt.Sprintf("record match %s", match.MatchID), err)
	}
	return true, nil
}

// GetByMatchID retrieves a match record by its match id
func (r *MatchRepository) GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	query := `
		SELECT id, match_id, room_id, game_type, winner_id, is_draw, result, moves, stake, created_at
		FROM matches
		WHERE match_id = $1
	`
	var m models.Match
	err := r.q.QueryRow(ctx, query, matchID).Scan(
		&m.ID,
		&m.MatchID,
		&m.RoomID,
		&m.GameType,
		&m.WinnerID,
		&m.IsDraw,
		&m.Result,
		&m.Moves,
		&m.Stake,
		&m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("get match %s", matchID), err)
	}
	return &m, nil
}

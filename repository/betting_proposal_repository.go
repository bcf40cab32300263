package repository

import (
	"context"
	"errors"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const proposalColumns = `id, room_id, proposer_id, amount, status, created_at, updated_at`

// BettingProposalRepository implements the BettingProposalRepository interface
type BettingProposalRepository struct {
	q queryable
}

// NewBettingProposalRepository creates a new proposal repository
func NewBettingProposalRepository(db *database.DB) *BettingProposalRepository {
	return &BettingProposalRepository{q: db.Pool}
}

func newBettingProposalRepositoryWithTx(tx queryable) *BettingProposalRepository {
	return &BettingProposalRepository{q: tx}
}

func scanProposal(row pgx.Row) (*models.BettingProposal, error) {
	var p models.BettingProposal
	err := row.Scan(&p.ID, &p.RoomID, &p.ProposerID, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert creates the proposer's pending proposal or overwrites its amount
func (r *BettingProposalRepository) Upsert(ctx context.Context, roomID, proposerID int64, amount decimal.Decimal) (*models.BettingProposal, error) {
	query := `
		INSERT INTO betting_proposals (room_id, proposer_id, amount, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (room_id, proposer_id) WHERE status = 'pending'
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()
		RETURNING ` + proposalColumns

	proposal, err := scanProposal(r.q.QueryRow(ctx, query, roomID, proposerID, amount))
	if err != nil {
		return nil, storeError(fmt.Sprintf("upsert proposal of user %d in room %d", proposerID, roomID), err)
	}
	return proposal, nil
}

// GetPending returns the proposer's pending proposal in a room
func (r *BettingProposalRepository) GetPending(ctx context.Context, roomID, proposerID int64) (*models.BettingProposal, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM betting_proposals
		WHERE room_id = $1 AND proposer_id = $2 AND status = 'pending'
		FOR UPDATE
	`
	proposal, err := scanProposal(r.q.QueryRow(ctx, query, roomID, proposerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("get pending proposal of user %d in room %d", proposerID, roomID), err)
	}
	return proposal, nil
}

// GetPendingByRoom returns all pending proposals of a room, oldest first
func (r *BettingProposalRepository) GetPendingByRoom(ctx context.Context, roomID int64) ([]*models.BettingProposal, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM betting_proposals
		WHERE room_id = $1 AND status = 'pending'
		ORDER BY created_at, id
	`
	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list pending proposals of room %d", roomID), err)
	}
	defer rows.Close()

	var proposals []*models.BettingProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, storeError("scan proposal", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate proposals", err)
	}
	return proposals, nil
}

// SetStatus moves a proposal to a new status
func (r *BettingProposalRepository) SetStatus(ctx context.Context, id int64, status models.ProposalStatus) error {
	query := `UPDATE betting_proposals SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.Exec(ctx, query, status, id)
	if err != nil {
		return storeError(fmt.Sprintf("set status of proposal %d", id), err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", models.ErrProposalNotFound, id)
	}
	return nil
}

// RejectAllPending rejects every pending proposal of a room
func (r *BettingProposalRepository) RejectAllPending(ctx context.Context, roomID int64) (int64, error) {
	query := `
		UPDATE betting_proposals
		SET status = 'rejected', updated_at = NOW()
		WHERE room_id = $1 AND status = 'pending'
	`
	result, err := r.q.Exec(ctx, query, roomID)
	if err != nil {
		return 0, storeError(fmt.Sprintf("reject proposals of room %d", roomID), err)
	}
	return result.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/jackc/pgx/v5"
)

// ReportRepository implements the ReportRepository interface
type ReportRepository struct {
	q queryable
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{q: db.Pool}
}

func newReportRepositoryWithTx(tx queryable) *ReportRepository {
	return &ReportRepository{q: tx}
}

// Create stores a report; a repeated reporter/reported pair is ignored and
// reported as false
func (r *ReportRepository) Create(ctx context.Context, report *models.UserReport) (bool, error) {
	query := `
		INSERT INTO user_reports (reporter_id, reported_id, room_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reporter_id, reported_id) DO NOTHING
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query, report.ReporterID, report.ReportedID, report.RoomID, report.Reason).
		Scan(&report.ID, &report.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError(fmt.Sprintf("report user %d", report.ReportedID), err)
	}
	return true, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"arenaserver/events"
	"arenaserver/models"

	log "github.com/sirupsen/logrus"
)

const maxReportReasonLength = 500

// ReportOutcome is the result of a user report
type ReportOutcome struct {
	ReportCount int
	Banned      bool
	Duplicate   bool
}

// moderationService implements the ModerationService interface
type moderationService struct {
	uowFactory   UnitOfWorkFactory
	banThreshold int
}

// NewModerationService creates a new moderation service. A user whose report
// count reaches banThreshold is banned.
func NewModerationService(uowFactory UnitOfWorkFactory, banThreshold int) ModerationService {
	return &moderationService{
		uowFactory:   uowFactory,
		banThreshold: banThreshold,
	}
}

// Report files a report against reportedID. Each reporter counts once per reported user.
func (s *moderationService) Report(ctx context.Context, reporterID, reportedID int64, roomID *int64, reason string) (*ReportOutcome, error) {
	if reporterID == reportedID {
		return nil, fmt.Errorf("%w: cannot report yourself", models.ErrInvalidReport)
	}
	if reportedID <= 0 {
		return nil, fmt.Errorf("%w: missing user", models.ErrInvalidReport)
	}
	reason = strings.TrimSpace(reason)
	if r := []rune(reason); len(r) > maxReportReasonLength {
		reason = string(r[:maxReportReasonLength])
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	reported, err := uow.UserRepository().GetForUpdate(ctx, reportedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reported user: %w", err)
	}
	if reported == nil {
		return nil, fmt.Errorf("%w: user %d not found", models.ErrInvalidReport, reportedID)
	}

	created, err := uow.ReportRepository().Create(ctx, &models.UserReport{
		ReporterID: reporterID,
		ReportedID: reportedID,
		RoomID:     roomID,
		Reason:     reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	if !created {
		return &ReportOutcome{ReportCount: reported.ReportCount, Banned: reported.Banned, Duplicate: true}, nil
	}

	count, err := uow.UserRepository().IncrementReportCount(ctx, reportedID)
	if err != nil {
		return nil, fmt.Errorf("failed to count report: %w", err)
	}

	outcome := &ReportOutcome{ReportCount: count, Banned: reported.Banned}
	if !reported.Banned && count >= s.banThreshold {
		if err := uow.UserRepository().SetBanned(ctx, reportedID, true); err != nil {
			return nil, fmt.Errorf("failed to ban user: %w", err)
		}
		uow.EventBus().Publish(events.UserBannedEvent{UserID: reportedID, ReportCount: count})
		outcome.Banned = true
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if outcome.Banned && !reported.Banned {
		log.WithFields(log.Fields{
			"user_id":      reportedID,
			"report_count": count,
		}).Warn("User banned after reports")
	}
	return outcome, nil
}

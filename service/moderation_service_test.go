package service

import (
	"context"
	"testing"

	"arenaserver/events"
	"arenaserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestModerationService_BansAtThreshold(t *testing.T) {
	store := NewMemoryStore()
	service := NewModerationService(NewMemoryUnitOfWorkFactory(store), 3)
	ctx := context.Background()

	target := store.SeedUser("1.00")
	reporters := []int64{store.SeedUser("1.00"), store.SeedUser("1.00"), store.SeedUser("1.00")}

	for i, reporter := range reporters {
		outcome, err := service.Report(ctx, reporter, target, nil, "rude")
		require.NoError(t, err)
		assert.Equal(t, i+1, outcome.ReportCount)
		assert.Equal(t, i == len(reporters)-1, outcome.Banned)
	}

	assert.True(t, store.User(target).Banned)
	banned := store.EventsOf(events.EventTypeUserBanned)
	require.Len(t, banned, 1)
	assert.Equal(t, target, banned[0].(events.UserBannedEvent).UserID)
}

func TestModerationService_DuplicateReportCountsOnce(t *testing.T) {
	store := NewMemoryStore()
	service := NewModerationService(NewMemoryUnitOfWorkFactory(store), 5)
	ctx := context.Background()
	target, reporter := store.SeedUser("1.00"), store.SeedUser("1.00")

	_, err := service.Report(ctx, reporter, target, nil, "spam")
	require.NoError(t, err)
	outcome, err := service.Report(ctx, reporter, target, nil, "spam again")
	require.NoError(t, err)

	assert.True(t, outcome.Duplicate)
	assert.Equal(t, 1, outcome.ReportCount)
	assert.Equal(t, 1, store.User(target).ReportCount)
}

func TestModerationService_InvalidReports(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockUoW.SetRepositories(mockUserRepo, nil, nil, nil, nil)

	service := NewModerationService(mockFactory, 5)

	_, err := service.Report(ctx, 1, 1, nil, "")
	assert.ErrorIs(t, err, models.ErrInvalidReport)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockUserRepo.On("GetForUpdate", ctx, int64(2)).Return(nil, nil)

	_, err = service.Report(ctx, 1, 2, nil, "")
	assert.ErrorIs(t, err, models.ErrInvalidReport)

	mockUoW.AssertNotCalled(t, "Commit")
	mockUserRepo.AssertNotCalled(t, "IncrementReportCount", mock.Anything, mock.Anything)
}

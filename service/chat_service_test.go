package service

import (
	"context"
	"strings"
	"testing"

	"arenaserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatService_PostAndHistory(t *testing.T) {
	store := NewMemoryStore()
	service := NewChatService(NewMemoryUnitOfWorkFactory(store), 2)
	ctx := context.Background()

	for _, text := range []string{"first", "  second  ", "third"} {
		_, err := service.Post(ctx, 10, 1, text)
		require.NoError(t, err)
	}
	_, err := service.Post(ctx, 11, 1, "other room")
	require.NoError(t, err)

	history, err := service.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Message)
	assert.Equal(t, "third", history[1].Message)
}

func TestChatService_RejectsInvalidMessages(t *testing.T) {
	mockFactory := new(MockUnitOfWorkFactory)
	service := NewChatService(mockFactory, 50)
	ctx := context.Background()

	tests := []struct {
		name    string
		message string
	}{
		{"empty", ""},
		{"whitespace", "   \t"},
		{"too long", strings.Repeat("a", maxChatMessageLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Post(ctx, 1, 1, tt.message)
			assert.ErrorIs(t, err, models.ErrInvalidMessage)
		})
	}

	mockFactory.AssertNotCalled(t, "Create")
}

func TestChatService_StoreFailure(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockChatRepo := new(MockChatRepository)
	mockUoW.SetChatRepositories(mockChatRepo, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockChatRepo.On("Create", ctx, mock.AnythingOfType("*models.ChatMessage")).Return(models.ErrStore)

	service := NewChatService(mockFactory, 50)
	_, err := service.Post(ctx, 1, 1, "hello")

	assert.ErrorIs(t, err, models.ErrStore)
	mockUoW.AssertNotCalled(t, "Commit")
}

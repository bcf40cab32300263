package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"arenaserver/models"
)

const maxChatMessageLength = 500

// chatService implements the ChatService interface
type chatService struct {
	uowFactory   UnitOfWorkFactory
	historyLimit int
}

// NewChatService creates a new chat service returning up to historyLimit messages of history
func NewChatService(uowFactory UnitOfWorkFactory, historyLimit int) ChatService {
	return &chatService{
		uowFactory:   uowFactory,
		historyLimit: historyLimit,
	}
}

// Post stores a message in the room
func (s *chatService) Post(ctx context.Context, roomID, userID int64, message string) (*models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrInvalidMessage)
	}
	if utf8.RuneCountInString(message) > maxChatMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", models.ErrInvalidMessage, maxChatMessageLength)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	msg := &models.ChatMessage{RoomID: roomID, UserID: userID, Message: message}
	if err := uow.ChatRepository().Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}

// History returns the newest messages of the room, oldest first
func (s *chatService) History(ctx context.Context, roomID int64) ([]*models.ChatMessage, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	messages, err := uow.ChatRepository().GetRecent(ctx, roomID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	return messages, nil
}

package repository

import (
	"context"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"
)

// ChatRepository implements the ChatRepository interface
type ChatRepository struct {
	q queryable
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *database.DB) *ChatRepository {
	return &ChatRepository{q: db.Pool}
}

func newChatRepositoryWithTx(tx queryable) *ChatRepository {
	return &ChatRepository{q: tx}
}

// Create stores a chat message
func (r *ChatRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (room_id, user_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.q.QueryRow(ctx, query, msg.RoomID, msg.UserID, msg.Message).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return storeError(fmt.Sprintf("store chat message in room %d", msg.RoomID), err)
	}
	return nil
}

// GetRecent returns the newest limit messages of a room, oldest first
func (r *ChatRepository) GetRecent(ctx context.Context, roomID int64, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, room_id, user_id, message, created_at
		FROM (
			SELECT id, room_id, user_id, message, created_at
			FROM chat_messages
			WHERE room_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`
	rows, err := r.q.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list chat of room %d", roomID), err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Message, &m.CreatedAt); err != nil {
			return nil, storeError("scan chat message", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate chat messages", err)
	}
	return messages, nil
}

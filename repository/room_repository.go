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

const roomColumns = `id, game_type, keyword, status, betting_amount, betting_status, created_at, updated_at`

// RoomRepository implements the RoomRepository interface
type RoomRepository struct {
	q queryable
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *database.DB) *RoomRepository {
	return &RoomRepository{q: db.Pool}
}

func newRoomRepositoryWithTx(tx queryable) *RoomRepository {
	return &RoomRepository{q: tx}
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	err := row.Scan(
		&room.ID,
		&room.GameType,
		&room.Keyword,
		&room.Status,
		&room.BettingAmount,
		&room.BettingStatus,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a room and fills its ID and timestamps
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (game_type, keyword, status, betting_amount, betting_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		room.GameType,
		room.Keyword,
		room.Status,
		room.BettingAmount,
		room.BettingStatus,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return storeError("create room", err)
	}
	return nil
}

// GetByID retrieves a room by id
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("get room %d", id), err)
	}
	return room, nil
}

// GetAll returns every room, oldest first
func (r *RoomRepository) GetAll(ctx context.Context) ([]*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, storeError("list rooms", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, storeError("scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate rooms", err)
	}
	return rooms, nil
}

// UpdateStatus sets the lifecycle status of a room
func (r *RoomRepository) UpdateStatus(ctx context.Context, id int64, status models.RoomStatus) error {
	query := `UPDATE rooms SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.Exec(ctx, query, status, id)
	if err != nil {
		return storeError(fmt.Sprintf("update status of room %d", id), err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("room %d not found", id)
	}
	return nil
}

// UpdateBetting sets the stake and escrow status of a room
func (r *RoomRepository) UpdateBetting(ctx context.Context, id int64, amount decimal.Decimal, status models.BettingStatus) error {
	query := `
		UPDATE rooms
		SET betting_amount = $1, betting_status = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.q.Exec(ctx, query, amount, status, id)
	if err != nil {
		return storeError(fmt.Sprintf("update betting of room %d", id), err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("room %d not found", id)
	}
	return nil
}

// Delete removes a room together with its members, proposals and chat
func (r *RoomRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return storeError(fmt.Sprintf("delete room %d", id), err)
	}
	return nil
}

// AddMember seats a user in a room. The unique user_id constraint rejects a
// user already seated elsewhere.
func (r *RoomRepository) AddMember(ctx context.Context, member *models.RoomMember) error {
	query := `
		INSERT INTO room_members (room_id, user_id, is_host, join_order)
		VALUES ($1, $2, $3, $4)
		RETURNING joined_at
	`
	err := r.q.QueryRow(ctx, query, member.RoomID, member.UserID, member.IsHost, member.JoinOrder).Scan(&member.JoinedAt)
	if err != nil {
		return storeError(fmt.Sprintf("add user %d to room %d", member.UserID, member.RoomID), err)
	}
	return nil
}

// RemoveMember removes a user's seat
func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID int64) error {
	query := `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`
	if _, err := r.q.Exec(ctx, query, roomID, userID); err != nil {
		return storeError(fmt.Sprintf("remove user %d from room %d", userID, roomID), err)
	}
	return nil
}

// SetHost makes userID the only host of the room
func (r *RoomRepository) SetHost(ctx context.Context, roomID, userID int64) error {
	query := `UPDATE room_members SET is_host = (user_id = $2) WHERE room_id = $1`
	if _, err := r.q.Exec(ctx, query, roomID, userID); err != nil {
		return storeError(fmt.Sprintf("set host of room %d", roomID), err)
	}
	return nil
}

// GetMembers returns the members of a room in join order
func (r *RoomRepository) GetMembers(ctx context.Context, roomID int64) ([]*models.RoomMember, error) {
	query := `
		SELECT room_id, user_id, is_host, join_order, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY join_order, joined_at
	`
	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("list members of room %d", roomID), err)
	}
	defer rows.Close()

	var members []*models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.IsHost, &m.JoinOrder, &m.JoinedAt); err != nil {
			return nil, storeError("scan room member", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate room members", err)
	}
	return members, nil
}

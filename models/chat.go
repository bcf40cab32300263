package models

import "time"

// ChatMessage is a message posted inside a room
type ChatMessage struct {
	ID        int64     `db:"id"`
	RoomID    int64     `db:"room_id"`
	UserID    int64     `db:"user_id"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// UserReport is a complaint filed by one player against another
type UserReport struct {
	ID         int64     `db:"id"`
	ReporterID int64     `db:"reporter_id"`
	ReportedID int64     `db:"reported_id"`
	RoomID     *int64    `db:"room_id"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

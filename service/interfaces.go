package service

import (
	"context"
	"encoding/json"

	"arenaserver/events"
	"arenaserver/game"
	"arenaserver/models"
	"arenaserver/session"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetForUpdate retrieves a user and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, id int64) (*models.User, error)

	// AddBalance adds to a user's balance atomically
	AddBalance(ctx context.Context, id int64, amount decimal.Decimal) error

	// DeductBalance deducts from a user's balance, failing with ErrInsufficientBalance
	DeductBalance(ctx context.Context, id int64, amount decimal.Decimal) error

	// IncrementReportCount bumps the report counter and returns the new value
	IncrementReportCount(ctx context.Context, id int64) (int, error)

	// SetBanned sets the ban flag
	SetBanned(ctx context.Context, id int64, banned bool) error
}

// RoomRepository defines the interface for room and membership data access
type RoomRepository interface {
	// Create inserts a room and fills its ID and timestamps
	Create(ctx context.Context, room *models.Room) error

	// GetByID retrieves a room, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*models.Room, error)

	// GetAll returns every room ordered by creation time
	GetAll(ctx context.Context) ([]*models.Room, error)

	// UpdateStatus sets the lifecycle status of a room
	UpdateStatus(ctx context.Context, id int64, status models.RoomStatus) error

	// UpdateBetting sets the stake and escrow status of a room
	UpdateBetting(ctx context.Context, id int64, amount decimal.Decimal, status models.BettingStatus) error

	// Delete removes a room; members, proposals and chat cascade
	Delete(ctx context.Context, id int64) error

	// AddMember seats a user in a room
	AddMember(ctx context.Context, member *models.RoomMember) error

	// RemoveMember removes a user's seat
	RemoveMember(ctx context.Context, roomID, userID int64) error

	// SetHost marks one member as the host of the room
	SetHost(ctx context.Context, roomID, userID int64) error

	// GetMembers returns the members of a room in join order
	GetMembers(ctx context.Context, roomID int64) ([]*models.RoomMember, error)
}

// BettingProposalRepository defines the interface for stake proposals
type BettingProposalRepository interface {
	// Upsert creates or overwrites the proposer's pending proposal
	Upsert(ctx context.Context, roomID, proposerID int64, amount decimal.Decimal) (*models.BettingProposal, error)

	// GetPending returns the proposer's pending proposal, nil if none
	GetPending(ctx context.Context, roomID, proposerID int64) (*models.BettingProposal, error)

	// GetPendingByRoom returns all pending proposals of a room
	GetPendingByRoom(ctx context.Context, roomID int64) ([]*models.BettingProposal, error)

	// SetStatus moves a proposal to a new status
	SetStatus(ctx context.Context, id int64, status models.ProposalStatus) error

	// RejectAllPending rejects every pending proposal in the room
	RejectAllPending(ctx context.Context, roomID int64) (int64, error)
}

// BettingTransactionRepository defines the interface for the escrow ledger
type BettingTransactionRepository interface {
	// Record appends a ledger entry
	Record(ctx context.Context, entry *models.BettingTransaction) error

	// GetByMatch returns the ledger entries of one match
	GetByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.BettingTransaction, error)

	// GetByUser returns the latest ledger entries of a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BettingTransaction, error)
}

// MatchRepository defines the interface for finished match records
type MatchRepository interface {
	// Create stores a match record, returning false if the match id was already recorded
	Create(ctx context.Context, match *models.Match) (bool, error)

	// GetByMatchID retrieves a match record, nil if it does not exist
	GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
}

// ChatRepository defines the interface for room chat
type ChatRepository interface {
	// Create stores a chat message and fills its ID and timestamp
	Create(ctx context.Context, msg *models.ChatMessage) error

	// GetRecent returns up to limit of the newest messages, oldest first
	GetRecent(ctx context.Context, roomID int64, limit int) ([]*models.ChatMessage, error)
}

// ReportRepository defines the interface for user reports
type ReportRepository interface {
	// Create stores a report, returning false if the reporter already reported the user
	Create(ctx context.Context, report *models.UserReport) (bool, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes its events
	Commit() error

	// Rollback rolls back the transaction and discards its events
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	RoomRepository() RoomRepository
	BettingProposalRepository() BettingProposalRepository
	BettingTransactionRepository() BettingTransactionRepository
	MatchRepository() MatchRepository
	ChatRepository() ChatRepository
	ReportRepository() ReportRepository

	// EventBus returns the transactional event bus for this unit of work
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// Settler records a finished game and resolves its escrow exactly once.
// Callers hold the room lock.
type Settler interface {
	Settle(ctx context.Context, room *LiveRoom) (*Settlement, error)
}

// RoomService defines the interface for matchmaking and room lifecycle.
// Callbacks run holding the room lock; methods taking a *LiveRoom expect
// the caller to hold it already.
type RoomService interface {
	// JoinRandom seats the user in the oldest waiting room of the game type, or opens one
	JoinRandom(ctx context.Context, userID int64, gameType game.Type, fn JoinFunc) error

	// JoinKeyword pairs users who supplied the same keyword and game type
	JoinKeyword(ctx context.Context, userID int64, gameType game.Type, keyword string, fn JoinFunc) error

	// Leave releases the user's seat, forfeiting a game in progress
	Leave(ctx context.Context, userID int64, fn LeaveFunc) error

	// WithUserRoom runs fn holding the lock of the user's room
	WithUserRoom(ctx context.Context, userID int64, fn func(lr *LiveRoom) error) error

	// WithRoom runs fn holding the lock of a room
	WithRoom(ctx context.Context, roomID int64, fn func(lr *LiveRoom) error) error

	// RoomOf returns the id of the user's room
	RoomOf(userID int64) (int64, bool)

	// Move applies a game move for the user
	Move(ctx context.Context, lr *LiveRoom, userID int64, move json.RawMessage) (*MoveOutcome, error)

	// Promote resolves a pending pawn promotion
	Promote(ctx context.Context, lr *LiveRoom, userID int64, at game.Position, piece string) (*MoveOutcome, error)

	// RequestRematch records a rematch vote and starts a new game when all members agree
	RequestRematch(ctx context.Context, lr *LiveRoom, userID int64) (*RematchOutcome, error)

	// Restore reloads persisted rooms into memory
	Restore(ctx context.Context) error

	// OnStaleLeave sets the callback for rooms a join moves a user out of
	OnStaleLeave(fn LeaveFunc)
}

// BettingService defines the interface for the per-room stake escrow.
// Callers hold the room lock.
type BettingService interface {
	Settler

	// Propose offers a stake to the opponent
	Propose(ctx context.Context, lr *LiveRoom, userID int64, amount decimal.Decimal) (*models.BettingProposal, error)

	// Accept locks the stake of both players against the opponent's proposal
	Accept(ctx context.Context, lr *LiveRoom, userID int64, amount decimal.Decimal) error

	// Reject declines all pending proposals, returning how many were rejected
	Reject(ctx context.Context, lr *LiveRoom, userID int64) (int64, error)

	// Info returns the escrow view of the room
	Info(ctx context.Context, lr *LiveRoom) (*BettingInfo, error)

	// DefaultStake returns the stake of an unlocked room
	DefaultStake() decimal.Decimal
}

// AuthService defines the interface for resolving client credentials
type AuthService interface {
	session.Authenticator

	// CheckBanned returns ErrBanned if the user is banned
	CheckBanned(ctx context.Context, userID int64) error
}

// ModerationService defines the interface for user reports and bans
type ModerationService interface {
	Report(ctx context.Context, reporterID, reportedID int64, roomID *int64, reason string) (*ReportOutcome, error)
}

// ChatService defines the interface for room chat
type ChatService interface {
	// Post validates and stores a chat message
	Post(ctx context.Context, roomID, userID int64, message string) (*models.ChatMessage, error)

	// History returns recent messages of a room, oldest first
	History(ctx context.Context, roomID int64) ([]*models.ChatMessage, error)
}

package models

import "errors"

// Error taxonomy shared by the services and the dispatcher. Callers wrap these
// with fmt.Errorf("...: %w", ErrX) and match them with errors.Is.
var (
	ErrAuth                = errors.New("authentication failed")
	ErrBanned              = errors.New("account is banned")
	ErrNotInRoom           = errors.New("not in a room")
	ErrRoomFull            = errors.New("room is full")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProposalNotFound    = errors.New("betting proposal not found")
	ErrAlreadyLocked       = errors.New("betting is already locked")
	ErrStore               = errors.New("store error")
	ErrNoOpponent          = errors.New("waiting for an opponent")
	ErrNotPlaying          = errors.New("no game in progress")
	ErrGameNotOver         = errors.New("game is not over")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidReport       = errors.New("invalid report")
	ErrInvalidMessage      = errors.New("invalid chat message")
)

// BannedError is ErrBanned for a resolved user
type BannedError struct {
	UserID int64
}

func (e *BannedError) Error() string {
	return ErrBanned.Error()
}

func (e *BannedError) Is(target error) bool {
	return target == ErrBanned
}

package events

import (
	"context"
	"sync"

	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange  EventType = "balance_change"
	EventTypeBettingLocked  EventType = "betting_locked"
	EventTypeBettingSettled EventType = "betting_settled"
	EventTypeMatchFinished  EventType = "match_finished"
	EventTypeUserBanned     EventType = "user_banned"
)

// AllEventTypes lists every event type emitted by the services
var AllEventTypes = []EventType{
	EventTypeBalanceChange,
	EventTypeBettingLocked,
	EventTypeBettingSettled,
	EventTypeMatchFinished,
	EventTypeUserBanned,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a committed balance change of one user
type BalanceChangeEvent struct {
	UserID          int64                  `json:"userId"`
	RoomID          int64                  `json:"roomId"`
	MatchID         uuid.UUID              `json:"matchId"`
	OldBalance      decimal.Decimal        `json:"oldBalance"`
	NewBalance      decimal.Decimal        `json:"newBalance"`
	TransactionType models.TransactionType `json:"transactionType"`
	ChangeAmount    decimal.Decimal        `json:"changeAmount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// BettingLockedEvent is emitted when both stakes were debited into escrow
type BettingLockedEvent struct {
	RoomID  int64           `json:"roomId"`
	MatchID uuid.UUID       `json:"matchId"`
	Amount  decimal.Decimal `json:"amount"`
	UserIDs []int64         `json:"userIds"`
}

func (e BettingLockedEvent) Type() EventType {
	return EventTypeBettingLocked
}

// BettingSettledEvent is emitted once per match whose stake was paid out or refunded
type BettingSettledEvent struct {
	RoomID   int64           `json:"roomId"`
	MatchID  uuid.UUID       `json:"matchId"`
	Pot      decimal.Decimal `json:"pot"`
	Payout   decimal.Decimal `json:"payout"`
	Fee      decimal.Decimal `json:"fee"`
	WinnerID *int64          `json:"winnerId,omitempty"`
	Refunded bool            `json:"refunded"`
}

func (e BettingSettledEvent) Type() EventType {
	return EventTypeBettingSettled
}

// MatchFinishedEvent is emitted when a match record is written
type MatchFinishedEvent struct {
	RoomID   int64     `json:"roomId"`
	MatchID  uuid.UUID `json:"matchId"`
	GameType string    `json:"gameType"`
	WinnerID *int64    `json:"winnerId,omitempty"`
	IsDraw   bool      `json:"isDraw"`
	Reason   string    `json:"reason"`
}

func (e MatchFinishedEvent) Type() EventType {
	return EventTypeMatchFinished
}

// UserBannedEvent is emitted when the report threshold bans a user
type UserBannedEvent struct {
	UserID      int64 `json:"userId"`
	ReportCount int   `json:"reportCount"`
}

func (e UserBannedEvent) Type() EventType {
	return EventTypeUserBanned
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers. Handlers run on their
// own goroutines; a panicking handler is logged and dropped.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// TransactionalBus holds events raised inside a unit of work until the
// transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Flush is called after a successful commit. Handlers get a background
// context since the transaction context may already be done.
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing pending events")

	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}

// Pending returns the number of events waiting for a commit
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

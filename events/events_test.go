package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"arenaserver/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionalBus_FlushDeliversAfterCommit(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	received := make(chan BalanceChangeEvent, 1)
	mainBus.Subscribe(EventTypeBalanceChange, func(ctx context.Context, event Event) {
		if balanceEvent, ok := event.(BalanceChangeEvent); ok {
			received <- balanceEvent
		}
	})

	testEvent := BalanceChangeEvent{
		UserID:          7,
		OldBalance:      decimal.RequireFromString("1.00"),
		NewBalance:      decimal.RequireFromString("0.75"),
		TransactionType: models.TransactionTypeStakeLock,
		ChangeAmount:    decimal.RequireFromString("-0.25"),
	}
	transactionalBus.Publish(testEvent)
	assert.Equal(t, 1, transactionalBus.Pending())

	select {
	case <-received:
		t.Fatal("event delivered before flush")
	case <-time.After(20 * time.Millisecond):
	}

	transactionalBus.Flush(context.Background())
	assert.Equal(t, 0, transactionalBus.Pending())

	select {
	case got := <-received:
		assert.Equal(t, int64(7), got.UserID)
		assert.True(t, got.NewBalance.Equal(decimal.RequireFromString("0.75")))
	case <-time.After(time.Second):
		t.Fatal("event not delivered after flush")
	}
}

func TestTransactionalBus_DiscardDropsEvents(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var mu sync.Mutex
	calls := 0
	mainBus.Subscribe(EventTypeUserBanned, func(ctx context.Context, event Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	transactionalBus.Publish(UserBannedEvent{UserID: 1, ReportCount: 5})
	transactionalBus.Discard()
	transactionalBus.Flush(context.Background())
	mainBus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	bus.Subscribe(EventTypeMatchFinished, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeMatchFinished, func(ctx context.Context, event Event) {
		close(done)
	})

	bus.Emit(context.Background(), MatchFinishedEvent{RoomID: 1, Reason: "checkmate"})
	bus.Wait()

	select {
	case <-done:
	default:
		require.Fail(t, "second handler did not run")
	}
}

package service

import (
	"context"

	"arenaserver/events"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) AddBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockUserRepository) DeductBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementReportCount(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	args := m.Called(ctx, id, banned)
	return args.Error(0)
}

// MockRoomRepository is a mock implementation of RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Create(ctx context.Context, room *models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRoomRepository) GetAll(ctx context.Context) ([]*models.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Room), args.Error(1)
}

func (m *MockRoomRepository) UpdateStatus(ctx context.Context, id int64, status models.RoomStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRoomRepository) UpdateBetting(ctx context.Context, id int64, amount decimal.Decimal, status models.BettingStatus) error {
	args := m.Called(ctx, id, amount, status)
	return args.Error(0)
}

func (m *MockRoomRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRoomRepository) AddMember(ctx context.Context, member *models.RoomMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockRoomRepository) RemoveMember(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MockRoomRepository) SetHost(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MockRoomRepository) GetMembers(ctx context.Context, roomID int64) ([]*models.RoomMember, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoomMember), args.Error(1)
}

// MockBettingProposalRepository is a mock implementation of BettingProposalRepository
type MockBettingProposalRepository struct {
	mock.Mock
}

func (m *MockBettingProposalRepository) Upsert(ctx context.Context, roomID, proposerID int64, amount decimal.Decimal) (*models.BettingProposal, error) {
	args := m.Called(ctx, roomID, proposerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BettingProposal), args.Error(1)
}

func (m *MockBettingProposalRepository) GetPending(ctx context.Context, roomID, proposerID int64) (*models.BettingProposal, error) {
	args := m.Called(ctx, roomID, proposerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BettingProposal), args.Error(1)
}

func (m *MockBettingProposalRepository) GetPendingByRoom(ctx context.Context, roomID int64) ([]*models.BettingProposal, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BettingProposal), args.Error(1)
}

func (m *MockBettingProposalRepository) SetStatus(ctx context.Context, id int64, status models.ProposalStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockBettingProposalRepository) RejectAllPending(ctx context.Context, roomID int64) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

// MockBettingTransactionRepository is a mock implementation of BettingTransactionRepository
type MockBettingTransactionRepository struct {
	mock.Mock
}

func (m *MockBettingTransactionRepository) Record(ctx context.Context, entry *models.BettingTransaction) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockBettingTransactionRepository) GetByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.BettingTransaction, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BettingTransaction), args.Error(1)
}

func (m *MockBettingTransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BettingTransaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BettingTransaction), args.Error(1)
}

// MockMatchRepository is a mock implementation of MatchRepository
type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) Create(ctx context.Context, match *models.Match) (bool, error) {
	args := m.Called(ctx, match)
	return args.Bool(0), args.Error(1)
}

func (m *MockMatchRepository) GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

// MockChatRepository is a mock implementation of ChatRepository
type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockChatRepository) GetRecent(ctx context.Context, roomID int64, limit int) ([]*models.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChatMessage), args.Error(1)
}

// MockReportRepository is a mock implementation of ReportRepository
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(ctx context.Context, report *models.UserReport) (bool, error) {
	args := m.Called(ctx, report)
	return args.Bool(0), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock

	userRepo       UserRepository
	roomRepo       RoomRepository
	proposalRepo   BettingProposalRepository
	ledgerRepo     BettingTransactionRepository
	matchRepo      MatchRepository
	chatRepo       ChatRepository
	reportRepo     ReportRepository
	eventPublisher EventPublisher
}

// SetRepositories installs the repositories returned by the getters. Nil
// arguments leave the current value in place.
func (m *MockUnitOfWork) SetRepositories(users UserRepository, rooms RoomRepository, proposals BettingProposalRepository, ledger BettingTransactionRepository, matches MatchRepository) {
	if users != nil {
		m.userRepo = users
	}
	if rooms != nil {
		m.roomRepo = rooms
	}
	if proposals != nil {
		m.proposalRepo = proposals
	}
	if ledger != nil {
		m.ledgerRepo = ledger
	}
	if matches != nil {
		m.matchRepo = matches
	}
}

// SetChatRepositories installs the chat and report repositories
func (m *MockUnitOfWork) SetChatRepositories(chat ChatRepository, reports ReportRepository) {
	m.chatRepo = chat
	m.reportRepo = reports
}

// SetEventPublisher installs the publisher returned by EventBus
func (m *MockUnitOfWork) SetEventPublisher(publisher EventPublisher) {
	m.eventPublisher = publisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository                             { return m.userRepo }
func (m *MockUnitOfWork) RoomRepository() RoomRepository                             { return m.roomRepo }
func (m *MockUnitOfWork) BettingProposalRepository() BettingProposalRepository       { return m.proposalRepo }
func (m *MockUnitOfWork) BettingTransactionRepository() BettingTransactionRepository { return m.ledgerRepo }
func (m *MockUnitOfWork) MatchRepository() MatchRepository                           { return m.matchRepo }
func (m *MockUnitOfWork) ChatRepository() ChatRepository                             { return m.chatRepo }
func (m *MockUnitOfWork) ReportRepository() ReportRepository                         { return m.reportRepo }
func (m *MockUnitOfWork) EventBus() EventPublisher                                   { return m.eventPublisher }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockSettler is a mock implementation of Settler
type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, room *LiveRoom) (*Settlement, error) {
	args := m.Called(ctx, room)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Settlement), args.Error(1)
}

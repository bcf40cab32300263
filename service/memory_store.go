package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arenaserver/events"
	"arenaserver/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory stand-in for the database used by tests. A unit
// of work holds txMu from Begin until Commit or Rollback, and Rollback restores
// the state captured at Begin.
type MemoryStore struct {
	txMu sync.Mutex

	data      memoryData
	published []events.Event
	clock     time.Time
	bus       *events.Bus
}

type memoryData struct {
	nextID    int64
	users     map[int64]models.User
	rooms     map[int64]models.Room
	members   map[int64][]models.RoomMember
	proposals map[int64]models.BettingProposal
	ledger    []models.BettingTransaction
	matches   map[uuid.UUID]models.Match
	chat      []models.ChatMessage
	reports   []models.UserReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		data: memoryData{
			users:     make(map[int64]models.User),
			rooms:     make(map[int64]models.Room),
			members:   make(map[int64][]models.RoomMember),
			proposals: make(map[int64]models.BettingProposal),
			matches:   make(map[uuid.UUID]models.Match),
		},
	}
}

// EmitTo forwards committed events to bus, the way the transactional bus does
func (s *MemoryStore) EmitTo(bus *events.Bus) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.bus = bus
}

// UpdateUser mutates a stored user outside any unit of work
func (s *MemoryStore) UpdateUser(userID int64, fn func(u *models.User)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	u := s.data.users[userID]
	fn(&u)
	s.data.users[userID] = u
}

// PutRoom stores room as is, replacing any room with the same id
func (s *MemoryStore) PutRoom(room models.Room) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.data.rooms[room.ID] = room
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		nextID:    d.nextID,
		users:     make(map[int64]models.User, len(d.users)),
		rooms:     make(map[int64]models.Room, len(d.rooms)),
		members:   make(map[int64][]models.RoomMember, len(d.members)),
		proposals: make(map[int64]models.BettingProposal, len(d.proposals)),
		ledger:    append([]models.BettingTransaction(nil), d.ledger...),
		matches:   make(map[uuid.UUID]models.Match, len(d.matches)),
		chat:      append([]models.ChatMessage(nil), d.chat...),
		reports:   append([]models.UserReport(nil), d.reports...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.rooms {
		c.rooms[k] = v
	}
	for k, v := range d.members {
		c.members[k] = append([]models.RoomMember(nil), v...)
	}
	for k, v := range d.proposals {
		c.proposals[k] = v
	}
	for k, v := range d.matches {
		c.matches[k] = v
	}
	return c
}

func (s *MemoryStore) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *MemoryStore) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// SeedUser inserts a user outside any unit of work
func (s *MemoryStore) SeedUser(balance string) int64 {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	id := s.id()
	s.data.users[id] = models.User{
		ID:       id,
		Username: fmt.Sprintf("player%d", id),
		Balance:  decimal.RequireFromString(balance),
	}
	return id
}

func (s *MemoryStore) Balance(userID int64) decimal.Decimal {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.data.users[userID].Balance
}

func (s *MemoryStore) User(userID int64) models.User {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.data.users[userID]
}

func (s *MemoryStore) Room(roomID int64) (models.Room, bool) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	room, ok := s.data.rooms[roomID]
	return room, ok
}

func (s *MemoryStore) RoomMembers(roomID int64) []models.RoomMember {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return append([]models.RoomMember(nil), s.data.members[roomID]...)
}

func (s *MemoryStore) LedgerOf(txType models.TransactionType) []models.BettingTransaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var out []models.BettingTransaction
	for _, e := range s.data.ledger {
		if e.Type == txType {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) MatchCount() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return len(s.data.matches)
}

func (s *MemoryStore) EventsOf(eventType events.EventType) []events.Event {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var out []events.Event
	for _, e := range s.published {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MemoryUnitOfWorkFactory creates units of work over a MemoryStore
type MemoryUnitOfWorkFactory struct {
	store *MemoryStore
}

func NewMemoryUnitOfWorkFactory(store *MemoryStore) *MemoryUnitOfWorkFactory {
	return &MemoryUnitOfWorkFactory{store: store}
}

func (f *MemoryUnitOfWorkFactory) Create() UnitOfWork {
	return &memoryUnitOfWork{store: f.store}
}

type memoryUnitOfWork struct {
	store    *MemoryStore
	snapshot memoryData
	pending  []events.Event
	active   bool
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error {
	u.store.txMu.Lock()
	u.snapshot = u.store.data.clone()
	u.active = true
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("transaction not started")
	}
	committed := u.pending
	bus := u.store.bus
	u.store.published = append(u.store.published, committed...)
	u.pending = nil
	u.active = false
	u.store.txMu.Unlock()

	if bus != nil {
		for _, event := range committed {
			bus.Emit(context.Background(), event)
		}
	}
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	if !u.active {
		return nil
	}
	u.store.data = u.snapshot
	u.pending = nil
	u.active = false
	u.store.txMu.Unlock()
	return nil
}

func (u *memoryUnitOfWork) UserRepository() UserRepository { return memoryUsers{u.store} }
func (u *memoryUnitOfWork) RoomRepository() RoomRepository { return memoryRooms{u.store} }
func (u *memoryUnitOfWork) BettingProposalRepository() BettingProposalRepository {
	return memoryProposals{u.store}
}
func (u *memoryUnitOfWork) BettingTransactionRepository() BettingTransactionRepository {
	return memoryLedger{u.store}
}
func (u *memoryUnitOfWork) MatchRepository() MatchRepository   { return memoryMatches{u.store} }
func (u *memoryUnitOfWork) ChatRepository() ChatRepository     { return memoryChat{u.store} }
func (u *memoryUnitOfWork) ReportRepository() ReportRepository { return memoryReports{u.store} }
func (u *memoryUnitOfWork) EventBus() EventPublisher           { return u }

func (u *memoryUnitOfWork) Publish(event events.Event) {
	u.pending = append(u.pending, event)
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, ok := r.s.data.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r memoryUsers) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r memoryUsers) AddBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	user, ok := r.s.data.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	user.Balance = user.Balance.Add(amount)
	r.s.data.users[id] = user
	return nil
}

func (r memoryUsers) DeductBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	user, ok := r.s.data.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	if user.Balance.LessThan(amount) {
		return models.ErrInsufficientBalance
	}
	user.Balance = user.Balance.Sub(amount)
	r.s.data.users[id] = user
	return nil
}

func (r memoryUsers) IncrementReportCount(ctx context.Context, id int64) (int, error) {
	user, ok := r.s.data.users[id]
	if !ok {
		return 0, fmt.Errorf("user %d not found", id)
	}
	user.ReportCount++
	r.s.data.users[id] = user
	return user.ReportCount, nil
}

func (r memoryUsers) SetBanned(ctx context.Context, id int64, banned bool) error {
	user, ok := r.s.data.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	user.Banned = banned
	r.s.data.users[id] = user
	return nil
}

type memoryRooms struct{ s *MemoryStore }

func (r memoryRooms) Create(ctx context.Context, room *models.Room) error {
	room.ID = r.s.id()
	room.CreatedAt = r.s.now()
	room.UpdatedAt = room.CreatedAt
	r.s.data.rooms[room.ID] = *room
	return nil
}

func (r memoryRooms) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	room, ok := r.s.data.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (r memoryRooms) GetAll(ctx context.Context) ([]*models.Room, error) {
	var rooms []*models.Room
	for _, room := range r.s.data.rooms {
		room := room
		rooms = append(rooms, &room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (r memoryRooms) UpdateStatus(ctx context.Context, id int64, status models.RoomStatus) error {
	room, ok := r.s.data.rooms[id]
	if !ok {
		return fmt.Errorf("room %d not found", id)
	}
	room.Status = status
	r.s.data.rooms[id] = room
	return nil
}

func (r memoryRooms) UpdateBetting(ctx context.Context, id int64, amount decimal.Decimal, status models.BettingStatus) error {
	room, ok := r.s.data.rooms[id]
	if !ok {
		return fmt.Errorf("room %d not found", id)
	}
	room.BettingAmount = amount
	room.BettingStatus = status
	r.s.data.rooms[id] = room
	return nil
}

func (r memoryRooms) Delete(ctx context.Context, id int64) error {
	delete(r.s.data.rooms, id)
	delete(r.s.data.members, id)
	for pid, p := range r.s.data.proposals {
		if p.RoomID == id {
			delete(r.s.data.proposals, pid)
		}
	}
	return nil
}

func (r memoryRooms) AddMember(ctx context.Context, member *models.RoomMember) error {
	for _, members := range r.s.data.members {
		for _, m := range members {
			if m.UserID == member.UserID {
				return fmt.Errorf("%w: user %d already seated", models.ErrStore, member.UserID)
			}
		}
	}
	member.JoinedAt = r.s.now()
	r.s.data.members[member.RoomID] = append(r.s.data.members[member.RoomID], *member)
	return nil
}

func (r memoryRooms) RemoveMember(ctx context.Context, roomID, userID int64) error {
	var kept []models.RoomMember
	for _, m := range r.s.data.members[roomID] {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	r.s.data.members[roomID] = kept
	return nil
}

func (r memoryRooms) SetHost(ctx context.Context, roomID, userID int64) error {
	members := r.s.data.members[roomID]
	for i := range members {
		members[i].IsHost = members[i].UserID == userID
	}
	return nil
}

func (r memoryRooms) GetMembers(ctx context.Context, roomID int64) ([]*models.RoomMember, error) {
	var out []*models.RoomMember
	for _, m := range r.s.data.members[roomID] {
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinOrder < out[j].JoinOrder })
	return out, nil
}

type memoryProposals struct{ s *MemoryStore }

func (r memoryProposals) Upsert(ctx context.Context, roomID, proposerID int64, amount decimal.Decimal) (*models.BettingProposal, error) {
	for id, p := range r.s.data.proposals {
		if p.RoomID == roomID && p.ProposerID == proposerID && p.Status == models.ProposalStatusPending {
			p.Amount = amount
			r.s.data.proposals[id] = p
			return &p, nil
		}
	}
	p := models.BettingProposal{
		ID:         r.s.id(),
		RoomID:     roomID,
		ProposerID: proposerID,
		Amount:     amount,
		Status:     models.ProposalStatusPending,
		CreatedAt:  r.s.now(),
	}
	r.s.data.proposals[p.ID] = p
	return &p, nil
}

func (r memoryProposals) GetPending(ctx context.Context, roomID, proposerID int64) (*models.BettingProposal, error) {
	for _, p := range r.s.data.proposals {
		if p.RoomID == roomID && p.ProposerID == proposerID && p.Status == models.ProposalStatusPending {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memoryProposals) GetPendingByRoom(ctx context.Context, roomID int64) ([]*models.BettingProposal, error) {
	var out []*models.BettingProposal
	for _, p := range r.s.data.proposals {
		if p.RoomID == roomID && p.Status == models.ProposalStatusPending {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryProposals) SetStatus(ctx context.Context, id int64, status models.ProposalStatus) error {
	p, ok := r.s.data.proposals[id]
	if !ok {
		return fmt.Errorf("proposal %d not found", id)
	}
	p.Status = status
	r.s.data.proposals[id] = p
	return nil
}

func (r memoryProposals) RejectAllPending(ctx context.Context, roomID int64) (int64, error) {
	var n int64
	for id, p := range r.s.data.proposals {
		if p.RoomID == roomID && p.Status == models.ProposalStatusPending {
			p.Status = models.ProposalStatusRejected
			r.s.data.proposals[id] = p
			n++
		}
	}
	return n, nil
}

type memoryLedger struct{ s *MemoryStore }

func (r memoryLedger) Record(ctx context.Context, entry *models.BettingTransaction) error {
	entry.ID = r.s.id()
	entry.CreatedAt = r.s.now()
	r.s.data.ledger = append(r.s.data.ledger, *entry)
	return nil
}

func (r memoryLedger) GetByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.BettingTransaction, error) {
	var out []*models.BettingTransaction
	for _, e := range r.s.data.ledger {
		if e.MatchID == matchID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r memoryLedger) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BettingTransaction, error) {
	var out []*models.BettingTransaction
	for i := len(r.s.data.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.s.data.ledger[i]
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, &e)
		}
	}
	return out, nil
}

type memoryMatches struct{ s *MemoryStore }

func (r memoryMatches) Create(ctx context.Context, match *models.Match) (bool, error) {
	if _, ok := r.s.data.matches[match.MatchID]; ok {
		return false, nil
	}
	match.ID = r.s.id()
	match.CreatedAt = r.s.now()
	r.s.data.matches[match.MatchID] = *match
	return true, nil
}

func (r memoryMatches) GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	m, ok := r.s.data.matches[matchID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

type memoryChat struct{ s *MemoryStore }

func (r memoryChat) Create(ctx context.Context, msg *models.ChatMessage) error {
	msg.ID = r.s.id()
	msg.CreatedAt = r.s.now()
	r.s.data.chat = append(r.s.data.chat, *msg)
	return nil
}

func (r memoryChat) GetRecent(ctx context.Context, roomID int64, limit int) ([]*models.ChatMessage, error) {
	var out []*models.ChatMessage
	for i := len(r.s.data.chat) - 1; i >= 0 && len(out) < limit; i-- {
		if m := r.s.data.chat[i]; m.RoomID == roomID {
			out = append([]*models.ChatMessage{&m}, out...)
		}
	}
	return out, nil
}

type memoryReports struct{ s *MemoryStore }

func (r memoryReports) Create(ctx context.Context, report *models.UserReport) (bool, error) {
	for _, existing := range r.s.data.reports {
		if existing.ReporterID == report.ReporterID && existing.ReportedID == report.ReportedID {
			return false, nil
		}
	}
	report.ID = r.s.id()
	report.CreatedAt = r.s.now()
	r.s.data.reports = append(r.s.data.reports, *report)
	return true, nil
}

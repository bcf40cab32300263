package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"arenaserver/events"
	"arenaserver/game"
	"arenaserver/models"
	"arenaserver/service"
	"arenaserver/session"

	log "github.com/sirupsen/logrus"
)

// Dispatcher binds inbound messages to the services and emits the outbound
// messages they produce
type Dispatcher struct {
	registry   *session.Registry
	auth       service.AuthService
	rooms      service.RoomService
	betting    service.BettingService
	chat       service.ChatService
	moderation service.ModerationService
	hub        *Hub
}

// NewDispatcher creates a dispatcher and takes over the room service's
// stale-leave notifications
func NewDispatcher(
	registry *session.Registry,
	auth service.AuthService,
	rooms service.RoomService,
	betting service.BettingService,
	chat service.ChatService,
	moderation service.ModerationService,
	hub *Hub,
) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		auth:       auth,
		rooms:      rooms,
		betting:    betting,
		chat:       chat,
		moderation: moderation,
		hub:        hub,
	}
	rooms.OnStaleLeave(d.notifyLeave)
	return d
}

// Attach subscribes the dispatcher to the committed domain events it relays
// to live connections
func (d *Dispatcher) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBalanceChange, d.onBalanceChange)
	bus.Subscribe(events.EventTypeUserBanned, d.onUserBanned)
}

// Close terminates every live session and every room subscription
func (d *Dispatcher) Close(reason string) {
	sessions := d.registry.CloseAll(reason)
	d.hub.Close(reason)
	log.WithField("sessions", sessions).Info("Dispatcher closed")
}

// Handle processes one inbound frame of c
func (d *Dispatcher) Handle(ctx context.Context, c *Client, raw []byte) {
	var envelope Envelope
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"conn_id": c.ID(),
				"type":    envelope.Type,
				"panic":   r,
			}).Error("Message handler panicked")
			c.Send(TypeError, errorMessage{Message: msgServerError})
		}
	}()

	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Type == "" {
		c.Send(TypeError, errorMessage{Message: "malformed message"})
		return
	}

	if envelope.Type == TypeUserConnect {
		d.fail(ctx, c, 0, envelope.Type, d.handleConnect(ctx, c, envelope.Data))
		return
	}

	userID, ok := d.registry.UserFor(c.ID())
	if !ok {
		c.Send(TypeError, errorMessage{Message: msgNotConnected})
		return
	}
	if err := d.auth.CheckBanned(ctx, userID); err != nil {
		d.fail(ctx, c, userID, envelope.Type, err)
		return
	}

	var err error
	switch envelope.Type {
	case TypeJoinRandom:
		err = d.handleJoin(ctx, c, userID, envelope.Data, false)
	case TypeJoinKeyword:
		err = d.handleJoin(ctx, c, userID, envelope.Data, true)
	case TypeRequestGameState:
		err = d.handleGameState(ctx, c, userID)
	case TypePlayerMove:
		err = d.handleMove(ctx, userID, envelope.Data)
	case TypePawnPromotion:
		err = d.handlePromotion(ctx, userID, envelope.Data)
	case TypeReportUser:
		err = d.handleReport(ctx, c, userID, envelope.Data)
	case TypeChatMessage:
		err = d.handleChat(ctx, userID, envelope.Data)
	case TypeProposeBetting:
		err = d.handlePropose(ctx, c, userID, envelope.Data)
	case TypeAcceptBetting:
		err = d.handleAccept(ctx, userID, envelope.Data)
	case TypeRejectBetting:
		err = d.handleReject(ctx, c, userID)
	case TypeGetBettingInfo:
		err = d.handleBettingInfo(ctx, c, userID)
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCIceCandidate:
		err = d.handleRelay(ctx, userID, envelope.Type, envelope.Data)
	case TypeRematchRequest:
		err = d.handleRematch(ctx, userID)
	case TypeLeaveRoom:
		err = d.handleLeave(ctx, c, userID)
	default:
		c.Send(TypeError, errorMessage{Message: msgUnknownMessage})
		return
	}
	d.fail(ctx, c, userID, envelope.Type, err)
}

// Disconnect releases a closed connection. Only the canonical connection of
// a user gives up the user's seat.
func (d *Dispatcher) Disconnect(ctx context.Context, c *Client) {
	d.hub.Unsubscribe(c)

	userID, canonical := d.registry.Teardown(c)
	if !canonical {
		return
	}
	if err := d.rooms.Leave(ctx, userID, d.notifyLeave); err != nil && !errors.Is(err, models.ErrNotInRoom) {
		log.WithFields(log.Fields{
			"conn_id": c.ID(),
			"user_id": userID,
		}).WithError(err).Error("Failed to release seat of disconnected user")
	}
	log.WithFields(log.Fields{
		"conn_id": c.ID(),
		"user_id": userID,
	}).Info("Client disconnected")
}

func (d *Dispatcher) fail(ctx context.Context, c *Client, userID int64, msgType string, err error) {
	if err == nil {
		return
	}

	if errors.Is(err, models.ErrBanned) {
		if userID == 0 {
			// rejected user_connect: close this socket and every other session of the user
			c.Send(TypeAccountBanned, errorMessage{Message: models.ErrBanned.Error()})
			c.Terminate(ReasonAccountBanned)
			var banned *models.BannedError
			if errors.As(err, &banned) {
				d.ban(ctx, banned.UserID)
			}
			return
		}
		d.ban(ctx, userID)
		return
	}

	fields := log.Fields{
		"conn_id": c.ID(),
		"user_id": userID,
		"type":    msgType,
	}
	message := err.Error()
	if errors.Is(err, models.ErrStore) {
		log.WithFields(fields).WithError(err).Error("Message failed on store error")
		message = msgServerError
	} else {
		log.WithFields(fields).WithError(err).Debug("Message rejected")
	}
	c.Send(TypeError, errorMessage{Message: message})
}

// ban notifies and disconnects a banned user. The seat is released first so
// the opponent is credited with the forfeit.
func (d *Dispatcher) ban(ctx context.Context, userID int64) {
	d.sendToUser(userID, TypeAccountBanned, errorMessage{Message: models.ErrBanned.Error()})
	if err := d.rooms.Leave(ctx, userID, d.notifyLeave); err != nil && !errors.Is(err, models.ErrNotInRoom) {
		log.WithField("user_id", userID).WithError(err).Error("Failed to release seat of banned user")
	}
	d.registry.Kick(userID, ReasonAccountBanned)
}

func (d *Dispatcher) sendToUser(userID int64, msgType string, data any) bool {
	if userID == 0 {
		return false
	}
	conn, ok := d.registry.Conn(userID)
	if !ok {
		return false
	}
	client, ok := conn.(*Client)
	if !ok {
		return false
	}
	client.Send(msgType, data)
	return true
}

func (d *Dispatcher) handleConnect(ctx context.Context, c *Client, data json.RawMessage) error {
	var cred session.Credential
	if err := decode(data, &cred); err != nil {
		return err
	}

	user, err := d.registry.Authenticate(ctx, cred)
	if err != nil {
		if service.IsAuthError(err) {
			log.WithField("conn_id", c.ID()).WithError(err).Info("Rejected user_connect")
		}
		return err
	}

	if previous := c.UserID(); previous != 0 && previous != user.ID {
		return session.ErrConnBound
	}
	if err := d.registry.Register(user.ID, c); err != nil {
		return err
	}
	c.bind(user.ID)

	msg := connectedMessage{
		UserID:   user.ID,
		Username: user.Username,
		Balance:  user.Balance,
	}
	roomID, inRoom := d.rooms.RoomOf(user.ID)
	if inRoom {
		msg.RoomID = &roomID
	}
	c.Send(TypeConnected, msg)

	log.WithFields(log.Fields{
		"conn_id": c.ID(),
		"user_id": user.ID,
	}).Info("User connected")

	if !inRoom {
		return nil
	}
	// resynchronise a reconnecting player with the seat they still hold
	return d.rooms.WithUserRoom(ctx, user.ID, func(lr *service.LiveRoom) error {
		d.hub.Subscribe(lr.ID(), c)
		d.sendState(c, user.ID, lr)
		d.sendHistory(ctx, c, lr.ID())
		return nil
	})
}

func (d *Dispatcher) handleJoin(ctx context.Context, c *Client, userID int64, data json.RawMessage, byKeyword bool) error {
	var req joinRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	gameType, err := game.ParseType(req.GameType)
	if err != nil {
		return err
	}

	joined := func(lr *service.LiveRoom, outcome service.JoinOutcome) error {
		d.hub.Subscribe(lr.ID(), c)
		d.sendHistory(ctx, c, lr.ID())
		if outcome.Started {
			d.hub.Broadcast(lr.ID(), TypePlayerJoined, playerJoinedMessage{RoomID: lr.ID(), UserID: userID}, userID)
			d.startGame(lr)
			return nil
		}
		d.sendState(c, userID, lr)
		return nil
	}

	if byKeyword {
		return d.rooms.JoinKeyword(ctx, userID, gameType, req.Keyword, joined)
	}
	return d.rooms.JoinRandom(ctx, userID, gameType, joined)
}

func (d *Dispatcher) handleGameState(ctx context.Context, c *Client, userID int64) error {
	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		d.sendState(c, userID, lr)
		return nil
	})
}

func (d *Dispatcher) handleMove(ctx context.Context, userID int64, data json.RawMessage) error {
	var req moveRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if trimmed := bytes.TrimSpace(req.Move); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: missing move", game.ErrInvalidMove)
	}

	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		if err := checkGameType(lr, req.GameType); err != nil {
			return err
		}
		outcome, err := d.rooms.Move(ctx, lr, userID, req.Move)
		if err != nil {
			return err
		}
		d.emitMove(lr, userID, outcome, req.Move, "")
		return nil
	})
}

func (d *Dispatcher) handlePromotion(ctx context.Context, userID int64, data json.RawMessage) error {
	var req promotionRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		if err := checkGameType(lr, req.GameType); err != nil {
			return err
		}
		outcome, err := d.rooms.Promote(ctx, lr, userID, req.Position, req.PromotionType)
		if err != nil {
			return err
		}
		d.emitMove(lr, userID, outcome, nil, req.PromotionType)
		return nil
	})
}

func checkGameType(lr *service.LiveRoom, requested string) error {
	if requested == "" {
		return nil
	}
	gameType, err := game.ParseType(requested)
	if err != nil {
		return err
	}
	if gameType != lr.GameType() {
		return fmt.Errorf("%w: room plays %s", game.ErrInvalidMove, lr.GameType())
	}
	return nil
}

func (d *Dispatcher) emitMove(lr *service.LiveRoom, userID int64, outcome *service.MoveOutcome, move json.RawMessage, promotion string) {
	d.hub.Broadcast(lr.ID(), TypeMoveUpdate, moveUpdateMessage{
		RoomID:    lr.ID(),
		UserID:    userID,
		Side:      outcome.Side,
		Move:      move,
		Promotion: promotion,
		GameState: outcome.State,
		Turn:      outcome.State.SideToMove(),
	}, 0)

	if outcome.PromotionPending != nil {
		d.sendToUser(userID, TypePawnPromotionRequired, promotionRequiredMessage{
			RoomID:   lr.ID(),
			Position: *outcome.PromotionPending,
		})
	}

	if outcome.Result != nil {
		var winnerID *int64
		if lr.Game != nil {
			winnerID = lr.Game.WinnerID()
		}
		d.hub.Broadcast(lr.ID(), TypeGameOver, gameOverMessage{
			RoomID:     lr.ID(),
			MatchID:    outcome.MatchID,
			Winner:     outcome.Result.Winner,
			WinnerID:   winnerID,
			IsDraw:     outcome.Result.IsDraw,
			Reason:     outcome.Result.Reason,
			GameState:  outcome.State,
			Settlement: outcome.Settlement,
		}, 0)
	}
}

func (d *Dispatcher) handleReport(ctx context.Context, c *Client, userID int64, data json.RawMessage) error {
	var req reportRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	var roomID *int64
	if id, ok := d.rooms.RoomOf(userID); ok {
		roomID = &id
	}

	outcome, err := d.moderation.Report(ctx, userID, req.ReportedUserID, roomID, req.Reason)
	if err != nil {
		return err
	}
	c.Send(TypeReportSuccess, reportSuccessMessage{
		ReportedUserID: req.ReportedUserID,
		Duplicate:      outcome.Duplicate,
	})
	return nil
}

func (d *Dispatcher) handleChat(ctx context.Context, userID int64, data json.RawMessage) error {
	var req chatRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	roomID, ok := d.rooms.RoomOf(userID)
	if !ok {
		return models.ErrNotInRoom
	}
	msg, err := d.chat.Post(ctx, roomID, userID, req.Message)
	if err != nil {
		return err
	}
	d.hub.Broadcast(roomID, TypeChatMessage, chatView(msg), 0)
	return nil
}

func (d *Dispatcher) handlePropose(ctx context.Context, c *Client, userID int64, data json.RawMessage) error {
	var req amountRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		proposal, err := d.betting.Propose(ctx, lr, userID, req.Amount)
		if err != nil {
			return err
		}
		msg := proposalMessage{RoomID: lr.ID(), ProposerID: userID, Amount: proposal.Amount}
		c.Send(TypeBettingProposalSent, msg)
		d.sendToUser(lr.Opponent(userID), TypeBettingProposal, msg)
		return nil
	})
}

func (d *Dispatcher) handleAccept(ctx context.Context, userID int64, data json.RawMessage) error {
	var req amountRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		if err := d.betting.Accept(ctx, lr, userID, req.Amount); err != nil {
			return err
		}
		msg := lockedMessage{RoomID: lr.ID(), Amount: lr.Room.BettingAmount}
		if lr.Game != nil {
			msg.MatchID = lr.Game.MatchID
		}
		d.hub.Broadcast(lr.ID(), TypeBettingLocked, msg, 0)
		return nil
	})
}

func (d *Dispatcher) handleReject(ctx context.Context, c *Client, userID int64) error {
	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		rejected, err := d.betting.Reject(ctx, lr, userID)
		if err != nil {
			return err
		}
		msg := rejectedMessage{RoomID: lr.ID(), RejectedBy: userID, Rejected: rejected}
		c.Send(TypeBettingRejectedSent, msg)
		d.sendToUser(lr.Opponent(userID), TypeBettingProposalRejected, msg)
		return nil
	})
}

func (d *Dispatcher) handleBettingInfo(ctx context.Context, c *Client, userID int64) error {
	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		info, err := d.betting.Info(ctx, lr)
		if err != nil {
			return err
		}
		c.Send(TypeBettingInfo, info)
		return nil
	})
}

// handleRelay forwards a signalling message verbatim to the other member
func (d *Dispatcher) handleRelay(ctx context.Context, userID int64, msgType string, data json.RawMessage) error {
	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		opponent := lr.Opponent(userID)
		if opponent == 0 {
			return models.ErrNoOpponent
		}
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		d.sendToUser(opponent, msgType, data)
		return nil
	})
}

func (d *Dispatcher) handleRematch(ctx context.Context, userID int64) error {
	return d.rooms.WithUserRoom(ctx, userID, func(lr *service.LiveRoom) error {
		outcome, err := d.rooms.RequestRematch(ctx, lr, userID)
		if err != nil {
			return err
		}
		if !outcome.Started {
			d.hub.Broadcast(lr.ID(), TypeRematchPending, rematchMessage{
				RoomID:      lr.ID(),
				RequestedBy: userID,
				Votes:       outcome.Votes,
				Needed:      outcome.Needed,
			}, 0)
			return nil
		}
		d.hub.Broadcast(lr.ID(), TypeNewMatchStart, newMatchMessage{RoomID: lr.ID(), MatchID: lr.Game.MatchID}, 0)
		d.startGame(lr)
		return nil
	})
}

func (d *Dispatcher) handleLeave(ctx context.Context, c *Client, userID int64) error {
	return d.rooms.Leave(ctx, userID, func(lr *service.LiveRoom, outcome service.LeaveOutcome) error {
		c.Send(TypePlayerLeft, playerLeftMessage{RoomID: outcome.RoomID, UserID: userID, Forfeit: outcome.Forfeit})
		return d.notifyLeave(lr, outcome)
	})
}

// notifyLeave runs under the room lock after a seat was released
func (d *Dispatcher) notifyLeave(lr *service.LiveRoom, outcome service.LeaveOutcome) error {
	d.hub.UnsubscribeUser(outcome.RoomID, outcome.UserID)
	if outcome.RoomDeleted {
		return nil
	}

	d.hub.Broadcast(outcome.RoomID, TypePlayerLeft, playerLeftMessage{
		RoomID:  outcome.RoomID,
		UserID:  outcome.UserID,
		Forfeit: outcome.Forfeit,
	}, 0)

	if outcome.Forfeit && outcome.Result != nil {
		winnerID := outcome.RemainingID
		d.hub.Broadcast(outcome.RoomID, TypeGameOver, gameOverMessage{
			RoomID:     outcome.RoomID,
			MatchID:    outcome.MatchID,
			Winner:     outcome.Result.Winner,
			WinnerID:   &winnerID,
			Reason:     outcome.Result.Reason,
			GameState:  outcome.FinalState,
			Settlement: outcome.Settlement,
		}, 0)
	}

	d.sendToUser(outcome.RemainingID, TypeWaitingForPlayer, waitingView(lr, outcome.RemainingID))
	return nil
}

// startGame sends every member their own view of a started game
func (d *Dispatcher) startGame(lr *service.LiveRoom) {
	for _, userID := range lr.MemberIDs() {
		d.sendToUser(userID, TypeGameStart, gameStartView(lr, userID))
	}
}

func (d *Dispatcher) sendState(c *Client, userID int64, lr *service.LiveRoom) {
	if lr.Game != nil && lr.IsFull() {
		c.Send(TypeGameStart, gameStartView(lr, userID))
		return
	}
	c.Send(TypeWaitingForPlayer, waitingView(lr, userID))
}

func (d *Dispatcher) sendHistory(ctx context.Context, c *Client, roomID int64) {
	history, err := d.chat.History(ctx, roomID)
	if err != nil {
		log.WithField("room_id", roomID).WithError(err).Warn("Failed to load chat history")
		return
	}
	messages := make([]chatMessageView, 0, len(history))
	for _, m := range history {
		messages = append(messages, chatView(m))
	}
	c.Send(TypeChatHistory, chatHistoryMessage{RoomID: roomID, Messages: messages})
}

func gameStartView(lr *service.LiveRoom, userID int64) gameStartMessage {
	g := lr.Game
	players := make([]playerView, 0, len(lr.Members))
	for _, m := range lr.Members {
		players = append(players, playerView{UserID: m.UserID, Side: g.Sides[m.UserID], IsHost: m.IsHost})
	}
	side := g.Sides[userID]
	return gameStartMessage{
		RoomID:        lr.ID(),
		MatchID:       g.MatchID,
		GameType:      lr.GameType(),
		Players:       players,
		YourSide:      side,
		GameState:     g.State,
		CanMove:       !g.Over() && lr.Room.Status == models.RoomStatusPlaying && g.State.SideToMove() == side,
		BettingAmount: lr.Room.BettingAmount,
		BettingStatus: lr.Room.BettingStatus,
	}
}

func waitingView(lr *service.LiveRoom, userID int64) waitingMessage {
	msg := waitingMessage{
		RoomID:   lr.ID(),
		GameType: lr.GameType(),
		Keyword:  lr.Room.KeywordValue(),
	}
	if lr.Game != nil {
		msg.YourSide = lr.Game.Sides[userID]
		msg.GameState = lr.Game.State
	}
	return msg
}

func (d *Dispatcher) onBalanceChange(ctx context.Context, event events.Event) {
	e, ok := event.(events.BalanceChangeEvent)
	if !ok {
		return
	}
	d.sendToUser(e.UserID, TypeBalanceUpdated, balanceMessage{
		Balance:         e.NewBalance,
		Change:          e.ChangeAmount,
		TransactionType: e.TransactionType,
		RoomID:          e.RoomID,
	})
}

func (d *Dispatcher) onUserBanned(ctx context.Context, event events.Event) {
	e, ok := event.(events.UserBannedEvent)
	if !ok {
		return
	}
	d.ban(ctx, e.UserID)
}

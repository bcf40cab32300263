// Package realtime serves the websocket protocol spoken by game clients.
//
// Every frame is a JSON envelope {"type": ..., "data": {...}}. Inbound frames
// are handled in arrival order per connection by the Dispatcher; outbound
// frames are queued on the connection and written by its write pump.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"arenaserver/game"
	"arenaserver/models"
	"arenaserver/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inbound message types
const (
	TypeUserConnect        = "user_connect"
	TypeJoinRandom         = "join_random"
	TypeJoinKeyword        = "join_keyword"
	TypeRequestGameState   = "request_game_state"
	TypePlayerMove         = "player_move"
	TypePawnPromotion      = "pawn_promotion"
	TypeReportUser         = "report_user"
	TypeChatMessage        = "chat_message"
	TypeProposeBetting     = "propose_betting_amount"
	TypeAcceptBetting      = "accept_betting_amount"
	TypeRejectBetting      = "reject_betting_amount"
	TypeGetBettingInfo     = "get_betting_info"
	TypeWebRTCOffer        = "webrtc_offer"
	TypeWebRTCAnswer       = "webrtc_answer"
	TypeWebRTCIceCandidate = "webrtc_ice_candidate"
	TypeRematchRequest     = "rematch_request"
	TypeLeaveRoom          = "leave_room"
)

// Outbound message types. chat_message and the webrtc_* types are shared
// with the inbound set.
const (
	TypeConnected               = "connected"
	TypeError                   = "error"
	TypeSessionTerminated       = "session_terminated"
	TypeChatHistory             = "chat_history"
	TypeGameStart               = "game_start"
	TypeWaitingForPlayer        = "waiting_for_player"
	TypePlayerJoined            = "player_joined"
	TypePlayerLeft              = "player_left"
	TypeMoveUpdate              = "move_update"
	TypePawnPromotionRequired   = "pawn_promotion_required"
	TypeGameOver                = "game_over"
	TypeBalanceUpdated          = "balance_updated"
	TypeBettingProposal         = "betting_proposal"
	TypeBettingProposalSent     = "betting_proposal_sent"
	TypeBettingProposalRejected = "betting_proposal_rejected"
	TypeBettingRejectedSent     = "betting_proposal_rejected_sent"
	TypeBettingLocked           = "betting_locked"
	TypeBettingInfo             = "betting_info"
	TypeNewMatchStart           = "new_match_start"
	TypeRematchPending          = "rematch_pending"
	TypeAccountBanned           = "account_banned"
	TypeReportSuccess           = "report_success"
)

// ReasonAccountBanned is the termination reason sent to banned users
const ReasonAccountBanned = "account banned"

const (
	msgServerError    = "something went wrong, please try again"
	msgNotConnected   = "send user_connect first"
	msgUnknownMessage = "unknown message type"
)

// Envelope is the frame of every message in both directions
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encode(msgType string, data any) ([]byte, error) {
	envelope := Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
		}
		envelope.Data = raw
	}
	return json.Marshal(envelope)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// Inbound payloads

type joinRequest struct {
	GameType string `json:"gameType"`
	Keyword  string `json:"keyword,omitempty"`
}

type moveRequest struct {
	GameType string          `json:"gameType,omitempty"`
	Move     json.RawMessage `json:"move"`
}

type promotionRequest struct {
	GameType      string        `json:"gameType,omitempty"`
	Position      game.Position `json:"position"`
	PromotionType string        `json:"promotionType"`
}

type reportRequest struct {
	ReportedUserID int64  `json:"reportedUserId"`
	Reason         string `json:"reason"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Outbound payloads

type errorMessage struct {
	Message string `json:"message"`
}

type terminatedMessage struct {
	Reason string `json:"reason"`
}

type connectedMessage struct {
	UserID   int64           `json:"userId"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	RoomID   *int64          `json:"roomId,omitempty"`
}

type playerView struct {
	UserID int64     `json:"userId"`
	Side   game.Side `json:"side"`
	IsHost bool      `json:"isHost"`
}

type gameStartMessage struct {
	RoomID        int64                `json:"roomId"`
	MatchID       uuid.UUID            `json:"matchId"`
	GameType      game.Type            `json:"gameType"`
	Players       []playerView         `json:"players"`
	YourSide      game.Side            `json:"yourSide"`
	GameState     game.State           `json:"gameState"`
	CanMove       bool                 `json:"canMove"`
	BettingAmount decimal.Decimal      `json:"bettingAmount"`
	BettingStatus models.BettingStatus `json:"bettingStatus"`
}

type waitingMessage struct {
	RoomID    int64      `json:"roomId"`
	GameType  game.Type  `json:"gameType"`
	Keyword   string     `json:"keyword,omitempty"`
	YourSide  game.Side  `json:"yourSide"`
	GameState game.State `json:"gameState"`
}

type playerJoinedMessage struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId"`
}

type playerLeftMessage struct {
	RoomID  int64 `json:"roomId"`
	UserID  int64 `json:"userId"`
	Forfeit bool  `json:"forfeit"`
}

type moveUpdateMessage struct {
	RoomID    int64           `json:"roomId"`
	UserID    int64           `json:"userId"`
	Side      game.Side       `json:"side"`
	Move      json.RawMessage `json:"move,omitempty"`
	Promotion string          `json:"promotion,omitempty"`
	GameState game.State      `json:"gameState"`
	Turn      game.Side       `json:"turn"`
}

type promotionRequiredMessage struct {
	RoomID   int64         `json:"roomId"`
	Position game.Position `json:"position"`
}

type gameOverMessage struct {
	RoomID     int64               `json:"roomId"`
	MatchID    uuid.UUID           `json:"matchId"`
	Winner     game.Side           `json:"winner,omitempty"`
	WinnerID   *int64              `json:"winnerId,omitempty"`
	IsDraw     bool                `json:"isDraw"`
	Reason     string              `json:"reason"`
	GameState  game.State          `json:"gameState"`
	Settlement *service.Settlement `json:"settlement,omitempty"`
}

type balanceMessage struct {
	Balance         decimal.Decimal        `json:"balance"`
	Change          decimal.Decimal        `json:"change"`
	TransactionType models.TransactionType `json:"transactionType"`
	RoomID          int64                  `json:"roomId"`
}

type proposalMessage struct {
	RoomID     int64           `json:"roomId"`
	ProposerID int64           `json:"proposerId"`
	Amount     decimal.Decimal `json:"amount"`
}

type rejectedMessage struct {
	RoomID     int64 `json:"roomId"`
	RejectedBy int64 `json:"rejectedBy"`
	Rejected   int64 `json:"rejected"`
}

type lockedMessage struct {
	RoomID  int64           `json:"roomId"`
	MatchID uuid.UUID       `json:"matchId"`
	Amount  decimal.Decimal `json:"amount"`
}

type rematchMessage struct {
	RoomID      int64 `json:"roomId"`
	RequestedBy int64 `json:"requestedBy"`
	Votes       int   `json:"votes"`
	Needed      int   `json:"needed"`
}

type newMatchMessage struct {
	RoomID  int64     `json:"roomId"`
	MatchID uuid.UUID `json:"matchId"`
}

type reportSuccessMessage struct {
	ReportedUserID int64 `json:"reportedUserId"`
	Duplicate      bool  `json:"duplicate"`
}

type chatMessageView struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	UserID    int64     `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type chatHistoryMessage struct {
	RoomID   int64             `json:"roomId"`
	Messages []chatMessageView `json:"messages"`
}

func chatView(m *models.ChatMessage) chatMessageView {
	return chatMessageView{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

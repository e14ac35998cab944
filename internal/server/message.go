package server

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dragonbet/casino/internal/crash"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	Token string `json:"token"`
}

type JoinData struct {
	Track *int `json:"track,omitempty"`
}

type PlaceBetData struct {
	Amount      decimal.Decimal `json:"amount"`
	Track       int             `json:"track"`
	AutoCashout float64         `json:"autoCashoutAt,omitempty"`
}

type CashOutData struct {
	Track int `json:"track"`
	// Multiplier is the multiplier the client observed when the player hit
	// cash out. Zero means "settle at whatever the server shows now".
	Multiplier float64 `json:"multiplier,omitempty"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinedData struct {
	Player string         `json:"player"`
	State  crash.Snapshot `json:"state"`
}

type BetResultData struct {
	Success bool       `json:"success"`
	Bet     *crash.Bet `json:"bet,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type CashOutResultData struct {
	Success bool                 `json:"success"`
	Result  *crash.CashOutResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type StateChangeData struct {
	State    string `json:"state"`
	Sequence uint64 `json:"sequence"`
}

type StartingData struct {
	Sequence         uint64  `json:"sequence"`
	CountdownSeconds float64 `json:"countdownSeconds"`
}

type StartedData struct {
	Sequence uint64 `json:"sequence"`
}

type TickData struct {
	Sequence   uint64  `json:"sequence"`
	Track      int     `json:"track"`
	Multiplier float64 `json:"multiplier"`
}

type CrashedData struct {
	Sequence        uint64  `json:"sequence"`
	Track           int     `json:"track"`
	CrashMultiplier float64 `json:"crashMultiplier"`
}

type BetPlacedData struct {
	Sequence uint64          `json:"sequence"`
	Player   string          `json:"player"`
	Track    int             `json:"track"`
	Amount   decimal.Decimal `json:"amount"`
}

type CashOutMadeData struct {
	Sequence   uint64          `json:"sequence"`
	Player     string          `json:"player"`
	Track      int             `json:"track"`
	Multiplier float64         `json:"multiplier"`
	Profit     decimal.Decimal `json:"profit"`
}

type BalanceUpdateData struct {
	Player     string          `json:"player"`
	Currency   string          `json:"currency"`
	Delta      decimal.Decimal `json:"delta"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Reason     string          `json:"reason"`
}

type HistoryData struct {
	Recent []crash.RoundResult `json:"recentCrashMultipliers"`
}

package crash

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a round event with type safety.
type EventType string

const (
	EventTypeStateChange   EventType = "state_change"
	EventTypeStarting      EventType = "starting"
	EventTypeStarted       EventType = "started"
	EventTypeTick          EventType = "tick"
	EventTypeCrashed       EventType = "crashed"
	EventTypeBetPlaced     EventType = "bet_placed"
	EventTypeCashOut       EventType = "cash_out"
	EventTypeBalanceUpdate EventType = "balance_update"
	EventTypeHistory       EventType = "history"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

// Event is anything the round loop emits. Events for a round are emitted in
// the order the authoritative mutations occur.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// Subscriber receives round events. OnEvent is called synchronously from
// the round loop and must not block.
type Subscriber interface {
	OnEvent(Event)
}

// StateChangeEvent marks a lifecycle transition.
type StateChangeEvent struct {
	State     State
	Sequence  uint64
	timestamp time.Time
}

func (e StateChangeEvent) EventType() EventType { return EventTypeStateChange }
func (e StateChangeEvent) Timestamp() time.Time { return e.timestamp }

// StartingEvent opens the betting window.
type StartingEvent struct {
	Sequence         uint64
	CountdownSeconds float64
	timestamp        time.Time
}

func (e StartingEvent) EventType() EventType { return EventTypeStarting }
func (e StartingEvent) Timestamp() time.Time { return e.timestamp }

// StartedEvent marks the multiplier starting to climb.
type StartedEvent struct {
	Sequence  uint64
	timestamp time.Time
}

func (e StartedEvent) EventType() EventType { return EventTypeStarted }
func (e StartedEvent) Timestamp() time.Time { return e.timestamp }

// TickEvent carries one track's displayed multiplier.
type TickEvent struct {
	Sequence   uint64
	Track      int
	Multiplier float64
	timestamp  time.Time
}

func (e TickEvent) EventType() EventType { return EventTypeTick }
func (e TickEvent) Timestamp() time.Time { return e.timestamp }

// CrashedEvent reveals a track's crash multiplier.
type CrashedEvent struct {
	Sequence        uint64
	Track           int
	CrashMultiplier float64
	timestamp       time.Time
}

func (e CrashedEvent) EventType() EventType { return EventTypeCrashed }
func (e CrashedEvent) Timestamp() time.Time { return e.timestamp }

// BetPlacedEvent is broadcast after a bet's funds are reserved.
type BetPlacedEvent struct {
	Sequence  uint64
	Player    string
	Track     int
	Amount    decimal.Decimal
	timestamp time.Time
}

func (e BetPlacedEvent) EventType() EventType { return EventTypeBetPlaced }
func (e BetPlacedEvent) Timestamp() time.Time { return e.timestamp }

// CashOutEvent is broadcast after a winning settlement.
type CashOutEvent struct {
	Sequence   uint64
	Player     string
	Track      int
	Multiplier float64
	Profit     decimal.Decimal
	timestamp  time.Time
}

func (e CashOutEvent) EventType() EventType { return EventTypeCashOut }
func (e CashOutEvent) Timestamp() time.Time { return e.timestamp }

// BalanceUpdateEvent notifies one player of a balance delta. It is emitted
// after the corresponding bet/cashout confirmation, never before.
type BalanceUpdateEvent struct {
	Player     string
	Currency   string
	Delta      decimal.Decimal
	NewBalance decimal.Decimal
	Reason     string
	timestamp  time.Time
}

func (e BalanceUpdateEvent) EventType() EventType { return EventTypeBalanceUpdate }
func (e BalanceUpdateEvent) Timestamp() time.Time { return e.timestamp }

// HistoryEvent carries the recent crash multipliers ring.
type HistoryEvent struct {
	Recent    []RoundResult
	timestamp time.Time
}

func (e HistoryEvent) EventType() EventType { return EventTypeHistory }
func (e HistoryEvent) Timestamp() time.Time { return e.timestamp }

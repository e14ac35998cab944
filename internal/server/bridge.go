package server

import (
	"github.com/charmbracelet/log"

	"github.com/dragonbet/casino/internal/crash"
)

// Broadcaster is the slice of Server the bridge needs. Kept narrow so bridge
// tests can capture messages without sockets.
type Broadcaster interface {
	Broadcast(msg *Message)
	SendToPlayer(playerID string, msg *Message) error
}

// Bridge converts round events into websocket messages. It runs on the
// round manager's goroutine, after the authoritative mutation, so clients
// observe confirmations in the same order the ledger applied them. Sends go
// through buffered per-connection channels and never block the round loop.
type Bridge struct {
	out    Broadcaster
	logger *log.Logger
}

func NewBridge(out Broadcaster, logger *log.Logger) *Bridge {
	return &Bridge{out: out, logger: logger.WithPrefix("bridge")}
}

// OnEvent implements crash.Subscriber.
func (b *Bridge) OnEvent(e crash.Event) {
	switch ev := e.(type) {
	case crash.StateChangeEvent:
		b.broadcast(MessageTypeStateChange, StateChangeData{
			State:    string(ev.State),
			Sequence: ev.Sequence,
		})

	case crash.StartingEvent:
		b.broadcast(MessageTypeStarting, StartingData{
			Sequence:         ev.Sequence,
			CountdownSeconds: ev.CountdownSeconds,
		})

	case crash.StartedEvent:
		b.broadcast(MessageTypeStarted, StartedData{Sequence: ev.Sequence})

	case crash.TickEvent:
		b.broadcast(MessageTypeTick, TickData{
			Sequence:   ev.Sequence,
			Track:      ev.Track,
			Multiplier: ev.Multiplier,
		})

	case crash.CrashedEvent:
		b.broadcast(MessageTypeCrashed, CrashedData{
			Sequence:        ev.Sequence,
			Track:           ev.Track,
			CrashMultiplier: ev.CrashMultiplier,
		})

	case crash.BetPlacedEvent:
		b.broadcast(MessageTypeBetPlaced, BetPlacedData{
			Sequence: ev.Sequence,
			Player:   ev.Player,
			Track:    ev.Track,
			Amount:   ev.Amount,
		})

	case crash.CashOutEvent:
		b.broadcast(MessageTypeCashOutMade, CashOutMadeData{
			Sequence:   ev.Sequence,
			Player:     ev.Player,
			Track:      ev.Track,
			Multiplier: ev.Multiplier,
			Profit:     ev.Profit,
		})

	case crash.BalanceUpdateEvent:
		// Balances are private: unicast to the owning player only.
		msg, err := NewMessage(MessageTypeBalanceUpdate, BalanceUpdateData{
			Player:     ev.Player,
			Currency:   ev.Currency,
			Delta:      ev.Delta,
			NewBalance: ev.NewBalance,
			Reason:     ev.Reason,
		})
		if err != nil {
			b.logger.Error("Failed to encode balance update", "error", err)
			return
		}
		if err := b.out.SendToPlayer(ev.Player, msg); err != nil {
			b.logger.Debug("Balance update dropped, player offline", "player", ev.Player)
		}

	case crash.HistoryEvent:
		b.broadcast(MessageTypeHistory, HistoryData{Recent: ev.Recent})

	default:
		b.logger.Warn("Unhandled round event", "type", e.EventType())
	}
}

func (b *Bridge) broadcast(mt MessageType, data interface{}) {
	msg, err := NewMessage(mt, data)
	if err != nil {
		b.logger.Error("Failed to encode broadcast", "type", mt, "error", err)
		return
	}
	b.out.Broadcast(msg)
}

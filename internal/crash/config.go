package crash

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config tunes one crash game instance.
type Config struct {
	// Tracks is the number of concurrent multiplier curves per round:
	// 1 for classic crash, 2 for dual-dragon mode.
	Tracks int

	Countdown    time.Duration // betting window length
	TickInterval time.Duration // multiplier broadcast cadence
	CrashPause   time.Duration // settlement pause after the last track crashes
	BetGrace     time.Duration // bets still accepted this long into RUNNING

	// GrowthRate is the exponential climb rate per second: the running
	// multiplier is exp(GrowthRate * elapsed).
	GrowthRate float64

	MinBet      decimal.Decimal
	MaxBet      decimal.Decimal
	BetCooldown time.Duration // per (player, track) anti-spam window

	HouseEdge     float64
	MaxMultiplier float64

	// HouseSeed is the player-independent secret the round crash points
	// derive from; generated at startup when empty. HouseClientSeed is the
	// public half of the derivation message.
	HouseSeed       string
	HouseClientSeed string

	Currency    string
	HistorySize int
}

// DefaultConfig returns production timings: 10s betting window, 100ms
// ticks, 3s crash pause.
func DefaultConfig() Config {
	return Config{
		Tracks:          2,
		Countdown:       10 * time.Second,
		TickInterval:    100 * time.Millisecond,
		CrashPause:      3 * time.Second,
		BetGrace:        300 * time.Millisecond,
		GrowthRate:      0.06,
		MinBet:          decimal.NewFromInt(1),
		MaxBet:          decimal.NewFromInt(10000),
		BetCooldown:     500 * time.Millisecond,
		HouseEdge:       0.04,
		MaxMultiplier:   5000.00,
		HouseClientSeed: "dragon-house",
		Currency:        "USDT",
		HistorySize:     20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Tracks <= 0 {
		c.Tracks = def.Tracks
	}
	if c.Countdown <= 0 {
		c.Countdown = def.Countdown
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.CrashPause <= 0 {
		c.CrashPause = def.CrashPause
	}
	if c.GrowthRate <= 0 {
		c.GrowthRate = def.GrowthRate
	}
	if c.MinBet.Sign() <= 0 {
		c.MinBet = def.MinBet
	}
	if c.MaxBet.Sign() <= 0 {
		c.MaxBet = def.MaxBet
	}
	if c.HouseEdge <= 0 || c.HouseEdge >= 1 {
		c.HouseEdge = def.HouseEdge
	}
	if c.MaxMultiplier <= 1 {
		c.MaxMultiplier = def.MaxMultiplier
	}
	if c.HouseClientSeed == "" {
		c.HouseClientSeed = def.HouseClientSeed
	}
	if c.Currency == "" {
		c.Currency = def.Currency
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}

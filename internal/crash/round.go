package crash

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the round lifecycle phase. Transitions are strictly
// WAITING -> RUNNING -> CRASHED -> WAITING (next round); no phase is ever
// skipped.
type State string

const (
	StateWaiting State = "waiting"
	StateRunning State = "running"
	StateCrashed State = "crashed"
)

// BetStatus tracks settlement. A bet mutates exactly once after placement:
// to CASHED_OUT or to LOST.
type BetStatus string

const (
	BetActive    BetStatus = "ACTIVE"
	BetCashedOut BetStatus = "CASHED_OUT"
	BetLost      BetStatus = "LOST"
)

// Track is one independently crashing multiplier curve within a round.
// CrashPoint is computed at round creation and never mutated; it stays
// secret until the track crashes.
type Track struct {
	Index      int
	CrashPoint float64
	Multiplier float64
	Crashed    bool
	CrashedAt  time.Time
}

// Bet is one player's stake on one track. Funds are reserved at creation;
// settlement happens exactly once.
type Bet struct {
	ID          string          `json:"id"`
	Player      string          `json:"player"`
	Track       int             `json:"track"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	AutoCashout float64         `json:"autoCashoutAt,omitempty"`
	Status      BetStatus       `json:"status"`
	Multiplier  float64         `json:"multiplier,omitempty"`
	Profit      decimal.Decimal `json:"profit"`
	PlacedAt    time.Time       `json:"placedAt"`
}

type betKey struct {
	player string
	track  int
}

// Round is the live aggregate owned by the manager goroutine. History is
// retained only in the audit log, not here: a round is superseded when the
// next one is created.
type Round struct {
	Sequence  uint64
	State     State
	Tracks    []*Track
	Bets      map[betKey]*Bet
	CreatedAt time.Time
	StartedAt time.Time
}

func (r *Round) track(index int) (*Track, bool) {
	if index < 0 || index >= len(r.Tracks) {
		return nil, false
	}
	return r.Tracks[index], true
}

func (r *Round) allCrashed() bool {
	for _, t := range r.Tracks {
		if !t.Crashed {
			return false
		}
	}
	return true
}

// RoundResult is one entry of the recent-crash history ring.
type RoundResult struct {
	Sequence    uint64    `json:"sequence"`
	CrashPoints []float64 `json:"crashPoints"`
}

// TrackView is the public projection of a track. The crash point is only
// populated once the track has crashed.
type TrackView struct {
	Index           int     `json:"index"`
	Multiplier      float64 `json:"multiplier"`
	Crashed         bool    `json:"crashed"`
	CrashMultiplier float64 `json:"crashMultiplier,omitempty"`
}

// Snapshot is a point-in-time copy of round state, safe to hand to any
// goroutine. Bets is the server-internal view and is not serialized.
type Snapshot struct {
	Sequence uint64        `json:"sequence"`
	State    State         `json:"state"`
	Tracks   []TrackView   `json:"tracks"`
	BetCount int           `json:"betCount"`
	History  []RoundResult `json:"history"`
	Bets     []Bet         `json:"-"`
}

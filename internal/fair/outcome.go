package fair

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnsupportedGame is returned when an outcome is requested for an
	// unknown game kind. The raw first float is still exposed on the
	// returned outcome for diagnostics; it is never used for settlement.
	ErrUnsupportedGame = errors.New("unsupported game kind")

	// ErrBadParams is returned when game parameters are malformed.
	ErrBadParams = errors.New("invalid game parameters")
)

// SymbolWeight is one entry of a slot reel weighting table.
type SymbolWeight struct {
	Symbol string `json:"symbol"`
	Weight int    `json:"weight"`
}

// Params carries the game-specific knobs of an outcome request. Zero values
// fall back to the defaults below.
type Params struct {
	HouseEdge     float64        `json:"houseEdge,omitempty"`
	MaxMultiplier float64        `json:"maxMultiplier,omitempty"`
	GridSize      int            `json:"gridSize,omitempty"`  // mines
	MineCount     int            `json:"mineCount,omitempty"` // mines
	Rows          int            `json:"rows,omitempty"`      // plinko, slots
	Cols          int            `json:"cols,omitempty"`      // slots
	Weights       []SymbolWeight `json:"weights,omitempty"`   // slots
}

// Defaults mirror the house configuration every brand starts from.
const (
	DefaultHouseEdge     = 0.04
	DefaultMaxMultiplier = 5000.00
	DefaultGridSize      = 25
	DefaultMineCount     = 3
	DefaultPlinkoRows    = 16
	DefaultSlotRows      = 3
	DefaultSlotCols      = 5
)

// DefaultSlotWeights is the reel table used when none is supplied.
var DefaultSlotWeights = []SymbolWeight{
	{Symbol: "nine", Weight: 28},
	{Symbol: "ten", Weight: 24},
	{Symbol: "jack", Weight: 20},
	{Symbol: "queen", Weight: 14},
	{Symbol: "king", Weight: 8},
	{Symbol: "dragon", Weight: 4},
	{Symbol: "wild", Weight: 2},
}

func (p Params) withDefaults() Params {
	if p.HouseEdge <= 0 || p.HouseEdge >= 1 {
		p.HouseEdge = DefaultHouseEdge
	}
	if p.MaxMultiplier <= 1 {
		p.MaxMultiplier = DefaultMaxMultiplier
	}
	if p.GridSize <= 0 {
		p.GridSize = DefaultGridSize
	}
	if p.MineCount <= 0 {
		p.MineCount = DefaultMineCount
	}
	if p.Cols <= 0 {
		p.Cols = DefaultSlotCols
	}
	if len(p.Weights) == 0 {
		p.Weights = DefaultSlotWeights
	}
	return p
}

// Outcome is the deterministic result of one derivation. Only the fields
// relevant to the requested kind are populated.
type Outcome struct {
	Kind       Kind       `json:"kind"`
	Multiplier float64    `json:"multiplier,omitempty"` // crash, limbo
	Roll       float64    `json:"roll,omitempty"`       // dice, in [0.00, 99.99]
	Positions  []int      `json:"positions,omitempty"`  // mines
	Path       []int      `json:"path,omitempty"`       // plinko, 0=left 1=right per row
	Grid       [][]string `json:"grid,omitempty"`       // slots
	Raw        float64    `json:"raw,omitempty"`        // diagnostic only
}

// Derive computes the outcome for a (secret seed, client seed, nonce) triple.
// It is a pure function: identical inputs always produce bit-identical
// outcomes, and it never mutates seed state.
func Derive(secret, client string, nonce uint64, kind Kind, p Params) (Outcome, error) {
	p = p.withDefaults()
	stream := newFloatStream(secret, client, nonce)

	switch kind {
	case KindCrash, KindLimbo:
		return Outcome{Kind: kind, Multiplier: multiplierOutcome(stream.next(), p)}, nil
	case KindDice:
		return Outcome{Kind: kind, Roll: rollOutcome(stream.next())}, nil
	case KindMines:
		if p.MineCount >= p.GridSize {
			return Outcome{}, fmt.Errorf("%w: %d mines in %d cells", ErrBadParams, p.MineCount, p.GridSize)
		}
		return Outcome{Kind: kind, Positions: positionsOutcome(stream, p.GridSize, p.MineCount)}, nil
	case KindPlinko:
		rows := p.Rows
		if rows <= 0 {
			rows = DefaultPlinkoRows
		}
		return Outcome{Kind: kind, Path: pathOutcome(stream, rows)}, nil
	case KindSlots:
		rows := p.Rows
		if rows <= 0 {
			rows = DefaultSlotRows
		}
		return Outcome{Kind: kind, Grid: gridOutcome(stream, rows, p.Cols, p.Weights)}, nil
	default:
		return Outcome{Kind: kind, Raw: stream.next()}, ErrUnsupportedGame
	}
}

// multiplierOutcome maps one uniform float to a crash/limbo multiplier.
// The formula guarantees the result is at least 1.00 and that the expected
// payout of cashing out at any fixed target converges to 1-houseEdge.
func multiplierOutcome(f float64, p Params) float64 {
	if f == 0 {
		return p.MaxMultiplier
	}
	m := math.Floor((1-p.HouseEdge)/f*100) / 100
	if m < 1.00 {
		return 1.00
	}
	if m > p.MaxMultiplier {
		return p.MaxMultiplier
	}
	return m
}

// rollOutcome maps one uniform float to a dice roll in [0.00, 99.99].
func rollOutcome(f float64) float64 {
	return math.Floor(f*10000) / 100
}

// positionsOutcome draws count distinct cells from an n-cell grid with a
// Fisher-Yates shuffle, one float per swap.
func positionsOutcome(stream *floatStream, n, count int) []int {
	cells := make([]int, n)
	for i := range cells {
		cells[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(stream.next() * float64(i+1))
		cells[i], cells[j] = cells[j], cells[i]
	}
	positions := cells[:count]
	sortInts(positions)
	return positions
}

// pathOutcome draws one binary left/right decision per row.
func pathOutcome(stream *floatStream, rows int) []int {
	path := make([]int, rows)
	for i := range path {
		if stream.next() >= 0.5 {
			path[i] = 1
		}
	}
	return path
}

// gridOutcome fills a rows x cols symbol grid, one weighted-table lookup
// per cell against the cumulative weight array.
func gridOutcome(stream *floatStream, rows, cols int, weights []SymbolWeight) [][]string {
	total := 0
	cumulative := make([]int, len(weights))
	for i, w := range weights {
		total += w.Weight
		cumulative[i] = total
	}

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			target := stream.next() * float64(total)
			for i, limit := range cumulative {
				if target < float64(limit) {
					grid[r][c] = weights[i].Symbol
					break
				}
			}
		}
	}
	return grid
}

func sortInts(v []int) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// PublicHash returns the SHA-256 commitment of a secret seed, safe to
// disclose before play.
func PublicHash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifyResult carries everything a third party needs to audit a settled
// outcome: the derivation hash, the re-derived outcome, and the commitment
// the revealed seed must match.
type VerifyResult struct {
	Hash       string  `json:"hash"`
	PublicHash string  `json:"publicHash"`
	Outcome    Outcome `json:"outcome"`
}

// Verify re-derives an outcome and its commitment from revealed seed
// material. The caller compares PublicHash against the value disclosed
// before play and Outcome against the settled result.
func Verify(secret, client string, nonce uint64, kind Kind, p Params) (VerifyResult, error) {
	outcome, err := Derive(secret, client, nonce, kind, p)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Hash:       hex.EncodeToString(baseDigest(secret, client, nonce)),
		PublicHash: PublicHash(secret),
		Outcome:    outcome,
	}, nil
}

// Package games settles single-shot wagers (limbo, dice) against a player's
// own seed pair. Unlike crash rounds, each play consumes one nonce from the
// player's active seed and resolves immediately.
package games

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/wallet"
)

var (
	ErrUnknownGame       = errors.New("unknown game")
	ErrBetAmountRange    = errors.New("bet amount out of range")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrInsufficientFunds = errors.New("Insufficient funds")
)

// Config bounds instant plays. Zero values fall back to the crash table's
// defaults so a single config block can drive both.
type Config struct {
	Currency      string
	MinBet        decimal.Decimal
	MaxBet        decimal.Decimal
	HouseEdge     float64
	MaxMultiplier float64
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "USDT"
	}
	if c.MinBet.IsZero() {
		c.MinBet = decimal.NewFromInt(1)
	}
	if c.MaxBet.IsZero() {
		c.MaxBet = decimal.NewFromInt(10000)
	}
	if c.HouseEdge == 0 {
		c.HouseEdge = fair.DefaultHouseEdge
	}
	if c.MaxMultiplier == 0 {
		c.MaxMultiplier = fair.DefaultMaxMultiplier
	}
	return c
}

// PlayRequest is one wager. Target is the limbo payout multiplier or the
// dice roll-under threshold, depending on Kind.
type PlayRequest struct {
	Player string          `json:"player"`
	Kind   fair.Kind       `json:"game"`
	Amount decimal.Decimal `json:"amount"`
	Target float64         `json:"target"`
}

// PlayResult carries everything a client needs to display and later verify
// a settled play. Nonce plus the commitment hash let the player audit the
// outcome after rotating their seed.
type PlayResult struct {
	ID         string          `json:"id"`
	Kind       fair.Kind       `json:"game"`
	Nonce      uint64          `json:"nonce"`
	PublicHash string          `json:"publicHash"`
	Outcome    fair.Outcome    `json:"outcome"`
	Win        bool            `json:"win"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// Service resolves instant plays: reserve funds, consume a nonce, derive,
// settle. The ledger's idempotency keys make a crashed settlement safe to
// reconcile from the journal.
type Service struct {
	cfg    Config
	ledger *wallet.Ledger
	seeds  *fair.Store
	logger *log.Logger
}

func NewService(cfg Config, ledger *wallet.Ledger, seeds *fair.Store, logger *log.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		ledger: ledger,
		seeds:  seeds,
		logger: logger.WithPrefix("games"),
	}
}

// Play resolves one wager. The debit lands before the nonce is consumed; if
// seed material cannot be drawn the debit is rolled back and the player is
// never charged for an unresolved play.
func (s *Service) Play(req PlayRequest) (PlayResult, error) {
	multiplier, err := s.validate(req)
	if err != nil {
		return PlayResult{}, err
	}

	id := uuid.NewString()
	betKey := fmt.Sprintf("play:%s", id)
	if _, err := s.ledger.Debit(req.Player, s.cfg.Currency, req.Amount, betKey, wallet.EntryBet); err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return PlayResult{}, ErrInsufficientFunds
		}
		return PlayResult{}, fmt.Errorf("reserving play funds: %w", err)
	}

	draw, err := s.seeds.Consume(req.Player)
	if err != nil {
		if _, rbErr := s.ledger.Rollback(betKey); rbErr != nil {
			s.logger.Error("Failed to refund unresolved play", "player", req.Player, "key", betKey, "error", rbErr)
		}
		return PlayResult{}, fmt.Errorf("drawing seed material: %w", err)
	}

	outcome, err := fair.Derive(draw.Secret, draw.ClientSeed, draw.Nonce, req.Kind, fair.Params{
		HouseEdge:     s.cfg.HouseEdge,
		MaxMultiplier: s.cfg.MaxMultiplier,
	})
	if err != nil {
		return PlayResult{}, fmt.Errorf("deriving outcome: %w", err)
	}

	result := PlayResult{
		ID:         id,
		Kind:       req.Kind,
		Nonce:      draw.Nonce,
		PublicHash: fair.PublicHash(draw.Secret),
		Outcome:    outcome,
	}

	switch req.Kind {
	case fair.KindLimbo:
		result.Win = outcome.Multiplier >= req.Target
	case fair.KindDice:
		result.Win = outcome.Roll < req.Target
	}

	balance := s.ledger.Balance(req.Player, s.cfg.Currency).Available
	if result.Win {
		result.Multiplier = multiplier
		result.Payout = req.Amount.Mul(decimal.NewFromFloat(multiplier)).Truncate(2)
		winKey := fmt.Sprintf("playwin:%s", id)
		res, err := s.ledger.Credit(req.Player, s.cfg.Currency, result.Payout, winKey, wallet.EntryWin)
		if err != nil {
			return PlayResult{}, fmt.Errorf("crediting play win: %w", err)
		}
		balance = res.NewBalance
	}
	result.NewBalance = balance

	s.logger.Info("Play settled",
		"player", req.Player,
		"game", req.Kind,
		"nonce", draw.Nonce,
		"win", result.Win,
		"payout", result.Payout)
	return result, nil
}

// validate checks the request and returns the payout multiplier a win pays.
func (s *Service) validate(req PlayRequest) (float64, error) {
	if req.Amount.LessThan(s.cfg.MinBet) || req.Amount.GreaterThan(s.cfg.MaxBet) {
		return 0, ErrBetAmountRange
	}
	switch req.Kind {
	case fair.KindLimbo:
		// The player names the multiplier they are chasing.
		if req.Target < 1.01 || req.Target > s.cfg.MaxMultiplier {
			return 0, ErrInvalidTarget
		}
		return req.Target, nil
	case fair.KindDice:
		// Roll-under: win chance is target/100, payout scaled by the edge.
		if req.Target < 0.01 || req.Target > 98.00 {
			return 0, ErrInvalidTarget
		}
		raw := (100.0 / req.Target) * (1 - s.cfg.HouseEdge)
		return math.Floor(raw*100) / 100, nil
	default:
		return 0, ErrUnknownGame
	}
}

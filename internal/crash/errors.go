package crash

import (
	"errors"
	"fmt"
)

// Rejection reasons are stable, player-facing strings; clients key UI
// behavior off them.
var (
	ErrBettingClosed     = errors.New("Betting is closed")
	ErrInvalidTrack      = errors.New("Invalid slot")
	ErrDuplicateBet      = errors.New("Already placed a bet on this dragon")
	ErrBetAmountRange    = errors.New("Bet amount out of range")
	ErrCooldown          = errors.New("Please wait before placing another bet")
	ErrInsufficientFunds = errors.New("Insufficient funds")
	ErrNoActiveRound     = errors.New("No active round")
	ErrRoundNotRunning   = errors.New("Round is not running")
	ErrNoBet             = errors.New("No bet found")
	ErrBetSettled        = errors.New("Bet already settled")
	ErrTooLate           = errors.New("Too late!")
)

// errTrackCrashed names the dragon 1-based, matching the client display.
func errTrackCrashed(track int) error {
	return fmt.Errorf("Dragon %d already crashed!", track+1)
}

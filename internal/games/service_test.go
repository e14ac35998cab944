package games

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/wallet"
)

type discardArchive struct{}

func (discardArchive) ArchiveSeed(fair.RevealedSeed) error { return nil }

func testService(t *testing.T, starting int64) (*Service, *wallet.Ledger, *fair.Store) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	ledger, err := wallet.NewLedger(wallet.Config{
		DefaultCurrency: "USDT",
		StartingBalance: decimal.NewFromInt(starting),
	}, nil, logger)
	require.NoError(t, err)
	seeds := fair.NewStore(discardArchive{}, logger)
	svc := NewService(Config{}, ledger, seeds, logger)
	return svc, ledger, seeds
}

func TestPlayValidation(t *testing.T) {
	svc, _, _ := testService(t, 1000)

	_, err := svc.Play(PlayRequest{Player: "p", Kind: "roulette", Amount: decimal.NewFromInt(10), Target: 2})
	assert.ErrorIs(t, err, ErrUnknownGame)

	_, err = svc.Play(PlayRequest{Player: "p", Kind: fair.KindLimbo, Amount: decimal.NewFromInt(10), Target: 1.005})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = svc.Play(PlayRequest{Player: "p", Kind: fair.KindDice, Amount: decimal.NewFromInt(10), Target: 99.5})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = svc.Play(PlayRequest{Player: "p", Kind: fair.KindLimbo, Amount: decimal.NewFromInt(100000), Target: 2})
	assert.ErrorIs(t, err, ErrBetAmountRange)

	_, err = svc.Play(PlayRequest{Player: "p", Kind: fair.KindLimbo, Amount: decimal.NewFromInt(2000), Target: 2})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPlaySettlesAgainstLedger(t *testing.T) {
	svc, ledger, _ := testService(t, 1000)

	res, err := svc.Play(PlayRequest{Player: "p", Kind: fair.KindLimbo, Amount: decimal.NewFromInt(100), Target: 2.0})
	require.NoError(t, err)

	balance := ledger.Balance("p", "USDT").Available
	assert.True(t, res.NewBalance.Equal(balance))
	if res.Win {
		require.True(t, res.Outcome.Multiplier >= 2.0)
		assert.Equal(t, 2.0, res.Multiplier)
		assert.True(t, res.Payout.Equal(decimal.NewFromInt(200)))
		assert.True(t, balance.Equal(decimal.NewFromInt(1100)))
	} else {
		require.True(t, res.Outcome.Multiplier < 2.0)
		assert.True(t, res.Payout.IsZero())
		assert.True(t, balance.Equal(decimal.NewFromInt(900)))
	}
}

func TestPlayConsumesNoncesInOrder(t *testing.T) {
	svc, _, _ := testService(t, 100000)

	for i := 0; i < 5; i++ {
		res, err := svc.Play(PlayRequest{Player: "p", Kind: fair.KindDice, Amount: decimal.NewFromInt(1), Target: 50})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), res.Nonce)
	}
}

func TestPlayIsAuditableAfterRotation(t *testing.T) {
	svc, _, seeds := testService(t, 1000)

	commitment, err := seeds.Commit("auditor")
	require.NoError(t, err)

	res, err := svc.Play(PlayRequest{Player: "auditor", Kind: fair.KindDice, Amount: decimal.NewFromInt(10), Target: 49.5})
	require.NoError(t, err)
	assert.Equal(t, commitment.PublicHash, res.PublicHash)

	reveal, err := seeds.Rotate("auditor")
	require.NoError(t, err)
	require.Equal(t, commitment.PublicHash, reveal.PreviousHash)

	verified, err := fair.Verify(reveal.PreviousSecret, commitment.ClientSeed, res.Nonce, fair.KindDice, fair.Params{})
	require.NoError(t, err)
	assert.Equal(t, commitment.PublicHash, verified.PublicHash)
	assert.Equal(t, res.Outcome.Roll, verified.Outcome.Roll)
}

func TestDicePayoutScalesWithTarget(t *testing.T) {
	svc, _, _ := testService(t, 0)

	// Roll-under 50 pays just under 2x once the edge is taken.
	mult, err := svc.validate(PlayRequest{Kind: fair.KindDice, Amount: decimal.NewFromInt(1), Target: 50})
	require.NoError(t, err)
	assert.Equal(t, 1.92, mult)

	mult, err = svc.validate(PlayRequest{Kind: fair.KindDice, Amount: decimal.NewFromInt(1), Target: 10})
	require.NoError(t, err)
	assert.Equal(t, 9.6, mult)
}

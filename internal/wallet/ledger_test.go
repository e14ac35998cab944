package wallet

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonbet/casino/internal/kvstore"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func testLedger(t *testing.T, starting int64) *Ledger {
	t.Helper()
	l, err := NewLedger(Config{
		DefaultCurrency: "USDT",
		StartingBalance: decimal.NewFromInt(starting),
	}, nil, testLogger())
	require.NoError(t, err)
	return l
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// TestConcurrentDebitAtomicity stages the double-spend attack: ten
// concurrent debits of 50 against a balance of 100 must yield at most two
// successes and never a negative balance.
func TestConcurrentDebitAtomicity(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	const attempts = 10
	var wg sync.WaitGroup
	var successes int32
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := ledger.Debit("mallory", "USDT", d("50"), fmt.Sprintf("attack-%d", n), EntryBet)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}

	assert.Equal(t, int32(2), successes)
	final := ledger.Balance("mallory", "USDT").Available
	assert.True(t, final.Equal(decimal.Zero), "final balance %s", final)
}

// TestIdempotentDebitConcurrentReplay submits the same idempotency key ten
// times concurrently; exactly one debit may apply.
func TestIdempotentDebitConcurrentReplay(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	const attempts = 10
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Debit("alice", "USDT", d("50"), "bet:1:0:alice", EntryBet)
			assert.NoError(t, err)
			assert.True(t, res.NewBalance.Equal(d("50")), "balance %s", res.NewBalance)
		}()
	}
	wg.Wait()

	assert.True(t, ledger.Balance("alice", "USDT").Available.Equal(d("50")))
}

func TestCreditIdempotent(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 0)

	first, err := ledger.Credit("bob", "USDT", d("25"), "deposit-1", EntryDeposit)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	replay, err := ledger.Credit("bob", "USDT", d("25"), "deposit-1", EntryDeposit)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, replay.NewBalance.Equal(d("25")))

	assert.True(t, ledger.Balance("bob", "USDT").Available.Equal(d("25")))
}

func TestDebitValidation(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	_, err := ledger.Debit("carol", "USDT", d("-5"), "k1", EntryBet)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Debit("carol", "USDT", decimal.Zero, "k2", EntryBet)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Debit("carol", "USDT", d("5"), "", EntryBet)
	assert.ErrorIs(t, err, ErrEmptyKey)

	// No partial effects from rejected operations.
	assert.True(t, ledger.Balance("carol", "USDT").Available.Equal(d("100")))
}

func TestRollbackExactlyOnce(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	_, err := ledger.Debit("dave", "USDT", d("40"), "bet-key", EntryBet)
	require.NoError(t, err)

	res, err := ledger.Rollback("bet-key")
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(d("100")))

	_, err = ledger.Rollback("bet-key")
	assert.ErrorIs(t, err, ErrAlreadyRolledBack)

	_, err = ledger.Rollback("no-such-key")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRollbackOfSpentCreditRefused(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 0)

	_, err := ledger.Credit("erin", "USDT", d("30"), "win-key", EntryWin)
	require.NoError(t, err)
	// The winnings get spent before the provider retries a reversal.
	_, err = ledger.Debit("erin", "USDT", d("30"), "spend-key", EntryBet)
	require.NoError(t, err)

	_, err = ledger.Rollback("win-key")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The refusal must not consume the rollback: once funds return, the
	// reversal goes through.
	_, err = ledger.Credit("erin", "USDT", d("30"), "deposit-key", EntryDeposit)
	require.NoError(t, err)
	res, err := ledger.Rollback("win-key")
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(d("0")))
}

func TestWalletsAreIndependent(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			player := fmt.Sprintf("player-%d", n%4)
			_, err := ledger.Debit(player, "USDT", d("10"), fmt.Sprintf("k-%d", n), EntryBet)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		balance := ledger.Balance(fmt.Sprintf("player-%d", i), "USDT").Available
		assert.True(t, balance.Equal(d("50")), "player-%d balance %s", i, balance)
	}
}

func TestLockAndUnlockFunds(t *testing.T) {
	t.Parallel()
	ledger := testLedger(t, 100)

	require.NoError(t, ledger.LockFunds("frank", "USDT", d("60")))
	b := ledger.Balance("frank", "USDT")
	assert.True(t, b.Available.Equal(d("40")))
	assert.True(t, b.Locked.Equal(d("60")))

	assert.ErrorIs(t, ledger.LockFunds("frank", "USDT", d("50")), ErrInsufficientFunds)

	require.NoError(t, ledger.UnlockFunds("frank", "USDT", d("60")))
	b = ledger.Balance("frank", "USDT")
	assert.True(t, b.Available.Equal(d("100")))
	assert.True(t, b.Locked.IsZero())
}

func TestJournalRestore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := kvstore.Open(dir)
	require.NoError(t, err)

	ledger, err := NewLedger(Config{DefaultCurrency: "USDT", StartingBalance: d("100")},
		NewKVJournal(store), testLogger())
	require.NoError(t, err)

	_, err = ledger.Debit("grace", "USDT", d("30"), "bet-a", EntryBet)
	require.NoError(t, err)
	_, err = ledger.Credit("grace", "USDT", d("90"), "win-a", EntryWin)
	require.NoError(t, err)
	_, err = ledger.Debit("grace", "USDT", d("10"), "bet-b", EntryBet)
	require.NoError(t, err)
	_, err = ledger.Rollback("bet-b")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopen: balances and the idempotency index must survive restart.
	store, err = kvstore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	restored, err := NewLedger(Config{DefaultCurrency: "USDT", StartingBalance: d("100")},
		NewKVJournal(store), testLogger())
	require.NoError(t, err)

	balance := restored.Balance("grace", "USDT").Available
	assert.True(t, balance.Equal(d("160")), "restored balance %s", balance)

	replay, err := restored.Debit("grace", "USDT", d("30"), "bet-a", EntryBet)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)

	_, err = restored.Rollback("bet-b")
	assert.ErrorIs(t, err, ErrAlreadyRolledBack)
}

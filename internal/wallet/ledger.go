package wallet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds means a conditional debit was refused. No
	// partial debit ever occurs.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount means the amount was zero, negative, or unparseable.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrEmptyKey means the caller supplied no idempotency key.
	ErrEmptyKey = errors.New("idempotency key required")

	// ErrEntryNotFound is returned by Rollback for an unknown key.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyRolledBack is returned when a key is rolled back twice.
	ErrAlreadyRolledBack = errors.New("ledger entry already rolled back")
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryBet        EntryKind = "BET"
	EntryWin        EntryKind = "WIN"
	EntryRollback   EntryKind = "ROLLBACK"
	EntryDeposit    EntryKind = "DEPOSIT"
	EntryWithdrawal EntryKind = "WITHDRAWAL"
)

// Entry is one append-only ledger record. Delta is the signed balance
// change that was applied, which makes journal replay order-independent.
type Entry struct {
	ID               string          `json:"id"`
	IdempotencyKey   string          `json:"idempotencyKey"`
	Player           string          `json:"player"`
	Currency         string          `json:"currency"`
	Kind             EntryKind       `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	Delta            decimal.Decimal `json:"delta"`
	ResultingBalance decimal.Decimal `json:"resultingBalance"`
	RolledBack       bool            `json:"rolledBack,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Result reports the effect of a ledger operation. Replayed is true when
// the idempotency key had already been applied and the original outcome was
// returned without a second mutation.
type Result struct {
	NewBalance decimal.Decimal
	Replayed   bool
}

// Balance is the public view of one wallet.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// Config carries wallet defaults.
type Config struct {
	DefaultCurrency string
	// StartingBalance is granted to a wallet on first use. Zero for
	// production; demo deployments seed play money here.
	StartingBalance decimal.Decimal
}

type walletKey struct {
	player   string
	currency string
}

// walletState is one wallet. Its mutex serializes every mutation of this
// wallet only; different wallets never contend.
type walletState struct {
	mu      sync.Mutex
	balance decimal.Decimal
	locked  decimal.Decimal
}

// Ledger owns all wallets and the idempotency index.
type Ledger struct {
	cfg     Config
	logger  *log.Logger
	journal Journal

	mu      sync.RWMutex
	wallets map[walletKey]*walletState

	entriesMu sync.Mutex
	entries   map[string]*Entry
}

// NewLedger creates a ledger, replaying the journal (if any) to restore
// balances and the idempotency index.
func NewLedger(cfg Config, journal Journal, logger *log.Logger) (*Ledger, error) {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USDT"
	}
	l := &Ledger{
		cfg:     cfg,
		logger:  logger.WithPrefix("ledger"),
		journal: journal,
		wallets: make(map[walletKey]*walletState),
		entries: make(map[string]*Entry),
	}
	if journal != nil {
		if err := l.restore(); err != nil {
			return nil, fmt.Errorf("restoring ledger journal: %w", err)
		}
	}
	return l, nil
}

// DefaultCurrency returns the currency used when a caller names none.
func (l *Ledger) DefaultCurrency() string {
	return l.cfg.DefaultCurrency
}

// Debit atomically subtracts amount from the wallet, but only if the
// balance covers it. Under N concurrent debits against the same wallet the
// number of successes is bounded by floor(balance/amount); the balance can
// never go negative.
func (l *Ledger) Debit(player, currency string, amount decimal.Decimal, key string, kind EntryKind) (Result, error) {
	if err := validate(amount, key); err != nil {
		return Result{}, err
	}
	w := l.wallet(player, currency)
	w.mu.Lock()
	defer w.mu.Unlock()

	if prior, ok := l.lookup(key); ok {
		return Result{NewBalance: prior.ResultingBalance, Replayed: true}, nil
	}
	if w.balance.LessThan(amount) {
		return Result{}, ErrInsufficientFunds
	}

	newBalance := w.balance.Sub(amount)
	entry := l.newEntry(key, player, currency, kind, amount, amount.Neg(), newBalance)
	if err := l.append(entry); err != nil {
		return Result{}, err
	}
	w.balance = newBalance
	l.record(entry)

	l.logger.Debug("Debit applied", "player", player, "amount", amount, "balance", newBalance, "key", key)
	return Result{NewBalance: newBalance}, nil
}

// Credit unconditionally adds amount to the wallet, idempotent on key.
func (l *Ledger) Credit(player, currency string, amount decimal.Decimal, key string, kind EntryKind) (Result, error) {
	if err := validate(amount, key); err != nil {
		return Result{}, err
	}
	w := l.wallet(player, currency)
	w.mu.Lock()
	defer w.mu.Unlock()

	if prior, ok := l.lookup(key); ok {
		return Result{NewBalance: prior.ResultingBalance, Replayed: true}, nil
	}

	newBalance := w.balance.Add(amount)
	entry := l.newEntry(key, player, currency, kind, amount, amount, newBalance)
	if err := l.append(entry); err != nil {
		return Result{}, err
	}
	w.balance = newBalance
	l.record(entry)

	l.logger.Debug("Credit applied", "player", player, "amount", amount, "balance", newBalance, "key", key)
	return Result{NewBalance: newBalance}, nil
}

// Rollback reverses a previously applied entry exactly once. Unknown keys
// and repeat rollbacks are reported, never silently ignored.
func (l *Ledger) Rollback(key string) (Result, error) {
	l.entriesMu.Lock()
	original, ok := l.entries[key]
	l.entriesMu.Unlock()
	if !ok {
		return Result{}, ErrEntryNotFound
	}

	w := l.wallet(original.Player, original.Currency)
	w.mu.Lock()
	defer w.mu.Unlock()

	l.entriesMu.Lock()
	if original.RolledBack {
		l.entriesMu.Unlock()
		return Result{}, ErrAlreadyRolledBack
	}
	original.RolledBack = true
	l.entriesMu.Unlock()

	// Reversing a credit needs cover; the funds may already be spent.
	delta := original.Delta.Neg()
	newBalance := w.balance.Add(delta)
	if newBalance.IsNegative() {
		l.unmarkRolledBack(original)
		return Result{}, ErrInsufficientFunds
	}

	reversal := l.newEntry("rollback:"+key, original.Player, original.Currency,
		EntryRollback, original.Amount, delta, newBalance)
	if err := l.append(reversal); err != nil {
		l.unmarkRolledBack(original)
		return Result{}, err
	}
	// Persist the rolled-back flag on the original record too.
	if err := l.append(original); err != nil {
		l.logger.Error("Failed to persist rollback flag", "key", key, "error", err)
	}
	w.balance = newBalance

	l.logger.Info("Ledger entry rolled back", "key", key, "delta", delta, "balance", newBalance)
	return Result{NewBalance: newBalance}, nil
}

// Balance returns the wallet's available and locked funds, creating the
// wallet on first access.
func (l *Ledger) Balance(player, currency string) Balance {
	w := l.wallet(player, currency)
	w.mu.Lock()
	defer w.mu.Unlock()
	return Balance{Available: w.balance, Locked: w.locked}
}

// LockFunds moves amount from available to locked, conditional on cover.
// Used by flows outside the round loop, e.g. pending withdrawals.
func (l *Ledger) LockFunds(player, currency string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	w := l.wallet(player, currency)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.balance = w.balance.Sub(amount)
	w.locked = w.locked.Add(amount)
	return nil
}

// UnlockFunds returns locked funds to the available balance.
func (l *Ledger) UnlockFunds(player, currency string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	w := l.wallet(player, currency)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.locked.LessThan(amount) {
		return ErrInvalidAmount
	}
	w.locked = w.locked.Sub(amount)
	w.balance = w.balance.Add(amount)
	return nil
}

// Entry returns the applied entry for an idempotency key, if any.
func (l *Ledger) Entry(key string) (Entry, bool) {
	l.entriesMu.Lock()
	defer l.entriesMu.Unlock()
	if e, ok := l.entries[key]; ok {
		return *e, true
	}
	return Entry{}, false
}

func (l *Ledger) wallet(player, currency string) *walletState {
	if currency == "" {
		currency = l.cfg.DefaultCurrency
	}
	key := walletKey{player, currency}

	l.mu.RLock()
	w, ok := l.wallets[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.wallets[key]; ok {
		return w
	}
	w = &walletState{balance: l.cfg.StartingBalance}
	l.wallets[key] = w
	return w
}

func (l *Ledger) lookup(key string) (*Entry, bool) {
	l.entriesMu.Lock()
	defer l.entriesMu.Unlock()
	e, ok := l.entries[key]
	return e, ok
}

func (l *Ledger) record(entry *Entry) {
	l.entriesMu.Lock()
	defer l.entriesMu.Unlock()
	l.entries[entry.IdempotencyKey] = entry
}

func (l *Ledger) unmarkRolledBack(entry *Entry) {
	l.entriesMu.Lock()
	defer l.entriesMu.Unlock()
	entry.RolledBack = false
}

func (l *Ledger) newEntry(key, player, currency string, kind EntryKind, amount, delta, resulting decimal.Decimal) *Entry {
	if currency == "" {
		currency = l.cfg.DefaultCurrency
	}
	return &Entry{
		ID:               uuid.New().String(),
		IdempotencyKey:   key,
		Player:           player,
		Currency:         currency,
		Kind:             kind,
		Amount:           amount,
		Delta:            delta,
		ResultingBalance: resulting,
		CreatedAt:        time.Now().UTC(),
	}
}

func (l *Ledger) append(entry *Entry) error {
	if l.journal == nil {
		return nil
	}
	return l.journal.Append(*entry)
}

// restore rebuilds balances and the idempotency index from the journal.
// Deltas are summed per wallet, so replay order does not matter.
func (l *Ledger) restore() error {
	count := 0
	err := l.journal.Each(func(entry Entry) error {
		w := l.wallet(entry.Player, entry.Currency)
		w.balance = w.balance.Add(entry.Delta)
		if entry.Kind != EntryRollback {
			e := entry
			l.entries[entry.IdempotencyKey] = &e
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		l.logger.Info("Restored ledger from journal", "entries", count, "wallets", len(l.wallets))
	}
	return nil
}

func validate(amount decimal.Decimal, key string) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

package crash

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/wallet"
)

// ErrInvalidAutoCashout rejects auto-cashout thresholds below the minimum
// representable multiplier.
var ErrInvalidAutoCashout = errors.New("Invalid auto cashout")

// minCashout is the smallest multiplier a cashout can settle at.
const minCashout = 1.01

// BetRequest is one player's placement attempt.
type BetRequest struct {
	Player      string
	Amount      decimal.Decimal
	Track       int
	AutoCashout float64 // 0 disables auto-cashout
}

// CashOutResult reports a winning settlement.
type CashOutResult struct {
	Player     string          `json:"player"`
	Track      int             `json:"track"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Profit     decimal.Decimal `json:"profit"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// Manager owns one crash game instance. A single goroutine (Run) holds the
// authoritative round; every mutation, including the tick loop itself, is
// serialized through the command channel. Public methods are safe to call
// from any goroutine.
type Manager struct {
	cfg    Config
	clock  quartz.Clock
	ledger *wallet.Ledger
	logger *log.Logger
	sub    Subscriber

	cmds chan command

	// Everything below is owned by the Run goroutine.
	round   *Round
	seq     uint64
	ticks   int
	lastBet map[betKey]time.Time
	history []RoundResult
}

type command interface {
	apply(m *Manager)
}

// NewManager creates a crash game manager. clock may be nil (real clock);
// sub may be nil (no event fan-out).
func NewManager(cfg Config, ledger *wallet.Ledger, clock quartz.Clock, sub Subscriber, logger *log.Logger) *Manager {
	cfg = cfg.withDefaults()
	if cfg.HouseSeed == "" {
		cfg.HouseSeed = fair.NewSecret()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Manager{
		cfg:     cfg,
		clock:   clock,
		ledger:  ledger,
		logger:  logger.WithPrefix("crash"),
		sub:     sub,
		cmds:    make(chan command, 64),
		lastBet: make(map[betKey]time.Time),
	}
}

// HouseCommitment returns the public hash of the house seed, disclosed so
// players can verify crash points once the seed is rotated and revealed.
func (m *Manager) HouseCommitment() string {
	return fair.PublicHash(m.cfg.HouseSeed)
}

// Run drives the round lifecycle until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Crash game starting",
		"tracks", m.cfg.Tracks,
		"countdown", m.cfg.Countdown,
		"tick", m.cfg.TickInterval,
		"house_hash", m.HouseCommitment())

	for {
		if err := m.runRound(ctx); err != nil {
			return err
		}
	}
}

// runRound executes one full WAITING -> RUNNING -> CRASHED cycle. Player
// commands are processed in every phase; a rejected command only affects
// that player's reply, never the shared round.
func (m *Manager) runRound(ctx context.Context) error {
	m.newRound()

	countdown := m.clock.NewTimer(m.cfg.Countdown)
	defer countdown.Stop()
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.cmds:
			cmd.apply(m)
		case <-countdown.C:
			waiting = false
		}
	}

	m.startRunning()

	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for !m.round.allCrashed() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.cmds:
			cmd.apply(m)
		case <-ticker.C:
			m.tick()
		}
	}

	// No multiplier moves during the settlement pause.
	ticker.Stop()
	m.finishRound()

	pause := m.clock.NewTimer(m.cfg.CrashPause)
	defer pause.Stop()
	for paused := true; paused; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.cmds:
			cmd.apply(m)
		case <-pause.C:
			paused = false
		}
	}
	return nil
}

// newRound allocates the next round and derives every track's crash point
// from the house seed. Crash points are computed exactly once here and
// never mutated.
func (m *Manager) newRound() {
	m.seq++
	m.ticks = 0

	tracks := make([]*Track, m.cfg.Tracks)
	for i := range tracks {
		nonce := (m.seq-1)*uint64(m.cfg.Tracks) + uint64(i)
		outcome, err := fair.Derive(m.cfg.HouseSeed, m.cfg.HouseClientSeed, nonce, fair.KindCrash, fair.Params{
			HouseEdge:     m.cfg.HouseEdge,
			MaxMultiplier: m.cfg.MaxMultiplier,
		})
		if err != nil {
			// Derivation of a known kind is pure arithmetic; this cannot
			// happen at runtime.
			m.logger.Error("Crash point derivation failed", "error", err)
			outcome.Multiplier = 1.00
		}
		tracks[i] = &Track{Index: i, CrashPoint: outcome.Multiplier, Multiplier: 1.00}
	}

	m.round = &Round{
		Sequence:  m.seq,
		State:     StateWaiting,
		Tracks:    tracks,
		Bets:      make(map[betKey]*Bet),
		CreatedAt: m.now(),
	}

	m.logger.Info("Round created", "sequence", m.seq)
	m.emit(StateChangeEvent{State: StateWaiting, Sequence: m.seq, timestamp: m.now()})
	m.emit(StartingEvent{Sequence: m.seq, CountdownSeconds: m.cfg.Countdown.Seconds(), timestamp: m.now()})
	m.emit(HistoryEvent{Recent: m.recentHistory(), timestamp: m.now()})
}

func (m *Manager) startRunning() {
	m.round.State = StateRunning
	m.round.StartedAt = m.now()
	m.emit(StateChangeEvent{State: StateRunning, Sequence: m.seq, timestamp: m.now()})
	m.emit(StartedEvent{Sequence: m.seq, timestamp: m.now()})
}

func (m *Manager) finishRound() {
	m.round.State = StateCrashed

	points := make([]float64, len(m.round.Tracks))
	for i, track := range m.round.Tracks {
		points[i] = track.CrashPoint
	}
	m.history = append(m.history, RoundResult{Sequence: m.seq, CrashPoints: points})
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}

	m.logger.Info("Round settled", "sequence", m.seq, "crash_points", points, "bets", len(m.round.Bets))
	m.emit(StateChangeEvent{State: StateCrashed, Sequence: m.seq, timestamp: m.now()})
}

// tick advances the shared multiplier curve one interval. Elapsed time is
// counted in ticks, not wall clock, so the curve is deterministic.
func (m *Manager) tick() {
	m.ticks++
	elapsed := time.Duration(m.ticks) * m.cfg.TickInterval
	internal := math.Exp(m.cfg.GrowthRate * elapsed.Seconds())
	displayed := math.Floor(internal*100) / 100

	for _, track := range m.round.Tracks {
		if track.Crashed {
			continue
		}

		// Auto-cashouts settle strictly before the crash point.
		m.settleAutoCashouts(track, displayed, internal)

		if internal >= track.CrashPoint {
			m.crashTrack(track)
			continue
		}
		if displayed > track.Multiplier {
			track.Multiplier = displayed
		}
		m.emit(TickEvent{Sequence: m.seq, Track: track.Index, Multiplier: track.Multiplier, timestamp: m.now()})
	}
}

// settleAutoCashouts pays every active bet on the track whose threshold has
// been reached. A threshold at or below the crash point wins even when the
// same tick would crash the track.
func (m *Manager) settleAutoCashouts(track *Track, displayed, internal float64) {
	for _, bet := range m.round.Bets {
		if bet.Track != track.Index || bet.Status != BetActive || bet.AutoCashout <= 0 {
			continue
		}
		if bet.AutoCashout > track.CrashPoint {
			continue // will lose at crash
		}
		if displayed >= bet.AutoCashout || internal >= track.CrashPoint {
			if _, err := m.settle(bet, track, bet.AutoCashout); err != nil {
				m.logger.Error("Auto-cashout settlement failed",
					"player", bet.Player, "track", track.Index, "error", err)
			}
		}
	}
}

// crashTrack reveals the track's crash point and marks every remaining
// active bet on it as lost. The debit taken at placement stands as the
// loss; no ledger mutation happens here.
func (m *Manager) crashTrack(track *Track) {
	track.Crashed = true
	track.Multiplier = track.CrashPoint
	track.CrashedAt = m.now()

	lost := 0
	for _, bet := range m.round.Bets {
		if bet.Track == track.Index && bet.Status == BetActive {
			bet.Status = BetLost
			bet.Profit = bet.Amount.Neg()
			lost++
		}
	}

	m.logger.Info("Dragon crashed",
		"sequence", m.seq, "track", track.Index,
		"multiplier", track.CrashPoint, "lost_bets", lost)
	m.emit(CrashedEvent{Sequence: m.seq, Track: track.Index, CrashMultiplier: track.CrashPoint, timestamp: m.now()})
}

// placeBet validates and applies one placement. It runs inside the actor,
// so check-then-insert on the bet map is atomic.
func (m *Manager) placeBet(req BetRequest) (Bet, error) {
	round := m.round
	if round == nil {
		return Bet{}, ErrNoActiveRound
	}

	inGrace := round.State == StateRunning &&
		m.cfg.BetGrace > 0 && m.now().Sub(round.StartedAt) <= m.cfg.BetGrace
	if round.State != StateWaiting && !inGrace {
		return Bet{}, ErrBettingClosed
	}
	track, ok := round.track(req.Track)
	if !ok {
		return Bet{}, ErrInvalidTrack
	}
	// The grace window never reopens a track whose crash point is already
	// public; a bet taken here could never settle.
	if track.Crashed {
		return Bet{}, errTrackCrashed(req.Track)
	}
	key := betKey{player: req.Player, track: req.Track}
	if _, exists := round.Bets[key]; exists {
		return Bet{}, ErrDuplicateBet
	}
	if req.Amount.LessThan(m.cfg.MinBet) || req.Amount.GreaterThan(m.cfg.MaxBet) {
		return Bet{}, ErrBetAmountRange
	}
	if req.AutoCashout != 0 && req.AutoCashout < minCashout {
		return Bet{}, ErrInvalidAutoCashout
	}
	if m.cfg.BetCooldown > 0 {
		if last, ok := m.lastBet[key]; ok && m.now().Sub(last) < m.cfg.BetCooldown {
			return Bet{}, ErrCooldown
		}
	}

	debitKey := fmt.Sprintf("bet:%d:%d:%s", round.Sequence, req.Track, req.Player)
	res, err := m.ledger.Debit(req.Player, m.cfg.Currency, req.Amount, debitKey, wallet.EntryBet)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return Bet{}, ErrInsufficientFunds
		}
		return Bet{}, fmt.Errorf("reserving bet funds: %w", err)
	}

	bet := &Bet{
		ID:          uuid.New().String(),
		Player:      req.Player,
		Track:       req.Track,
		Amount:      req.Amount,
		Currency:    m.cfg.Currency,
		AutoCashout: req.AutoCashout,
		Status:      BetActive,
		Profit:      decimal.Zero,
		PlacedAt:    m.now(),
	}
	round.Bets[key] = bet
	m.lastBet[key] = m.now()

	m.logger.Debug("Bet placed",
		"sequence", round.Sequence, "player", req.Player,
		"track", req.Track, "amount", req.Amount)

	m.emit(BetPlacedEvent{Sequence: round.Sequence, Player: req.Player, Track: req.Track, Amount: req.Amount, timestamp: m.now()})
	m.emit(BalanceUpdateEvent{
		Player:     req.Player,
		Currency:   m.cfg.Currency,
		Delta:      req.Amount.Neg(),
		NewBalance: res.NewBalance,
		Reason:     "bet",
		timestamp:  m.now(),
	})
	return *bet, nil
}

// cashOut validates and settles one cashout. requested is the multiplier
// the client claims; zero means "the current running multiplier". A
// cashout is honored only if it arrives, in round-authoritative time,
// at or before the track's crash point.
func (m *Manager) cashOut(player string, trackIndex int, requested float64) (CashOutResult, error) {
	round := m.round
	if round == nil {
		return CashOutResult{}, ErrNoActiveRound
	}
	if round.State != StateRunning {
		return CashOutResult{}, ErrRoundNotRunning
	}
	track, ok := round.track(trackIndex)
	if !ok {
		return CashOutResult{}, ErrInvalidTrack
	}
	if track.Crashed {
		return CashOutResult{}, errTrackCrashed(trackIndex)
	}
	bet, exists := round.Bets[betKey{player: player, track: trackIndex}]
	if !exists {
		return CashOutResult{}, ErrNoBet
	}
	if bet.Status != BetActive {
		return CashOutResult{}, ErrBetSettled
	}

	multiplier := requested
	if multiplier <= 0 {
		multiplier = track.Multiplier
	}
	if multiplier < minCashout {
		multiplier = minCashout
	}
	// The core fairness check: at the crash point exactly is a win,
	// anything beyond it is too late.
	if multiplier > track.CrashPoint {
		return CashOutResult{}, ErrTooLate
	}

	return m.settle(bet, track, multiplier)
}

// settle pays out one active bet at the given multiplier. The bet status
// mutates only after the ledger credit succeeds.
func (m *Manager) settle(bet *Bet, track *Track, multiplier float64) (CashOutResult, error) {
	payout := bet.Amount.Mul(decimal.NewFromFloat(multiplier)).Truncate(2)
	profit := payout.Sub(bet.Amount)

	creditKey := fmt.Sprintf("win:%d:%d:%s", m.round.Sequence, track.Index, bet.Player)
	res, err := m.ledger.Credit(bet.Player, bet.Currency, payout, creditKey, wallet.EntryWin)
	if err != nil {
		return CashOutResult{}, fmt.Errorf("crediting payout: %w", err)
	}

	bet.Status = BetCashedOut
	bet.Multiplier = multiplier
	bet.Profit = profit

	m.logger.Info("Cashed out",
		"sequence", m.round.Sequence, "player", bet.Player,
		"track", track.Index, "multiplier", multiplier, "profit", profit)

	m.emit(CashOutEvent{
		Sequence:   m.round.Sequence,
		Player:     bet.Player,
		Track:      track.Index,
		Multiplier: multiplier,
		Profit:     profit,
		timestamp:  m.now(),
	})
	m.emit(BalanceUpdateEvent{
		Player:     bet.Player,
		Currency:   bet.Currency,
		Delta:      payout,
		NewBalance: res.NewBalance,
		Reason:     "cashout",
		timestamp:  m.now(),
	})

	return CashOutResult{
		Player:     bet.Player,
		Track:      track.Index,
		Multiplier: multiplier,
		Payout:     payout,
		Profit:     profit,
		NewBalance: res.NewBalance,
	}, nil
}

func (m *Manager) snapshot() Snapshot {
	round := m.round
	if round == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		Sequence: round.Sequence,
		State:    round.State,
		History:  m.recentHistory(),
	}
	for _, track := range round.Tracks {
		view := TrackView{
			Index:      track.Index,
			Multiplier: track.Multiplier,
			Crashed:    track.Crashed,
		}
		if track.Crashed {
			view.CrashMultiplier = track.CrashPoint
		}
		snap.Tracks = append(snap.Tracks, view)
	}
	for _, bet := range round.Bets {
		snap.Bets = append(snap.Bets, *bet)
	}
	snap.BetCount = len(snap.Bets)
	return snap
}

func (m *Manager) recentHistory() []RoundResult {
	recent := make([]RoundResult, len(m.history))
	copy(recent, m.history)
	return recent
}

func (m *Manager) emit(event Event) {
	if m.sub != nil {
		m.sub.OnEvent(event)
	}
}

func (m *Manager) now() time.Time {
	return m.clock.Now()
}

// --- public API: commands serialized through the actor ---

type betReply struct {
	bet Bet
	err error
}

type placeBetCmd struct {
	req   BetRequest
	reply chan betReply
}

func (c placeBetCmd) apply(m *Manager) {
	bet, err := m.placeBet(c.req)
	c.reply <- betReply{bet: bet, err: err}
}

type cashOutReply struct {
	result CashOutResult
	err    error
}

type cashOutCmd struct {
	player     string
	track      int
	multiplier float64
	reply      chan cashOutReply
}

func (c cashOutCmd) apply(m *Manager) {
	result, err := m.cashOut(c.player, c.track, c.multiplier)
	c.reply <- cashOutReply{result: result, err: err}
}

type snapshotCmd struct {
	reply chan Snapshot
}

func (c snapshotCmd) apply(m *Manager) {
	c.reply <- m.snapshot()
}

// PlaceBet reserves funds and registers a bet on the current round.
func (m *Manager) PlaceBet(ctx context.Context, req BetRequest) (Bet, error) {
	cmd := placeBetCmd{req: req, reply: make(chan betReply, 1)}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return Bet{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.bet, r.err
	case <-ctx.Done():
		return Bet{}, ctx.Err()
	}
}

// CashOut settles the player's active bet on a track. multiplier zero means
// the current running multiplier.
func (m *Manager) CashOut(ctx context.Context, player string, track int, multiplier float64) (CashOutResult, error) {
	cmd := cashOutCmd{player: player, track: track, multiplier: multiplier, reply: make(chan cashOutReply, 1)}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return CashOutResult{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.result, r.err
	case <-ctx.Done():
		return CashOutResult{}, ctx.Err()
	}
}

// Snapshot returns a copy of the current round state.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	cmd := snapshotCmd{reply: make(chan Snapshot, 1)}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-cmd.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

package fair

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrSeedNotFound is returned when seed material for a player is
	// missing or expired.
	ErrSeedNotFound = errors.New("seed pair not found")

	// ErrIntegrity is returned when a revealed secret does not hash to its
	// published commitment. This should never happen; it is surfaced to the
	// audit log and never silently corrected.
	ErrIntegrity = errors.New("revealed seed does not match published commitment")
)

// SeedPair is the active commitment tuple for one player. The secret is
// owned exclusively by the store and never transmitted while active.
type SeedPair struct {
	Player     string
	secret     string
	PublicHash string
	ClientSeed string
	Nonce      uint64
	CreatedAt  time.Time
}

// RevealedSeed is the archived record of a rotated pair, kept for audit.
type RevealedSeed struct {
	Player     string    `json:"player"`
	Secret     string    `json:"secret"`
	PublicHash string    `json:"publicHash"`
	ClientSeed string    `json:"clientSeed"`
	FinalNonce uint64    `json:"finalNonce"`
	CreatedAt  time.Time `json:"createdAt"`
	RevealedAt time.Time `json:"revealedAt"`
}

// Archive persists revealed seed pairs for later audit. A nil archive is
// allowed; reveals are then kept in memory only.
type Archive interface {
	ArchiveSeed(RevealedSeed) error
}

// Commitment is the public view of a player's active seed pair.
type Commitment struct {
	PublicHash string `json:"publicHash"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

// Reveal is the result of a rotation: the retired pair's material plus the
// commitment of the freshly created pair.
type Reveal struct {
	PreviousSecret string `json:"previousSecretSeed"`
	PreviousHash   string `json:"previousHash"`
	PreviousNonce  uint64 `json:"previousNonce"`
	NewPublicHash  string `json:"newPublicHash"`
}

// Draw is one consumed derivation slot: the seed material plus the nonce
// reserved for this outcome. Nonces are never reused for a secret.
type Draw struct {
	Secret     string
	ClientSeed string
	Nonce      uint64
}

// Store owns seed pair lifecycle. Exactly one active pair exists per player
// at any time; rotation and nonce consumption are mutually atomic so no
// outcome is ever derived against a retired seed.
type Store struct {
	mu      sync.Mutex
	pairs   map[string]*SeedPair
	archive Archive
	logger  *log.Logger
}

// NewStore creates a seed store. archive may be nil.
func NewStore(archive Archive, logger *log.Logger) *Store {
	return &Store{
		pairs:   make(map[string]*SeedPair),
		archive: archive,
		logger:  logger.WithPrefix("seeds"),
	}
}

// Commit returns the player's current commitment, lazily creating a seed
// pair on first use.
func (s *Store) Commit(player string) (Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.activeLocked(player)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment{
		PublicHash: pair.PublicHash,
		ClientSeed: pair.ClientSeed,
		Nonce:      pair.Nonce,
	}, nil
}

// SetClientSeed replaces the player-supplied half of the pair. The server
// half and nonce are untouched.
func (s *Store) SetClientSeed(player, clientSeed string) error {
	if clientSeed == "" {
		return fmt.Errorf("%w: empty client seed", ErrBadParams)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.activeLocked(player)
	if err != nil {
		return err
	}
	pair.ClientSeed = clientSeed
	return nil
}

// Consume reserves the next nonce for an outcome derivation and returns the
// seed material to derive with. The increment is atomic with respect to
// Rotate, so two simultaneously resolving games never share a nonce.
func (s *Store) Consume(player string) (Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.activeLocked(player)
	if err != nil {
		return Draw{}, err
	}
	draw := Draw{
		Secret:     pair.secret,
		ClientSeed: pair.ClientSeed,
		Nonce:      pair.Nonce,
	}
	pair.Nonce++
	return draw, nil
}

// Rotate atomically retires the active pair, records its reveal, and
// activates a fresh pair at nonce 0.
func (s *Store) Rotate(player string) (Reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.activeLocked(player)
	if err != nil {
		return Reveal{}, err
	}
	if PublicHash(old.secret) != old.PublicHash {
		s.logger.Error("Seed commitment mismatch on reveal", "player", player, "hash", old.PublicHash)
		return Reveal{}, ErrIntegrity
	}

	revealed := RevealedSeed{
		Player:     player,
		Secret:     old.secret,
		PublicHash: old.PublicHash,
		ClientSeed: old.ClientSeed,
		FinalNonce: old.Nonce,
		CreatedAt:  old.CreatedAt,
		RevealedAt: time.Now().UTC(),
	}
	if s.archive != nil {
		if err := s.archive.ArchiveSeed(revealed); err != nil {
			return Reveal{}, fmt.Errorf("archiving revealed seed: %w", err)
		}
	}

	fresh := newSeedPair(player)
	// Carry the client seed forward; rotation only retires the server half.
	fresh.ClientSeed = old.ClientSeed
	s.pairs[player] = fresh

	s.logger.Info("Rotated seed pair",
		"player", player,
		"final_nonce", revealed.FinalNonce,
		"new_hash", fresh.PublicHash)

	return Reveal{
		PreviousSecret: revealed.Secret,
		PreviousHash:   revealed.PublicHash,
		PreviousNonce:  revealed.FinalNonce,
		NewPublicHash:  fresh.PublicHash,
	}, nil
}

func (s *Store) activeLocked(player string) (*SeedPair, error) {
	if player == "" {
		return nil, ErrSeedNotFound
	}
	pair, ok := s.pairs[player]
	if !ok {
		pair = newSeedPair(player)
		s.pairs[player] = pair
		s.logger.Debug("Created seed pair", "player", player, "hash", pair.PublicHash)
	}
	return pair, nil
}

func newSeedPair(player string) *SeedPair {
	secret := randomHex(32)
	return &SeedPair{
		Player:     player,
		secret:     secret,
		PublicHash: PublicHash(secret),
		ClientSeed: randomHex(8),
		Nonce:      0,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewSecret generates a fresh 256-bit secret seed, hex encoded. Used for
// player pairs and for the house seed of continuously running games.
func NewSecret() string {
	return randomHex(32)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading entropy: %v", err))
	}
	return hex.EncodeToString(buf)
}

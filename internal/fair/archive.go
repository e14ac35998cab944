package fair

import (
	"fmt"

	"github.com/dragonbet/casino/internal/kvstore"
)

// KVArchive persists revealed seed pairs to the embedded store so auditors
// can replay any historical outcome.
type KVArchive struct {
	store *kvstore.Store
}

// NewKVArchive wraps a kvstore as a seed archive.
func NewKVArchive(store *kvstore.Store) *KVArchive {
	return &KVArchive{store: store}
}

// ArchiveSeed implements Archive.
func (a *KVArchive) ArchiveSeed(rec RevealedSeed) error {
	key := fmt.Sprintf("seed/%s/%d", rec.Player, rec.RevealedAt.UnixNano())
	return a.store.SetJSON(key, rec)
}

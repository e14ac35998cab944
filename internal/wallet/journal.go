package wallet

import (
	"encoding/json"

	"github.com/dragonbet/casino/internal/kvstore"
)

// Journal is the append-only persistence behind the ledger. Append must be
// durable before the balance mutation it records becomes visible.
type Journal interface {
	// Append writes or updates the record for entry.IdempotencyKey.
	Append(Entry) error
	// Each visits every journaled entry, in no particular order.
	Each(func(Entry) error) error
}

const journalPrefix = "ledger/"

// KVJournal stores ledger entries in the embedded badger store, one record
// per idempotency key.
type KVJournal struct {
	store *kvstore.Store
}

// NewKVJournal wraps a kvstore as a ledger journal.
func NewKVJournal(store *kvstore.Store) *KVJournal {
	return &KVJournal{store: store}
}

// Append implements Journal.
func (j *KVJournal) Append(entry Entry) error {
	return j.store.SetJSON(journalPrefix+entry.IdempotencyKey, entry)
}

// Each implements Journal.
func (j *KVJournal) Each(fn func(Entry) error) error {
	return j.store.ForEach(journalPrefix, func(_ string, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return err
		}
		return fn(entry)
	})
}

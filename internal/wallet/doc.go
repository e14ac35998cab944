// Package wallet implements the concurrency-safe money ledger: per-player,
// per-currency balances with atomic conditional debits, idempotent
// application of every mutation, and an append-only journal for audit and
// restart recovery.
package wallet

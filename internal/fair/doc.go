// Package fair implements the provably fair engine: seed pair lifecycle,
// deterministic outcome derivation from (secret seed, client seed, nonce),
// and third-party verification of settled results.
//
// Outcomes are pure functions of their inputs. The secret seed is committed
// to via its SHA-256 hash before play and only revealed on rotation, so any
// player can recompute an outcome after the fact and compare it against the
// published commitment.
package fair

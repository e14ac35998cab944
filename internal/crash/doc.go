// Package crash implements the round state machine for the Crash game.
//
// One Manager goroutine owns the current round: the tick loop and every
// player request (bets, cashouts, state queries) are serialized through its
// command channel, so round state is never shared mutable data. Crash
// points are derived once per round from the house seed via the provably
// fair engine; only the displayed running multiplier changes over time.
//
// The game supports one or two independently crashing tracks ("dragons")
// per round. A bet references exactly one track.
package crash

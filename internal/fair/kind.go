package fair

// Kind identifies a supported game type. The set is closed: outcome
// derivation dispatches over these constants in a single switch, so adding
// a game is a compile-time checked addition.
type Kind string

const (
	KindCrash  Kind = "crash"
	KindLimbo  Kind = "limbo"
	KindDice   Kind = "dice"
	KindMines  Kind = "mines"
	KindPlinko Kind = "plinko"
	KindSlots  Kind = "slots"
)

// String returns the string representation of the game kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is a known game kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCrash, KindLimbo, KindDice, KindMines, KindPlinko, KindSlots:
		return true
	default:
		return false
	}
}

package fair

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// floatWindow is the number of hash bytes consumed per float.
const floatWindow = 4

// floatStream yields an unbounded sequence of uniform floats in [0, 1)
// from a single (secret seed, client seed, nonce) triple.
//
// The first 8 floats come from successive non-overlapping 4-byte windows of
// HMAC-SHA256(secret, "client:nonce"). When the 32-byte digest is exhausted
// the stream rehashes with an incrementing round suffix
// ("client:nonce:1", "client:nonce:2", ...) and resets the cursor, so no
// window is ever reused for the same seed pair.
type floatStream struct {
	secret []byte
	client string
	nonce  uint64
	round  int
	digest []byte
	cursor int
}

func newFloatStream(secret, client string, nonce uint64) *floatStream {
	return &floatStream{
		secret: []byte(secret),
		client: client,
		nonce:  nonce,
	}
}

// next returns the next float in [0, 1).
func (s *floatStream) next() float64 {
	if s.digest == nil || s.cursor+floatWindow > len(s.digest) {
		s.refill()
	}
	u := binary.BigEndian.Uint32(s.digest[s.cursor : s.cursor+floatWindow])
	s.cursor += floatWindow
	return float64(u) / float64(1<<32)
}

func (s *floatStream) refill() {
	var message string
	if s.round == 0 {
		message = fmt.Sprintf("%s:%d", s.client, s.nonce)
	} else {
		message = fmt.Sprintf("%s:%d:%d", s.client, s.nonce, s.round)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	s.digest = mac.Sum(nil)
	s.cursor = 0
	s.round++
}

// baseDigest returns the round-zero HMAC digest for the triple. This is the
// hash disclosed to players for verification.
func baseDigest(secret, client string, nonce uint64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%d", client, nonce)
	return mac.Sum(nil)
}

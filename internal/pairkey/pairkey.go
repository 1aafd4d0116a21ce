// Package pairkey derives the canonical identifiers of an unordered user pair.
//
// Both directions of a mutual like compute the same key, which is what lets the
// match row be created with a plain conditional insert instead of a lock.
package pairkey

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	matchDomain        = "muzz/match/v1"
	conversationDomain = "muzz/conversation/v1"
)

// Sorted returns the pair in canonical (lo, hi) order.
func Sorted(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// MatchID is stable for the unordered pair {a, b}.
func MatchID(a, b string) string {
	return "m_" + hashPair(matchDomain, a, b)
}

// ConversationID uses a separate domain so it never collides with a match id.
func ConversationID(a, b string) string {
	return "c_" + hashPair(conversationDomain, a, b)
}

// hashPair computes blake2b-256(domain || 0x00 || lo || 0x00 || hi).
// The separators keep ("ab","c") and ("a","bc") apart.
func hashPair(domain, a, b string) string {
	lo, hi := Sorted(a, b)
	buf := make([]byte, 0, len(domain)+len(lo)+len(hi)+2)
	buf = append(buf, domain...)
	buf = append(buf, 0)
	buf = append(buf, lo...)
	buf = append(buf, 0)
	buf = append(buf, hi...)
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])[:40]
}

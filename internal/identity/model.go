package identity

import (
	"bytes"
	"crypto/ed25519"
)

// Party is a ledger participant identified by a well-known name and signing key.
type Party struct {
	Name      string            `json:"name"`
	PublicKey ed25519.PublicKey `json:"public_key"`
}

// Equal reports whether both parties carry the same name and key.
func (p Party) Equal(other Party) bool {
	return p.Name == other.Name && bytes.Equal(p.PublicKey, other.PublicKey)
}

// IsZero reports whether the party is unset.
func (p Party) IsZero() bool {
	return p.Name == "" && len(p.PublicKey) == 0
}

func (p Party) String() string {
	return p.Name
}

// Contains reports whether parties includes p.
func Contains(parties []Party, p Party) bool {
	for _, candidate := range parties {
		if candidate.Equal(p) {
			return true
		}
	}
	return false
}

// Distinct returns parties with duplicates removed, keeping first occurrences in order.
func Distinct(parties ...Party) []Party {
	out := make([]Party, 0, len(parties))
	for _, p := range parties {
		if !Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// SameSet reports whether a and b hold the same parties regardless of order.
func SameSet(a, b []Party) bool {
	a, b = Distinct(a...), Distinct(b...)
	if len(a) != len(b) {
		return false
	}
	for _, p := range a {
		if !Contains(b, p) {
			return false
		}
	}
	return true
}

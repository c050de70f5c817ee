// Package ident issues transaction identifiers of the form "TXN" + 6 uppercase hex digits.
package ident

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// Prefix starts every transaction identifier.
	Prefix = "TXN"

	// Space is the number of distinct identifiers (16^6).
	Space = 1 << 24

	maxRedraws = 32
)

// ErrExhausted is returned once every identifier in the space has been issued.
var ErrExhausted = errors.New("transaction identifier space exhausted")

// Generator issues identifiers that are unique within one batch.
// A Generator is not safe for concurrent use; create one per batch.
type Generator struct {
	seen map[uint32]struct{}
	rand func() uuid.UUID
}

// NewGenerator creates a generator drawing entropy from random UUIDs.
func NewGenerator(capacity int) *Generator {
	return &Generator{
		seen: make(map[uint32]struct{}, capacity),
		rand: uuid.New,
	}
}

// Next returns a fresh identifier not issued before by this generator.
// The first 24 bits of a random UUID are used; on collision another draw is
// taken, and after repeated collisions the next free value is probed.
func (g *Generator) Next() (string, error) {
	if len(g.seen) >= Space {
		return "", ErrExhausted
	}

	var v uint32
	for i := 0; ; i++ {
		v = draw(g.rand())
		if _, taken := g.seen[v]; !taken {
			break
		}
		if i >= maxRedraws {
			for {
				v = (v + 1) % Space
				if _, taken := g.seen[v]; !taken {
					break
				}
			}
			break
		}
	}

	g.seen[v] = struct{}{}
	return Format(v), nil
}

// Issued returns how many identifiers have been handed out.
func (g *Generator) Issued() int {
	return len(g.seen)
}

// Format renders a 24-bit value as an identifier.
func Format(v uint32) string {
	return fmt.Sprintf("%s%06X", Prefix, v&(Space-1))
}

// Valid reports whether s has the identifier shape.
func Valid(s string) bool {
	if len(s) != len(Prefix)+6 || s[:len(Prefix)] != Prefix {
		return false
	}
	for _, c := range s[len(Prefix):] {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func draw(u uuid.UUID) uint32 {
	return uint32(u[0])<<16 | uint32(u[1])<<8 | uint32(u[2])
}

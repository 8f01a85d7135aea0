package engine

import (
	"sync"

	"github.com/google/uuid"
)

// AddressGenerator assigns addresses to accounts initialized without one.
type AddressGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 account addresses.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined addresses in order.
type FixedGenerator struct {
	mu        sync.Mutex
	addresses []string
	idx       int
}

// NewFixedGenerator creates a generator that returns addresses in order.
func NewFixedGenerator(addresses ...string) *FixedGenerator {
	return &FixedGenerator{addresses: addresses}
}

// Generate returns the next predetermined address.
// Panics once every address has been handed out.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.addresses) {
		panic("FixedGenerator: all addresses exhausted")
	}
	addr := g.addresses[g.idx]
	g.idx++
	return addr
}

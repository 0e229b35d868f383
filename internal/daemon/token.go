package daemon

import (
	"sync"

	"github.com/google/uuid"
)

// TickTokenGenerator generates unique tokens correlating every record
// written during one tick. Implemented by UUIDv7Generator (production)
// and FixedGenerator (tests).
type TickTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tick tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens
// sort by creation time, which helps when eyeballing evaluation
// history.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tick tokens for testing, so
// golden output compares exactly across runs.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
// Generate panics once the tokens are exhausted; a test asking for more
// ticks than it declared is misconfigured.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

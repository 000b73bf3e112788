package symbols

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrSizeOutOfRange is returned when a sequence cannot be drawn from the catalog.
var ErrSizeOutOfRange = errors.New("sequence size out of range")

// Generator draws target sequences and test variants. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator with a fixed seed, for reproducible runs.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomGenerator returns a generator seeded from the wall clock.
func NewRandomGenerator() *Generator {
	return NewGenerator(time.Now().UnixNano())
}

// Generate returns size distinct symbol names in random order, sampled
// without replacement from the catalog.
func (g *Generator) Generate(size int) ([]string, error) {
	if size < 1 || size > Count {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrSizeOutOfRange, size, Count)
	}

	g.mu.Lock()
	perm := g.rng.Perm(len(catalog))
	g.mu.Unlock()

	seq := make([]string, size)
	for i := 0; i < size; i++ {
		seq[i] = catalog[perm[i]].Name
	}
	return seq, nil
}

// Variant draws Color or Monochrome with equal probability.
func (g *Generator) Variant() Variant {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.Intn(2) == 0 {
		return VariantColor
	}
	return VariantMonochrome
}

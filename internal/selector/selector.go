// Package selector picks the next crate to announce.
package selector

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrEmptyPool is returned when there is nothing left to choose from.
var ErrEmptyPool = errors.New("empty selection pool: no unvisited crates remain")

// Selector draws names uniformly at random.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Selector backed by src. Tests pass a fixed-seed source.
func New(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// NewTimeSeeded creates a Selector seeded from the current time.
func NewTimeSeeded() *Selector {
	return New(rand.NewSource(time.Now().UnixNano()))
}

// ChooseOne returns one element of names, each with equal probability.
func (s *Selector) ChooseOne(names []string) (string, error) {
	if len(names) == 0 {
		return "", ErrEmptyPool
	}

	s.mu.Lock()
	i := s.rng.Intn(len(names))
	s.mu.Unlock()

	return names[i], nil
}

var defaultSelector = NewTimeSeeded()

// ChooseOne picks from names with the package-level time-seeded Selector.
func ChooseOne(names []string) (string, error) {
	return defaultSelector.ChooseOne(names)
}

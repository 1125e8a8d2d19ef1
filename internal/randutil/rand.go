// Package randutil derives reproducible math/rand/v2 generators from int64
// seeds.
package randutil

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from seed.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(splitmix(u), splitmix(u+goldenRatio64)))
}

// Source hands out independent generators, one per shuffle, from a single
// seed. It is safe for concurrent use. A zero seed is replaced with the
// current time.
type Source struct {
	mu     sync.Mutex
	master *rand.Rand
	seed   int64
}

// NewSource returns a Source for seed.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{master: New(seed), seed: seed}
}

// Seed returns the effective seed, for logging.
func (s *Source) Seed() int64 {
	return s.seed
}

// Next returns a fresh generator. The sequence of generators is fully
// determined by the seed.
func (s *Source) Next() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return New(int64(s.master.Uint64()))
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

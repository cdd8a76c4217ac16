package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Sampler supplies the random draw consumed by NextBackoff
type Sampler interface {
	Uint32() uint32
}

// RandomSampler is a thread-safe pseudo random source
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler returns a sampler seeded from the wall clock.
// Clients that retry in lockstep should seed from something device specific
// via NewSeededSampler instead.
func NewRandomSampler() *RandomSampler {
	return NewSeededSampler(time.Now().UnixNano())
}

// NewSeededSampler returns a sampler with a fixed seed
func NewSeededSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewSource(seed))}
}

// Uint32 returns the next sample
func (s *RandomSampler) Uint32() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Uint32()
}

// FixedSampler replays a fixed sequence of samples, repeating the last one
// once the sequence runs out. Useful for deterministic tests.
type FixedSampler struct {
	mu      sync.Mutex
	samples []uint32
	next    int
}

// NewFixedSampler returns a sampler replaying samples
func NewFixedSampler(samples ...uint32) *FixedSampler {
	return &FixedSampler{samples: samples}
}

// Uint32 returns the next sample in the sequence
func (s *FixedSampler) Uint32() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0
	}
	if s.next >= len(s.samples) {
		return s.samples[len(s.samples)-1]
	}
	v := s.samples[s.next]
	s.next++
	return v
}

package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// FakeSensor simulates a potentiometer being turned: a bounded random walk
// over [0, maxRaw].
type FakeSensor struct {
	mu    sync.Mutex
	rng   *rand.Rand
	max   float64
	step  float64
	value float64
}

func NewFakeSensor(maxRaw float64) Source {
	if maxRaw <= 0 {
		maxRaw = 4095
	}
	return &FakeSensor{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		max:   maxRaw,
		step:  maxRaw / 20,
		value: maxRaw / 2,
	}
}

func (f *FakeSensor) Read() (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value += (f.rng.Float64()*2 - 1) * f.step
	f.value = math.Max(0, math.Min(f.max, f.value))
	return Reading(math.Round(f.value)), nil
}

func (f *FakeSensor) Close() error { return nil }

// Sequence replays fixed readings, optionally looping.
type Sequence struct {
	mu     sync.Mutex
	values []Reading
	next   int
	loop   bool
}

func NewSequence(loop bool, values ...Reading) *Sequence {
	return &Sequence{values: values, loop: loop}
}

func (s *Sequence) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.values) {
		if !s.loop || len(s.values) == 0 {
			return 0, ErrExhausted
		}
		s.next = 0
	}
	v := s.values[s.next]
	s.next++
	return v, nil
}

func (s *Sequence) Close() error { return nil }

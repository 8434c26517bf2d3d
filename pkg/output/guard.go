package output

import "github.com/ericogr/ads1115-estop/pkg/rtos"

// Guard serializes every task's writes to one Sink. Each line is written
// while holding the guard, so lines from different tasks never interleave.
type Guard struct {
	mu   *rtos.Mutex
	sink Sink
}

func NewGuard(k *rtos.Kernel, sink Sink) *Guard {
	return &Guard{mu: rtos.NewMutex(k), sink: sink}
}

// WriteLine blocks t until the guard is free, then writes line. The guard
// is released on every path, including sink errors.
func (g *Guard) WriteLine(t *rtos.Task, line string) error {
	g.mu.Lock(t)
	defer g.mu.Unlock(t)
	return g.sink.WriteLine(line)
}

// Holder names the task holding the guard, or "" when free.
func (g *Guard) Holder() string { return g.mu.Holder() }

package rtos

import "sync/atomic"

// BinarySemaphore holds at most one pending occurrence. Posts made before the
// occurrence is taken coalesce into it.
type BinarySemaphore struct {
	k         *Kernel
	pending   atomic.Bool
	coalesced atomic.Uint64
	waiters   taskList // guarded by k.mu
}

func NewBinarySemaphore(k *Kernel) *BinarySemaphore {
	s := &BinarySemaphore{k: k}
	k.mu.Lock()
	k.sems = append(k.sems, s)
	k.mu.Unlock()
	return s
}

// GiveFromISR posts from interrupt context. It is wait-free: one
// compare-and-swap and a non-blocking reschedule request. It reports false
// when the post coalesced into one already pending.
func (s *BinarySemaphore) GiveFromISR() bool {
	if !s.pending.CompareAndSwap(false, true) {
		s.coalesced.Add(1)
		return false
	}
	s.k.RequestSwitch()
	return true
}

// Give posts from task context. A higher-priority waiter runs before Give
// returns.
func (s *BinarySemaphore) Give(t *Task) bool {
	k := s.k
	k.enter(t)
	ok := s.pending.CompareAndSwap(false, true)
	if !ok {
		s.coalesced.Add(1)
	}
	s.deliver()
	k.preempt(t)
	k.mu.Unlock()
	return ok
}

// Take blocks t until an occurrence is pending and consumes it.
func (s *BinarySemaphore) Take(t *Task) {
	k := s.k
	k.enter(t)
	for !s.pending.CompareAndSwap(true, false) {
		s.waiters.push(t)
		k.block(t)
	}
	k.mu.Unlock()
}

// TryTake consumes a pending occurrence without blocking.
func (s *BinarySemaphore) TryTake() bool {
	return s.pending.CompareAndSwap(true, false)
}

func (s *BinarySemaphore) Pending() bool { return s.pending.Load() }

// Coalesced counts posts absorbed by an occurrence already pending.
func (s *BinarySemaphore) Coalesced() uint64 { return s.coalesced.Load() }

// deliver readies the best waiter while an occurrence is pending. k.mu held.
func (s *BinarySemaphore) deliver() {
	if !s.pending.Load() {
		return
	}
	if w := s.waiters.pop(); w != nil {
		s.k.makeReady(w)
	}
}

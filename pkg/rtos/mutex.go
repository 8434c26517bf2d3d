package rtos

import "fmt"

// Mutex gives one task at a time exclusive use of a resource. Waits are
// unbounded, the highest-priority waiter is served first, and the holder
// inherits the priority of its best waiter until it unlocks.
// A Mutex is not reentrant.
type Mutex struct {
	k *Kernel

	// Guarded by k.mu.
	owner   *Task
	waiters taskList
}

func NewMutex(k *Kernel) *Mutex { return &Mutex{k: k} }

func (m *Mutex) Lock(t *Task) {
	k := m.k
	k.enter(t)
	if m.owner == t {
		k.fatal(fmt.Errorf("%w: %s", ErrRecursiveLock, t.name))
	}
	if m.owner == nil {
		m.acquire(t)
		k.mu.Unlock()
		return
	}
	m.waiters.push(t)
	m.inherit()
	// Unlock hands ownership over before t is readied.
	k.block(t)
	k.mu.Unlock()
}

func (m *Mutex) Unlock(t *Task) {
	k := m.k
	k.enter(t)
	if m.owner != t {
		k.fatal(fmt.Errorf("%w: %s", ErrNotOwner, t.name))
	}
	m.owner = nil
	t.held--
	if t.held == 0 {
		t.prio = t.base
	}
	if w := m.waiters.pop(); w != nil {
		m.acquire(w)
		m.inherit()
		k.makeReady(w)
	}
	k.preempt(t)
	k.mu.Unlock()
}

// Holder returns the name of the owning task, or "" when free.
func (m *Mutex) Holder() string {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	if m.owner == nil {
		return ""
	}
	return m.owner.name
}

func (m *Mutex) acquire(t *Task) {
	m.owner = t
	t.held++
}

func (m *Mutex) inherit() {
	if m.owner == nil {
		return
	}
	if w := m.waiters.peek(); w != nil && w.prio > m.owner.prio {
		m.owner.prio = w.prio
	}
}

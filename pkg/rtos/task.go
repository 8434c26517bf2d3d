package rtos

import (
	"fmt"
	"runtime"
	"time"
)

// Priority orders tasks for dispatch. Larger values run first.
type Priority int

const (
	PriorityIdle   Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// State is the scheduling state of a task.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TaskSpec describes a task created once at startup.
type TaskSpec struct {
	Name      string
	Priority  Priority
	StackSize int // bytes, reported only; goroutine stacks grow on demand
	Entry     func(*Task)
}

// TaskInfo is a snapshot of a task's scheduling data.
type TaskInfo struct {
	Name         string
	Priority     Priority
	BasePriority Priority
	StackSize    int
	State        State
}

// Task is a unit of execution with a fixed base priority and an infinite
// run loop. The *Task handed to the entry function is the handle every
// blocking kernel call takes.
type Task struct {
	k     *Kernel
	name  string
	base  Priority
	stack int
	entry func(*Task)

	// Guarded by k.mu.
	prio   Priority
	state  State
	wakeAt uint64
	held   int

	wake chan struct{}
}

func (t *Task) Name() string { return t.name }

// Priority returns the effective priority, which is raised above the base
// priority while the task holds a mutex a higher-priority task waits for.
func (t *Task) Priority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.prio
}

// Delay suspends the task for at least d, rounded up to whole ticks.
func (t *Task) Delay(d time.Duration) {
	k := t.k
	k.enter(t)
	t.wakeAt = k.tick + k.ticksFor(d)
	k.delayed = append(k.delayed, t)
	k.block(t)
	k.mu.Unlock()
}

// Yield hands the CPU to the next ready task of equal or higher priority.
func (t *Task) Yield() {
	k := t.k
	k.enter(t)
	k.yield(t)
	k.mu.Unlock()
}

func (t *Task) run() {
	defer t.k.wg.Done()
	t.suspend()
	t.entry(t)
	t.k.mu.Lock()
	t.k.fatal(fmt.Errorf("task %q: %w", t.name, ErrTaskReturned))
}

// suspend parks the goroutine until the task is dispatched. A halted kernel
// ends the goroutine here, so task code never sees a blocking call return.
func (t *Task) suspend() {
	select {
	case <-t.wake:
	case <-t.k.halt:
		runtime.Goexit()
	}
}

func (t *Task) resume() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// taskList is a ready or wait list. Selection is by priority, FIFO among
// equals; task sets are small so a linear scan is enough.
type taskList []*Task

func (l *taskList) push(t *Task) { *l = append(*l, t) }

func (l taskList) best() int {
	idx := -1
	for i, t := range l {
		if idx < 0 || t.prio > l[idx].prio {
			idx = i
		}
	}
	return idx
}

func (l taskList) peek() *Task {
	if i := l.best(); i >= 0 {
		return l[i]
	}
	return nil
}

func (l *taskList) pop() *Task {
	i := l.best()
	if i < 0 {
		return nil
	}
	t := (*l)[i]
	l.removeAt(i)
	return t
}

func (l *taskList) removeAt(i int) {
	s := *l
	copy(s[i:], s[i+1:])
	s[len(s)-1] = nil
	*l = s[:len(s)-1]
}

func (l taskList) hasPriority(p Priority) bool {
	for _, t := range l {
		if t.prio == p {
			return true
		}
	}
	return false
}

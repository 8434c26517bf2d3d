// Package rtos is a small single-core, fixed-priority, preemptive executive
// built on goroutines. Exactly one task holds the CPU at a time; every other
// task goroutine is parked on a channel, so blocked tasks cost no CPU.
//
// Preemption points are the kernel calls themselves. A task made ready by a
// kernel call of a lower-priority task runs before that call returns. A task
// made ready from interrupt context (an ISR post or a tick) is switched in
// immediately when the CPU is idle, otherwise at the running task's next
// kernel call.
//
// Once the kernel halts, every kernel call ends the calling task goroutine,
// so task code never sees a kernel call return after a halt.
package rtos

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

const DefaultTickPeriod = time.Millisecond

type Config struct {
	TickPeriod time.Duration
	// Ticks replaces the internal ticker when set. Tests use it to drive
	// time by hand.
	Ticks  <-chan time.Time
	Logger *slog.Logger
}

// Kernel owns the task set, the ready list and the tick. It is driven by
// the tick and by interrupt reschedule requests.
type Kernel struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	tasks   []*Task
	ready   taskList
	delayed []*Task
	current *Task
	tick    uint64
	slice   bool // current task's time slice ran out
	started bool
	sems    []*BinarySemaphore

	irq      chan struct{}
	halt     chan struct{}
	stopOnce sync.Once
	err      error
	wg       sync.WaitGroup
}

func New(cfg Config) *Kernel {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Kernel{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "rtos"),
		irq:  make(chan struct{}, 1),
		halt: make(chan struct{}),
	}
}

// CreateTask registers a task. Tasks can only be created before Run.
func (k *Kernel) CreateTask(spec TaskSpec) (*Task, error) {
	if spec.Entry == nil {
		return nil, fmt.Errorf("rtos: task %q has no entry function", spec.Name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil, ErrStarted
	}
	t := &Task{
		k:     k,
		name:  spec.Name,
		base:  spec.Priority,
		prio:  spec.Priority,
		stack: spec.StackSize,
		entry: spec.Entry,
		state: StateReady,
		wake:  make(chan struct{}, 1),
	}
	k.tasks = append(k.tasks, t)
	k.ready.push(t)
	return t, nil
}

// Run starts the scheduler and blocks until ctx is cancelled (power-off) or
// a fatal design error halts the kernel. Only the latter yields an error.
func (k *Kernel) Run(ctx context.Context) error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return ErrStarted
	}
	k.started = true
	ticks := k.cfg.Ticks
	if ticks == nil {
		ticker := time.NewTicker(k.cfg.TickPeriod)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for _, t := range k.tasks {
		k.wg.Add(1)
		go t.run()
	}
	k.log.Debug("scheduler started", "tasks", len(k.tasks), "tick", k.cfg.TickPeriod)
	k.dispatch()
	k.mu.Unlock()

	k.wg.Add(1)
	go k.interrupts(ticks)

	select {
	case <-ctx.Done():
		k.stop(nil)
	case <-k.halt:
	}
	k.wg.Wait()
	return k.err
}

// RequestSwitch asks the dispatcher for a scheduling pass. It never blocks
// and is safe to call from interrupt context.
func (k *Kernel) RequestSwitch() {
	select {
	case k.irq <- struct{}{}:
	default:
	}
}

// Tasks returns a snapshot of every task in creation order.
func (k *Kernel) Tasks() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]TaskInfo, 0, len(k.tasks))
	for _, t := range k.tasks {
		out = append(out, TaskInfo{
			Name:         t.name,
			Priority:     t.prio,
			BasePriority: t.base,
			StackSize:    t.stack,
			State:        t.state,
		})
	}
	return out
}

func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// interrupts plays the interrupt controller: tick and reschedule requests
// are serviced here under the kernel lock.
func (k *Kernel) interrupts(ticks <-chan time.Time) {
	defer k.wg.Done()
	for {
		select {
		case <-k.halt:
			return
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			k.mu.Lock()
			k.onTick()
			k.serviceISR()
			k.reschedule()
			k.mu.Unlock()
		case <-k.irq:
			k.mu.Lock()
			k.serviceISR()
			k.reschedule()
			k.mu.Unlock()
		}
	}
}

// The helpers below are called with k.mu held.

func (k *Kernel) onTick() {
	k.tick++
	kept := k.delayed[:0]
	for _, t := range k.delayed {
		if t.wakeAt <= k.tick {
			k.makeReady(t)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(k.delayed); i++ {
		k.delayed[i] = nil
	}
	k.delayed = kept
	if k.current != nil && k.ready.hasPriority(k.current.prio) {
		k.slice = true
	}
}

func (k *Kernel) serviceISR() {
	for _, s := range k.sems {
		s.deliver()
	}
}

// reschedule dispatches onto an idle CPU. A busy CPU picks up the new ready
// set at the running task's next kernel call.
func (k *Kernel) reschedule() {
	if k.started && k.current == nil && !k.halted() {
		k.dispatch()
	}
}

func (k *Kernel) makeReady(t *Task) {
	t.state = StateReady
	k.ready.push(t)
}

func (k *Kernel) dispatch() {
	k.slice = false
	next := k.ready.pop()
	k.current = next
	if next != nil {
		next.state = StateRunning
		next.resume()
	}
}

// park gives the CPU away and suspends t until it is dispatched again.
func (k *Kernel) park(t *Task) {
	k.dispatch()
	k.mu.Unlock()
	t.suspend()
	k.mu.Lock()
	if k.halted() {
		k.mu.Unlock()
		runtime.Goexit()
	}
}

func (k *Kernel) block(t *Task) {
	t.state = StateBlocked
	k.park(t)
}

func (k *Kernel) yield(t *Task) {
	k.makeReady(t)
	k.park(t)
}

// preempt yields t when a higher-priority task is ready, or an equal one is
// and t's time slice has run out.
func (k *Kernel) preempt(t *Task) {
	top := k.ready.peek()
	if top == nil {
		return
	}
	if top.prio > t.prio || (k.slice && top.prio == t.prio) {
		k.yield(t)
	}
}

// enter takes the kernel lock for a call made by t and applies any pending
// preemption. Once the kernel halted it ends the task goroutine instead, so
// no kernel call returns to task code after a halt.
func (k *Kernel) enter(t *Task) {
	k.mu.Lock()
	if k.halted() {
		k.mu.Unlock()
		runtime.Goexit()
	}
	if k.current != t {
		k.fatal(fmt.Errorf("%w: %s", ErrNotRunning, t.name))
	}
	k.preempt(t)
}

// fatal halts the kernel with err and ends the calling task goroutine.
func (k *Kernel) fatal(err error) {
	k.log.Error("kernel halted", "error", err)
	k.stop(err)
	k.mu.Unlock()
	runtime.Goexit()
}

func (k *Kernel) stop(err error) {
	k.stopOnce.Do(func() {
		k.err = err
		close(k.halt)
	})
}

func (k *Kernel) halted() bool {
	select {
	case <-k.halt:
		return true
	default:
		return false
	}
}

func (k *Kernel) ticksFor(d time.Duration) uint64 {
	p := k.cfg.TickPeriod
	n := (d + p - 1) / p
	if n < 1 {
		n = 1
	}
	return uint64(n)
}

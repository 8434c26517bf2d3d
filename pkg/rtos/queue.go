package rtos

// Queue is a bounded FIFO between tasks. Sends never block: a full queue
// drops the value being sent. Receives block until an item exists.
type Queue[T any] struct {
	k *Kernel

	// Guarded by k.mu.
	buf       []T
	head      int
	n         int
	sent      uint64
	dropped   uint64
	receivers taskList
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](k *Kernel, capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("rtos: queue capacity must be positive")
	}
	return &Queue[T]{k: k, buf: make([]T, capacity)}
}

// TrySend appends v without blocking. It reports false, and drops v, when
// the queue is full.
func (q *Queue[T]) TrySend(t *Task, v T) bool {
	k := q.k
	k.enter(t)
	ok := q.push(v)
	k.preempt(t)
	k.mu.Unlock()
	return ok
}

// Receive blocks t until an item is available and returns it.
func (q *Queue[T]) Receive(t *Task) T {
	k := q.k
	k.enter(t)
	for q.n == 0 {
		q.receivers.push(t)
		k.block(t)
	}
	v := q.pop()
	k.mu.Unlock()
	return v
}

// Put is TrySend for goroutines that are not tasks. It takes the kernel lock
// and must not be called from an interrupt handler.
func (q *Queue[T]) Put(v T) bool {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	ok := q.push(v)
	k.reschedule()
	return ok
}

// Get removes the oldest item without blocking. Like Put it is meant for
// goroutines that are not tasks.
func (q *Queue[T]) Get() (T, bool) {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *Queue[T]) Len() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.n
}

func (q *Queue[T]) Cap() int { return len(q.buf) }

// Sent counts accepted items.
func (q *Queue[T]) Sent() uint64 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.sent
}

// Dropped counts items refused because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.dropped
}

func (q *Queue[T]) push(v T) bool {
	if q.n == len(q.buf) {
		q.dropped++
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	q.sent++
	if r := q.receivers.pop(); r != nil {
		q.k.makeReady(r)
	}
	return true
}

func (q *Queue[T]) pop() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v
}

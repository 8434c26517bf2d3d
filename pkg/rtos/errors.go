package rtos

import "errors"

var (
	// ErrStarted is returned when the task set is changed, or the kernel run,
	// after Run has been called.
	ErrStarted = errors.New("rtos: kernel already started")

	// ErrTaskReturned halts the kernel when a task entry function returns.
	ErrTaskReturned = errors.New("rtos: task function returned")

	// ErrRecursiveLock halts the kernel when a task locks a mutex it already holds.
	ErrRecursiveLock = errors.New("rtos: mutex locked twice by the same task")

	// ErrNotOwner halts the kernel when a task unlocks a mutex it does not hold.
	ErrNotOwner = errors.New("rtos: mutex unlocked by a task that does not hold it")

	// ErrNotRunning halts the kernel when a kernel call is made on behalf of a
	// task that does not hold the CPU.
	ErrNotRunning = errors.New("rtos: kernel call from a task that does not hold the CPU")
)

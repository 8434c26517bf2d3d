package rtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexPriorityInheritance(t *testing.T) {
	k := New(Config{Ticks: make(chan time.Time)})
	m := NewMutex(k)
	s := NewBinarySemaphore(k)
	tr := &trace{}
	done := make(chan struct{})

	mustCreate(t, k, TaskSpec{Name: "high", Priority: PriorityHigh, Entry: func(t *Task) {
		for {
			s.Take(t)
			m.Lock(t)
			tr.add("high-locked")
			m.Unlock(t)
		}
	}})
	mustCreate(t, k, TaskSpec{Name: "low", Priority: PriorityNormal, Entry: func(t *Task) {
		m.Lock(t)
		tr.add("low-locked")
		s.Give(t) // high runs, blocks on m and lends us its priority
		tr.add("low-prio=" + t.Priority().String())
		tr.add("holder=" + m.Holder())
		m.Unlock(t) // high takes m before Unlock returns
		tr.add("low-prio=" + t.Priority().String())
		close(done)
		idle(t)
	}})
	startKernel(t, k)
	<-done

	assert.Equal(t, []string{
		"low-locked",
		"low-prio=high",
		"holder=low",
		"high-locked",
		"low-prio=normal",
	}, tr.get())
	assert.Equal(t, "", m.Holder())
}

func TestRecursiveLockHaltsKernel(t *testing.T) {
	k := New(Config{})
	m := NewMutex(k)
	mustCreate(t, k, TaskSpec{Name: "twice", Priority: PriorityNormal, Entry: func(t *Task) {
		m.Lock(t)
		m.Lock(t)
		idle(t)
	}})
	err := runUntilHalt(t, k)
	require.ErrorIs(t, err, ErrRecursiveLock)
}

func TestUnlockByNonOwnerHaltsKernel(t *testing.T) {
	k := New(Config{})
	m := NewMutex(k)
	mustCreate(t, k, TaskSpec{Name: "stranger", Priority: PriorityNormal, Entry: func(t *Task) {
		m.Unlock(t)
		idle(t)
	}})
	err := runUntilHalt(t, k)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestMutexServesHighestWaiterFirst(t *testing.T) {
	k := New(Config{Ticks: make(chan time.Time)})
	m := NewMutex(k)
	s := NewBinarySemaphore(k)
	tr := &trace{}
	done := make(chan struct{}, 2)
	waiter := func(name string) func(*Task) {
		return func(t *Task) {
			m.Lock(t)
			tr.add(name)
			m.Unlock(t)
			done <- struct{}{}
			idle(t)
		}
	}

	mustCreate(t, k, TaskSpec{Name: "holder", Priority: PriorityHigh, Entry: func(t *Task) {
		m.Lock(t)
		s.Take(t)
		m.Unlock(t)
		idle(t)
	}})
	mustCreate(t, k, TaskSpec{Name: "background", Priority: PriorityIdle, Entry: waiter("background")})
	mustCreate(t, k, TaskSpec{Name: "worker", Priority: PriorityNormal, Entry: waiter("worker")})
	startKernel(t, k)

	require.Eventually(t, func() bool {
		for _, info := range k.Tasks() {
			if info.State != StateBlocked {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
	s.GiveFromISR()
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("waiters did not finish")
		}
	}
	assert.Equal(t, []string{"worker", "background"}, tr.get())
}

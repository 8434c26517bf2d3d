package app

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/rtos"
	"github.com/ericogr/ads1115-estop/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is both the sink and the alarm so their relative order is kept.
type recorder struct {
	mu     sync.Mutex
	events []string
	at     []time.Time
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
}

func (r *recorder) WriteLine(line string) error { r.add(line); return nil }
func (r *recorder) Close() error                { return nil }

func (r *recorder) Set(active bool) {
	if active {
		r.add("alarm on")
	} else {
		r.add("alarm off")
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.SamplePeriodMs = 2
	return cfg
}

func start(t *testing.T, s *System) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("system did not stop")
		}
	})
}

func TestFormatVoltage(t *testing.T) {
	scale := Scale{MaxRaw: 4095, ReferenceVolts: 3.3}
	tests := []struct {
		raw  sensor.Reading
		want string
	}{
		{0, "Voltage: 0.00 V"},
		{4095, "Voltage: 3.30 V"},
		{2048, "Voltage: 1.65 V"},
		{1024, "Voltage: 0.83 V"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVoltage(scale.Volts(tt.raw)), "raw %d", tt.raw)
	}

	ads := NewScale(config.ConversionFor(config.SensorADS1115, config.ConversionConfig{}))
	assert.Equal(t, "Voltage: 2.05 V", FormatVoltage(ads.Volts(16384)))
	assert.Equal(t, "Voltage: 4.10 V", FormatVoltage(ads.Volts(32767)))
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(testConfig(), Deps{Sink: &recorder{}, Alarm: &recorder{}})
	require.Error(t, err)

	cfg := testConfig()
	cfg.QueueCapacity = 0
	_, err = New(cfg, Deps{Sensor: sensor.NewSequence(false), Sink: &recorder{}, Alarm: &recorder{}})
	require.Error(t, err)
}

func TestTaskTable(t *testing.T) {
	rec := &recorder{}
	s, err := New(testConfig(), Deps{Sensor: sensor.NewSequence(false), Sink: rec, Alarm: rec, Logger: quietLogger()})
	require.NoError(t, err)

	tasks := s.Tasks()
	require.Len(t, tasks, 3)
	want := []struct {
		name string
		prio rtos.Priority
	}{{"Safety", rtos.PriorityHigh}, {"Sampling", rtos.PriorityNormal}, {"Processing", rtos.PriorityNormal}}
	for i, w := range want {
		assert.Equal(t, w.name, tasks[i].Name)
		assert.Equal(t, w.prio, tasks[i].Priority)
		assert.Equal(t, TaskStackSize, tasks[i].StackSize)
	}
}

func TestReadingsAreConvertedInOrder(t *testing.T) {
	rec := &recorder{}
	s, err := New(testConfig(), Deps{
		Sensor: sensor.NewSequence(false, 0, 4095, 2048),
		Sink:   rec,
		Alarm:  rec,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	start(t, s)

	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"Voltage: 0.00 V", "Voltage: 3.30 V", "Voltage: 1.65 V"}, rec.get())
	assert.Equal(t, uint64(3), s.Stats().Processed)
	assert.Equal(t, uint64(0), s.Stats().Dropped)
}

func TestEmergencyCycle(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownMs = 50
	rec := &recorder{}
	s, err := New(cfg, Deps{Sensor: sensor.NewSequence(false), Sink: rec, Alarm: rec, Logger: quietLogger()})
	require.NoError(t, err)
	start(t, s)

	s.Interrupt()
	require.Eventually(t, func() bool { return rec.count() >= 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{EmergencyMessage, "alarm on", ResetMessage, "alarm off"}, rec.get())

	rec.mu.Lock()
	elapsed := rec.at[2].Sub(rec.at[1])
	rec.mu.Unlock()
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	assert.Equal(t, uint64(1), s.Stats().Emergencies)
}

func TestInterruptsDuringCooldownCoalesce(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownMs = 100
	rec := &recorder{}
	s, err := New(cfg, Deps{Sensor: sensor.NewSequence(false), Sink: rec, Alarm: rec, Logger: quietLogger()})
	require.NoError(t, err)
	start(t, s)

	s.Interrupt()
	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, time.Millisecond)
	s.Interrupt()
	s.Interrupt()
	s.Interrupt()

	require.Eventually(t, func() bool { return rec.count() >= 8 }, 2*time.Second, time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	cycle := []string{EmergencyMessage, "alarm on", ResetMessage, "alarm off"}
	assert.Equal(t, append(append([]string{}, cycle...), cycle...), rec.get())

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Emergencies)
	assert.Equal(t, uint64(2), st.Coalesced)
}

// With nothing draining the queue, the eleventh reading is dropped.
func TestUndrainedQueueKeepsTen(t *testing.T) {
	ticks := make(chan time.Time)
	values := make([]sensor.Reading, 11)
	for i := range values {
		values[i] = sensor.Reading(i)
	}
	rec := &recorder{}
	s, err := newSystem(testConfig(), Deps{
		Sensor: sensor.NewSequence(false, values...),
		Sink:   rec,
		Alarm:  rec,
		Logger: quietLogger(),
		Ticks:  ticks,
	})
	require.NoError(t, err)
	_, err = s.kernel.CreateTask(rtos.TaskSpec{Name: "Sampling", Priority: rtos.PriorityNormal, Entry: s.sampling})
	require.NoError(t, err)
	start(t, s)

	deadline := time.After(2 * time.Second)
	for s.Stats().Sampled < 11 {
		select {
		case ticks <- time.Now():
		case <-deadline:
			t.Fatalf("sampled %d readings", s.Stats().Sampled)
		}
	}
	assert.Equal(t, 10, s.readings.Len())
	assert.Equal(t, uint64(1), s.Stats().Dropped)
	for want := 0; want < 10; want++ {
		v, ok := s.readings.Get()
		require.True(t, ok)
		assert.Equal(t, sensor.Reading(want), v)
	}
	assert.Empty(t, rec.get())
}

func TestSensorErrorsAreCounted(t *testing.T) {
	rec := &recorder{}
	s, err := New(testConfig(), Deps{Sensor: sensor.NewSequence(false), Sink: rec, Alarm: rec, Logger: quietLogger()})
	require.NoError(t, err)
	start(t, s)
	require.Eventually(t, func() bool { return s.Stats().SensorErrors >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(0), s.Stats().Sampled)
}

// hookSensor returns fixed readings and runs a hook on one chosen read, from
// inside the Sampling task.
type hookSensor struct {
	mu     sync.Mutex
	values []sensor.Reading
	n      int
	hookAt int
	hook   func()
}

func (h *hookSensor) Read() (sensor.Reading, error) {
	h.mu.Lock()
	h.n++
	n, hook := h.n, h.hook
	v := h.values[(n-1)%len(h.values)]
	h.mu.Unlock()
	if n == h.hookAt && hook != nil {
		hook()
	}
	return v, nil
}

func (h *hookSensor) Close() error { return nil }

// An interrupt raised while Sampling runs gets the emergency line out before
// the reading being sampled is reported.
func TestInterruptDuringSamplingPreempts(t *testing.T) {
	ticks := make(chan time.Time)
	src := &hookSensor{values: []sensor.Reading{1000, 2048}, hookAt: 2}
	rec := &recorder{}
	s, err := New(testConfig(), Deps{Sensor: src, Sink: rec, Alarm: rec, Logger: quietLogger(), Ticks: ticks})
	require.NoError(t, err)
	src.hook = func() {
		s.Interrupt()
		for s.Tasks()[0].State != rtos.StateReady {
			runtime.Gosched()
		}
	}
	start(t, s)

	deadline := time.After(2 * time.Second)
	for rec.count() < 4 {
		select {
		case ticks <- time.Now():
		case <-deadline:
			t.Fatalf("events so far: %v", rec.get())
		}
	}
	assert.Equal(t, []string{"Voltage: 0.81 V", EmergencyMessage, "alarm on", "Voltage: 1.65 V"}, rec.get()[:4])
}

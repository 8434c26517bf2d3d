// Package app wires the sampling, processing and safety tasks onto the
// scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ericogr/ads1115-estop/pkg/alarm"
	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/output"
	"github.com/ericogr/ads1115-estop/pkg/rtos"
	"github.com/ericogr/ads1115-estop/pkg/sensor"
)

const TaskStackSize = 2048

// Deps are the collaborators the core calls through.
type Deps struct {
	Sensor sensor.Source
	Sink   output.Sink
	Alarm  alarm.Output
	Logger *slog.Logger
	// Ticks drives the scheduler instead of a wall-clock ticker.
	Ticks <-chan time.Time
}

type Stats struct {
	Sampled      uint64
	Dropped      uint64
	Processed    uint64
	Emergencies  uint64
	Coalesced    uint64
	SensorErrors uint64
	WriteErrors  uint64
}

// System owns the scheduler and every shared resource. Each task reaches
// the queue, the emergency signal and the output guard through it.
type System struct {
	log    *slog.Logger
	kernel *rtos.Kernel

	readings *rtos.Queue[sensor.Reading]
	estop    *rtos.BinarySemaphore
	guard    *output.Guard

	sensor   sensor.Source
	alarm    alarm.Output
	scale    Scale
	period   time.Duration
	cooldown time.Duration

	sampled      atomic.Uint64
	processed    atomic.Uint64
	emergencies  atomic.Uint64
	sensorErrors atomic.Uint64
	writeErrors  atomic.Uint64
}

func New(cfg config.Config, deps Deps) (*System, error) {
	s, err := newSystem(cfg, deps)
	if err != nil {
		return nil, err
	}
	for _, spec := range []rtos.TaskSpec{
		{Name: "Safety", Priority: rtos.PriorityHigh, StackSize: TaskStackSize, Entry: s.safety},
		{Name: "Sampling", Priority: rtos.PriorityNormal, StackSize: TaskStackSize, Entry: s.sampling},
		{Name: "Processing", Priority: rtos.PriorityNormal, StackSize: TaskStackSize, Entry: s.processing},
	} {
		if _, err := s.kernel.CreateTask(spec); err != nil {
			return nil, fmt.Errorf("create task %s: %w", spec.Name, err)
		}
	}
	return s, nil
}

func newSystem(cfg config.Config, deps Deps) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Sensor == nil || deps.Sink == nil || deps.Alarm == nil {
		return nil, errors.New("sensor, sink and alarm are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	k := rtos.New(rtos.Config{TickPeriod: cfg.TickPeriod(), Ticks: deps.Ticks, Logger: logger})
	return &System{
		log:      logger.With("component", "app"),
		kernel:   k,
		readings: rtos.NewQueue[sensor.Reading](k, cfg.QueueCapacity),
		estop:    rtos.NewBinarySemaphore(k),
		guard:    output.NewGuard(k, deps.Sink),
		sensor:   deps.Sensor,
		alarm:    deps.Alarm,
		scale:    NewScale(cfg.Conversion),
		period:   cfg.SamplePeriod(),
		cooldown: cfg.Cooldown(),
	}, nil
}

// Interrupt is the emergency stop ISR. It only posts the signal and never
// blocks, so any trigger source may call it from any goroutine.
func (s *System) Interrupt() {
	s.estop.GiveFromISR()
}

// Run schedules the tasks until ctx is cancelled or the kernel halts on a
// programming error.
func (s *System) Run(ctx context.Context) error {
	s.log.Info("system starting", "tasks", len(s.kernel.Tasks()), "period", s.period, "cooldown", s.cooldown)
	err := s.kernel.Run(ctx)
	st := s.Stats()
	s.log.Info("system stopped",
		"sampled", st.Sampled, "dropped", st.Dropped, "processed", st.Processed,
		"emergencies", st.Emergencies, "coalesced", st.Coalesced)
	return err
}

func (s *System) Stats() Stats {
	return Stats{
		Sampled:      s.sampled.Load(),
		Dropped:      s.readings.Dropped(),
		Processed:    s.processed.Load(),
		Emergencies:  s.emergencies.Load(),
		Coalesced:    s.estop.Coalesced(),
		SensorErrors: s.sensorErrors.Load(),
		WriteErrors:  s.writeErrors.Load(),
	}
}

func (s *System) Tasks() []rtos.TaskInfo { return s.kernel.Tasks() }

package app

import (
	"github.com/ericogr/ads1115-estop/pkg/rtos"
)

const (
	EmergencyMessage = "!!! EMERGENCY STOP TRIGGERED !!!"
	ResetMessage     = "System Resetting..."
)

// sampling reads the sensor once per period and offers each reading to the
// queue without waiting. A full queue drops the newest reading.
func (s *System) sampling(t *rtos.Task) {
	for {
		v, err := s.sensor.Read()
		if err != nil {
			s.sensorErrors.Add(1)
			s.log.Warn("sensor read failed", "error", err)
		} else {
			if !s.readings.TrySend(t, v) {
				s.log.Debug("queue full, reading dropped", "raw", v)
			}
			s.sampled.Add(1)
		}
		t.Delay(s.period)
	}
}

func (s *System) processing(t *rtos.Task) {
	for {
		v := s.readings.Receive(t)
		s.write(t, FormatVoltage(s.scale.Volts(v)))
		s.processed.Add(1)
	}
}

// safety runs one alarm cycle per emergency. Interrupts raised during the
// cooldown collapse into a single pending signal.
func (s *System) safety(t *rtos.Task) {
	for {
		s.estop.Take(t)
		s.emergencies.Add(1)
		s.write(t, EmergencyMessage)
		s.alarm.Set(true)
		t.Delay(s.cooldown)
		s.write(t, ResetMessage)
		s.alarm.Set(false)
	}
}

func (s *System) write(t *rtos.Task, line string) {
	if err := s.guard.WriteLine(t, line); err != nil {
		s.writeErrors.Add(1)
		s.log.Error("output write failed", "task", t.Name(), "error", err)
	}
}

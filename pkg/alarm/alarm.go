// Package alarm drives the emergency indicator.
package alarm

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Output is the alarm line. Set has no failure mode for the caller.
type Output interface {
	Set(active bool)
}

// GPIO drives a digital output pin, high when active unless ActiveLow.
type GPIO struct {
	pin       gpio.PinOut
	activeLow bool
	log       *slog.Logger
	active    atomic.Bool
}

// NewGPIO wraps pin and drives it inactive.
func NewGPIO(pin gpio.PinOut, activeLow bool, logger *slog.Logger) *GPIO {
	if logger == nil {
		logger = slog.Default()
	}
	a := &GPIO{pin: pin, activeLow: activeLow, log: logger.With("component", "alarm", "pin", pin.Name())}
	a.Set(false)
	return a
}

// Open looks up a pin by name in the periph registry. host.Init must have
// run first.
func Open(name string, activeLow bool, logger *slog.Logger) (*GPIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("alarm pin %q not found", name)
	}
	return NewGPIO(p, activeLow, logger), nil
}

func (a *GPIO) Set(active bool) {
	a.active.Store(active)
	level := gpio.Level(active != a.activeLow)
	if err := a.pin.Out(level); err != nil {
		a.log.Error("failed to drive alarm pin", "active", active, "error", err)
	}
}

func (a *GPIO) Active() bool { return a.active.Load() }

// Log is an alarm for hosts without an indicator pin.
type Log struct {
	log    *slog.Logger
	active atomic.Bool
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "alarm")}
}

func (a *Log) Set(active bool) {
	if a.active.Swap(active) == active {
		return
	}
	if active {
		a.log.Warn("alarm on")
	} else {
		a.log.Info("alarm off")
	}
}

func (a *Log) Active() bool { return a.active.Load() }

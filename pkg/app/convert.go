package app

import (
	"fmt"

	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/sensor"
)

// Scale converts raw samples linearly: raw / MaxRaw * ReferenceVolts.
type Scale struct {
	MaxRaw         float64
	ReferenceVolts float64
}

func NewScale(c config.ConversionConfig) Scale {
	return Scale{MaxRaw: c.MaxRaw, ReferenceVolts: c.ReferenceVolts}
}

func (s Scale) Volts(r sensor.Reading) float64 {
	return float64(r) / s.MaxRaw * s.ReferenceVolts
}

func FormatVoltage(v float64) string {
	return fmt.Sprintf("Voltage: %.2f V", v)
}

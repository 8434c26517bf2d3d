package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/ads1115-estop/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ADS1115Sensor reads one single-ended channel of an ADS1115 in
// single-shot mode.
type ADS1115Sensor struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channel    int
	sampleRate int
}

func NewADS1115Sensor(cfg config.SensorConfig) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	s, err := newADS1115(bus, uint16(cfg.I2CAddress), cfg.Channel, cfg.SampleRate)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return s, nil
}

func newADS1115(bus i2c.BusCloser, addr uint16, channel, sampleRate int) (*ADS1115Sensor, error) {
	if _, err := muxBits(channel); err != nil {
		return nil, err
	}
	return &ADS1115Sensor{
		dev:        &i2c.Dev{Addr: addr, Bus: bus},
		bus:        bus,
		channel:    channel,
		sampleRate: sampleRate,
	}, nil
}

func (s *ADS1115Sensor) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115Sensor) Read() (Reading, error) {
	msb, lsb, err := s.configForChannel(s.channel, s.sampleRate)
	if err != nil {
		return 0, err
	}
	// write config, which also starts the conversion
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(conversionDelay(s.sampleRate))
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return Reading(raw), nil
}

func (s *ADS1115Sensor) configForChannel(channel, sampleRate int) (byte, byte, error) {
	mux, err := muxBits(channel)
	if err != nil {
		return 0, 0, err
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dataRateBits(sampleRate)) << 5
	// comparator default: disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}

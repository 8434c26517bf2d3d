package serial

import (
	"fmt"
	"io"

	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/output"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// SerialOutput writes CRLF-terminated lines to a serial port.
type SerialOutput struct {
	port io.WriteCloser
	name string
}

func NewSerial(cfg config.SerialConfig) (output.Sink, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return &SerialOutput{port: port, name: cfg.Port}, nil
}

func (s *SerialOutput) WriteLine(line string) error {
	if _, err := io.WriteString(s.port, line+"\r\n"); err != nil {
		return fmt.Errorf("serial %s: %w", s.name, err)
	}
	return nil
}

func (s *SerialOutput) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

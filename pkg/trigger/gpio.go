package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// pollInterval bounds how long Run takes to notice cancellation.
const pollInterval = 100 * time.Millisecond

// GPIO watches a button input for falling edges.
type GPIO struct {
	pin gpio.PinIn
}

// NewGPIO configures pin as an input with the given pull and falling-edge
// detection.
func NewGPIO(pin gpio.PinIn, pull gpio.Pull) (*GPIO, error) {
	if err := pin.In(pull, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure button %s: %w", pin.Name(), err)
	}
	return &GPIO{pin: pin}, nil
}

func OpenGPIO(name string, pull gpio.Pull) (*GPIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("button pin %q not found", name)
	}
	return NewGPIO(p, pull)
}

func (g *GPIO) Run(ctx context.Context, isr Handler) error {
	for ctx.Err() == nil {
		if !g.pin.WaitForEdge(pollInterval) {
			continue
		}
		// bounce back to high before we looked
		if g.pin.Read() != gpio.Low {
			continue
		}
		isr()
	}
	return nil
}

func ParsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "", "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	case "float", "none":
		return gpio.Float, nil
	}
	return gpio.PullNoChange, fmt.Errorf("invalid pull %q", s)
}

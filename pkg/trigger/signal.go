package trigger

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Signal turns OS signals into interrupts. Delivery is registered at
// construction so a signal is never handled by the default action once
// NewSignal returned.
type Signal struct {
	ch chan os.Signal
}

func NewSignal(sigs ...os.Signal) *Signal {
	s := &Signal{ch: make(chan os.Signal, 1)}
	signal.Notify(s.ch, sigs...)
	return s
}

func (s *Signal) Run(ctx context.Context, isr Handler) error {
	defer signal.Stop(s.ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ch:
			isr()
		}
	}
}

var signalNames = map[string]os.Signal{
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGHUP":  syscall.SIGHUP,
}

// ParseSignal maps a name such as "SIGUSR1" or "usr1" to a signal.
func ParseSignal(name string) (os.Signal, error) {
	n := strings.ToUpper(name)
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	if s, ok := signalNames[n]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unsupported signal %q", name)
}

// Package trigger connects emergency stop sources to an interrupt handler.
//
// A Handler runs in interrupt context: it must return quickly, never block
// and never write to the output sink.
package trigger

import "context"

type Handler func()

// Source delivers interrupts to isr until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, isr Handler) error
}

package sensor

import "errors"

// Reading is one raw ADC sample. It carries no identity beyond its value.
type Reading int32

// Source is a synchronous, bounded-latency sample source.
type Source interface {
	Read() (Reading, error)
	Close() error
}

// ErrExhausted is returned by a Sequence that has replayed every value.
var ErrExhausted = errors.New("sensor: no more readings")

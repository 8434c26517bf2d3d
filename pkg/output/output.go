package output

import "errors"

// Sink is the shared line-oriented output. Callers serialize access through
// a Guard; implementations need not be safe for concurrent use.
type Sink interface {
	WriteLine(line string) error
	Close() error
}

// Multi fans every line out to each sink in order.
type Multi []Sink

func (m Multi) WriteLine(line string) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteLine(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

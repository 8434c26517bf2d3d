package console

import (
	"fmt"
	"io"
	"os"

	"github.com/ericogr/ads1115-estop/pkg/output"
)

// ConsoleOutput writes lines to a writer, standard output by default.
type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Sink { return &ConsoleOutput{} }

func NewConsoleWriter(w io.Writer) output.Sink { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) WriteLine(line string) error {
	w := c.w
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

package cli

import (
	"fmt"
	"io"
)

// IO bundles a command's streams and collects warnings. Warnings do not
// abort a command, but any warning turns the final exit code nonzero so
// scripts notice partial results.
type IO struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	warned int
}

// NewIO creates an IO over the given streams.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// In returns the input stream.
func (o *IO) In() io.Reader { return o.in }

// Out returns the raw output stream, for commands that emit binary data.
func (o *IO) Out() io.Writer { return o.out }

// Println writes a line to stdout.
func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes a line to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Warn reports a non-fatal problem to stderr and marks the run as
// warned, which [IO.Finish] turns into exit code 1.
func (o *IO) Warn(format string, a ...any) {
	o.warned++
	_, _ = fmt.Fprintf(o.errOut, "warning: "+format+"\n", a...)
}

// Finish returns the exit code the warnings call for: 1 if any were
// issued, 0 otherwise.
func (o *IO) Finish() int {
	if o.warned > 0 {
		return 1
	}

	return 0
}

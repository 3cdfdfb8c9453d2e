package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one ismb subcommand. Help output is generated from the same
// fields the dispatcher uses, so the usage listing cannot drift from the
// commands that actually exist.
type Command struct {
	// Flags holds the command's flag definitions. The FlagSet's own name
	// is unused; identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the command line shown after "ismb" in help output, e.g.
	// "info <name> [flags]". The first word is the command name.
	Usage string

	// Short is the one-line description for the global command listing.
	Short string

	// Long is the description for "ismb <cmd> --help". Falls back to
	// Short when empty.
	Long string

	// Exec runs the command with the positional arguments left after
	// flag parsing. The context is canceled when the process is asked
	// to stop.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command's name, the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the one-line entry for the global usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-24s %s", c.Usage, c.Short)
}

// PrintHelp writes the full help for "ismb <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: ismb", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		var defs strings.Builder

		c.Flags.SetOutput(&defs)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", defs.String())
	}
}

// Run parses the command's flags and executes it, printing errors itself
// so every command reports failures the same way. Returns the exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // pflag's own messages are replaced by PrintHelp

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}

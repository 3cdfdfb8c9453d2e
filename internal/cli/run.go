package cli

import (
	"context"
	"errors"
	"io"
	"os"

	flag "github.com/spf13/pflag"
)

// Run is the ismb entry point. The streams, the argument vector (args[0]
// is the program name), the environment, and the signal channel all come
// from main, so tests drive the whole binary hermetically. Returns the
// process exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(in, out, errOut)

	global := flag.NewFlagSet("ismb", flag.ContinueOnError)
	global.SetInterspersed(false) // the first bare word is the command
	global.SetOutput(io.Discard)
	workDir := global.StringP("cwd", "C", "", "Run as if started in this directory")
	configPath := global.StringP("config", "c", "", "Use this config file instead of discovery")
	prefix := global.String("prefix", "", "Override the configured name prefix")

	var rest []string

	if len(args) > 1 {
		if err := global.Parse(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				printUsage(o)
				return 0
			}

			o.ErrPrintln("error:", err)

			return 1
		}

		rest = global.Args()
	}

	if len(rest) == 0 || rest[0] == "help" {
		printUsage(o)
		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDir:        *workDir,
		ConfigPath:     *configPath,
		PrefixOverride: *prefix,
		PrefixSet:      global.Changed("prefix"),
		Env:            env,
	})
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	ctx, stop := signalContext(sigCh)
	defer stop()

	name := rest[0]

	for _, cmd := range commands(&cfg, env) {
		if cmd.Name() != name {
			continue
		}

		if code := cmd.Run(ctx, o, rest[1:]); code != 0 {
			return code
		}

		return o.Finish()
	}

	o.ErrPrintln("error: unknown command:", name)

	return 1
}

// commands builds the command registry. Each call constructs fresh flag
// sets, so one Run cannot leak parsed state into the next.
func commands(cfg *Config, env map[string]string) []*Command {
	return []*Command{
		CreateCmd(cfg),
		InfoCmd(cfg),
		LsCmd(cfg),
		StatCmd(cfg),
		DumpCmd(cfg),
		LoadCmd(cfg),
		ShellCmd(cfg, env),
		PrintConfigCmd(cfg),
	}
}

// signalContext returns a context canceled by the first delivery on
// sigCh. A nil channel yields a context that only the returned stop
// function cancels.
func signalContext(sigCh <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if sigCh == nil {
		return ctx, cancel
	}

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func printUsage(o *IO) {
	o.Println(`ismb - named shared-memory segments

Usage: ismb [options] <command> [args]

Options:
  -C, --cwd <dir>       Run as if started in <dir>
  -c, --config <file>   Use this config file instead of discovery
      --prefix <p>      Override the configured name prefix

Commands:`)

	for _, cmd := range commands(&Config{}, nil) {
		o.Println(cmd.HelpLine())
	}
}

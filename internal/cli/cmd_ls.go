package cli

import (
	"context"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// LsCmd returns the ls command.
func LsCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.Bool("long", false, "Show sizes and refcounts")
	fs.String("prefix", "", "Filter by name prefix (default: the configured name_prefix)")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List published segments",
		Long: `List the published segments in the host namespace, sorted by name.
Objects that do not carry a published header (foreign files, half-born
segments) are not shown.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLs(o, cfg, fs, args)
		},
	}
}

func execLs(o *IO, cfg *Config, fs *flag.FlagSet, args []string) error {
	if len(args) != 0 {
		return errTrailingArgs("ls", args)
	}

	prefix := cfg.NamePrefix
	if fs.Changed("prefix") {
		prefix, _ = fs.GetString("prefix")
	}

	names, err := ismblob.List()
	if err != nil {
		return err
	}

	long, _ := fs.GetBool("long")

	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		if !long {
			o.Println(name)
			continue
		}

		info, err := ismblob.Stat(name)
		if err != nil {
			// The segment can die between List and Stat.
			o.Warn("%s: %v", name, err)
			continue
		}

		o.Printf("%-32s meta=%-7d data=%-12d total=%-12d rc=%d\n",
			info.Name, info.MetadataLen, info.DataLen, info.Size, info.Refcount)
	}

	return nil
}

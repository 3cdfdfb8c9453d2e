package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// CreateCmd returns the create command.
func CreateCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.String("size", "0", "Data region size in bytes, with optional K/M/G suffix")
	fs.String("meta", "", "Metadata string to embed")
	fs.String("meta-file", "", "File whose contents become the metadata")
	fs.String("mode", "", "Octal file mode (default from config)")

	return &Command{
		Flags: fs,
		Usage: "create [name] [flags]",
		Short: "Create a segment and hold it until interrupted",
		Long: `Create a named segment and keep holding the creating reference until the
process is interrupted, then release it. Releasing the last reference
destroys the segment, so create stays in the foreground while consumers
attach. Without a name, one is generated as ismb-<uuid>.

The segment name goes to stdout; progress goes to stderr.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execCreate(ctx, o, cfg, fs, args)
		},
	}
}

func execCreate(ctx context.Context, o *IO, cfg *Config, fs *flag.FlagSet, args []string) error {
	if len(args) > 1 {
		return errors.New("create takes at most one name")
	}

	name := "ismb-" + uuid.NewString()
	if len(args) == 1 {
		name = args[0]
	}

	name = cfg.resolveName(name)

	sizeArg, _ := fs.GetString("size")

	size, err := parseSize(sizeArg)
	if err != nil {
		return fmt.Errorf("--size: %w", err)
	}

	meta, err := metadataFromFlags(fs)
	if err != nil {
		return err
	}

	mode := cfg.defaultMode()

	if fs.Changed("mode") {
		modeArg, _ := fs.GetString("mode")

		mode, err = parseMode(modeArg)
		if err != nil {
			return fmt.Errorf("--mode: %w", err)
		}
	}

	h, err := ismblob.Create(name, ismblob.CreateOptions{
		DataLen:  size,
		Metadata: meta,
		Perm:     mode,
	})
	if err != nil {
		return err
	}

	o.Println(h.Name())
	o.ErrPrintln("holding", h.Name(), "- interrupt to release")

	<-ctx.Done()

	return h.Close()
}

// metadataFromFlags resolves --meta / --meta-file, which are mutually
// exclusive.
func metadataFromFlags(fs *flag.FlagSet) ([]byte, error) {
	metaArg, _ := fs.GetString("meta")
	fileArg, _ := fs.GetString("meta-file")

	switch {
	case metaArg != "" && fileArg != "":
		return nil, errors.New("--meta and --meta-file cannot be used together")
	case fileArg != "":
		meta, err := os.ReadFile(fileArg)
		if err != nil {
			return nil, fmt.Errorf("--meta-file: %w", err)
		}

		return meta, nil
	case metaArg != "":
		return []byte(metaArg), nil
	default:
		return nil, nil
	}
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// LoadCmd returns the load command.
func LoadCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.Bool("zstd", false, "Treat the input as zstd-compressed (implied by a .zst suffix)")

	return &Command{
		Flags: fs,
		Usage: "load <name> <file|->",
		Short: "Copy bytes into a segment's data region",
		Long: `Copy a file (or stdin, with "-") into the segment's data region. The
input must fit; a shorter input leaves the remainder of the region
untouched. Inputs ending in .zst are decompressed first.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLoad(o, cfg, fs, args)
		},
	}
}

func execLoad(o *IO, cfg *Config, fs *flag.FlagSet, args []string) error {
	if len(args) != 2 {
		return errors.New("load takes a name and a file (or - for stdin)")
	}

	name := cfg.resolveName(args[0])
	src := args[1]

	raw, err := readInput(o, src)
	if err != nil {
		return err
	}

	compressed, _ := fs.GetBool("zstd")
	if compressed || strings.HasSuffix(src, ".zst") {
		raw, err = decompressZstd(raw)
		if err != nil {
			return err
		}
	}

	h, err := ismblob.Open(name)
	if err != nil {
		return err
	}

	data := h.Data()
	if len(raw) > len(data) {
		_ = h.Close()
		return fmt.Errorf("input is %d bytes, data region holds %d", len(raw), len(data))
	}

	n := copy(data, raw)

	o.Printf("loaded %d bytes into %s\n", n, name)

	return h.Close()
}

func readInput(o *IO, src string) ([]byte, error) {
	if src == "-" {
		raw, err := io.ReadAll(o.In())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return raw, nil
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}

	return raw, nil
}

func decompressZstd(raw []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	return out, nil
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// DumpCmd returns the dump command.
func DumpCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.String("out", "", "Write to this file instead of stdout (atomic rename)")
	fs.Bool("zstd", false, "Compress with zstd (implied by a .zst --out suffix)")

	return &Command{
		Flags: fs,
		Usage: "dump <name> [flags]",
		Short: "Copy a segment's data region out",
		Long: `Copy the segment's data region to stdout or, with --out, to a file
written atomically (the target never holds a partial dump). A snapshot
is taken while attached; writers racing the dump may still interleave
within it.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDump(o, cfg, fs, args)
		},
	}
}

func execDump(o *IO, cfg *Config, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errors.New("dump takes exactly one name")
	}

	name := cfg.resolveName(args[0])
	outPath, _ := fs.GetString("out")
	compress, _ := fs.GetBool("zstd")
	compress = compress || strings.HasSuffix(outPath, ".zst")

	h, err := ismblob.Open(name)
	if err != nil {
		return err
	}

	payload := h.Data()

	if compress {
		payload, err = compressZstd(payload)
		if err != nil {
			_ = h.Close()
			return err
		}
	}

	if outPath == "" {
		if _, err := o.Out().Write(payload); err != nil {
			_ = h.Close()
			return fmt.Errorf("write stdout: %w", err)
		}

		return h.Close()
	}

	if err := atomic.WriteFile(outPath, bytes.NewReader(payload)); err != nil {
		_ = h.Close()
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	o.Printf("wrote %d bytes to %s\n", len(payload), outPath)

	return h.Close()
}

// compressZstd compresses a snapshot of the data region in memory; the
// segment being dumped already fits in RAM.
func compressZstd(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	return buf.Bytes(), nil
}

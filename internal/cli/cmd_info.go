package cli

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
	"github.com/ismkit/ismblob/pkg/ndview"
)

// InfoCmd returns the info command.
func InfoCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.Duration("wait", 0, "Keep retrying for up to this long until the name appears")

	return &Command{
		Flags: fs,
		Usage: "info <name> [flags]",
		Short: "Show a segment's layout, refcount, and metadata",
		Long: `Show a segment's sizes, its current shared refcount, and a preview of
its metadata. With --wait, info retries with exponential backoff until
the name appears or the budget runs out, which lets scripts block on a
producer that is still starting up.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execInfo(ctx, o, cfg, fs, args)
		},
	}
}

func execInfo(ctx context.Context, o *IO, cfg *Config, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errors.New("info takes exactly one name")
	}

	name := cfg.resolveName(args[0])
	wait, _ := fs.GetDuration("wait")

	info, err := statWait(ctx, name, wait)
	if err != nil {
		return err
	}

	o.Printf("name:      %s\n", info.Name)
	o.Printf("metadata:  %d bytes\n", info.MetadataLen)
	o.Printf("data:      %d bytes\n", info.DataLen)
	o.Printf("total:     %d bytes\n", info.Size)
	o.Printf("refcount:  %d\n", info.Refcount)

	if info.MetadataLen == 0 {
		return nil
	}

	// Attaching briefly is the only way to read the metadata bytes; the
	// refcount dip is invisible to other holders.
	h, err := ismblob.Open(name)
	if err != nil {
		o.Warn("%s: metadata unreadable: %v", name, err)
		return nil
	}

	printMetadata(o, h.Metadata())

	return h.Close()
}

// statWait stats the name, retrying ErrNotFound with exponential backoff
// for up to wait. Any other failure aborts immediately.
func statWait(ctx context.Context, name string, wait time.Duration) (ismblob.Info, error) {
	if wait <= 0 {
		return ismblob.Stat(name)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = wait

	var info ismblob.Info

	err := backoff.Retry(func() error {
		var statErr error

		info, statErr = ismblob.Stat(name)
		if statErr == nil {
			return nil
		}

		if errors.Is(statErr, ismblob.ErrNotFound) {
			return statErr
		}

		return backoff.Permanent(statErr)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return ismblob.Info{}, err
	}

	return info, nil
}

// printMetadata shows the metadata in the most useful form available: a
// decoded array descr, a quoted string when printable, or a hex prefix.
func printMetadata(o *IO, meta []byte) {
	if d, err := ndview.DecodeDescr(meta); err == nil {
		o.Printf("array:     %s %v order %s\n", d.DType, d.Shape, d.Order)
		return
	}

	const previewLen = 64

	preview := meta
	truncated := ""

	if len(preview) > previewLen {
		preview, truncated = preview[:previewLen], fmt.Sprintf(" (+%d bytes)", len(meta)-previewLen)
	}

	if isPrintable(preview) {
		o.Printf("preview:   %q%s\n", preview, truncated)
		return
	}

	o.Printf("preview:   % x%s\n", preview, truncated)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII || (!unicode.IsPrint(rune(c)) && c != '\n' && c != '\t') {
			return false
		}
	}

	return true
}

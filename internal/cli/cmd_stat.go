package cli

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// shmMount is where Linux mounts the POSIX shared-memory tmpfs.
const shmMount = "/dev/shm"

// StatCmd returns the stat command.
func StatCmd(cfg *Config) *Command {
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "stat",
		Short: "Show shared-memory capacity and segment totals",
		Long: `Show how much of the host's shared-memory filesystem the published
segments occupy, next to the filesystem's capacity and the host's
memory. The tmpfs behind /dev/shm is sized from RAM, so both limits
matter when planning segment sizes.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execStat(o, cfg, args)
		},
	}
}

func execStat(o *IO, cfg *Config, args []string) error {
	if len(args) != 0 {
		return errTrailingArgs("stat", args)
	}

	names, err := ismblob.List()
	if err != nil {
		return err
	}

	var (
		counted  int
		segBytes int64
	)

	for _, name := range names {
		info, err := ismblob.Stat(name)
		if err != nil {
			o.Warn("%s: %v", name, err)
			continue
		}

		counted++
		segBytes += info.Size
	}

	o.Printf("segments:   %d published, %s mapped\n", counted, formatBytes(segBytes))

	if usage, err := disk.Usage(shmMount); err != nil {
		o.Warn("%s: %v", shmMount, err)
	} else {
		o.Printf("shm:        %s used of %s (%.1f%%), %s free\n",
			formatBytes(int64(usage.Used)), formatBytes(int64(usage.Total)),
			usage.UsedPercent, formatBytes(int64(usage.Free)))
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		o.Warn("host memory: %v", err)
	} else {
		o.Printf("memory:     %s used of %s (%.1f%%), %s available\n",
			formatBytes(int64(vm.Used)), formatBytes(int64(vm.Total)),
			vm.UsedPercent, formatBytes(int64(vm.Available)))
	}

	return nil
}

// formatBytes renders a byte count with a binary-multiple suffix.
func formatBytes(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

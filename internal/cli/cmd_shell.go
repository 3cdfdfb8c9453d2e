package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/ismkit/ismblob/pkg/ismblob"
	"github.com/ismkit/ismblob/pkg/ndview"
)

// ShellCmd returns the shell command.
func ShellCmd(cfg *Config, env map[string]string) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "shell <name>",
		Short: "Inspect and edit a segment interactively",
		Long: `Attach to a segment and hold it while reading and writing its bytes
from an interactive prompt. Line history persists in ~/.ismb_history.
Type "help" at the prompt for the shell commands.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execShell(o, cfg, env, args)
		},
	}
}

func execShell(o *IO, cfg *Config, env map[string]string, args []string) error {
	if len(args) != 1 {
		return errors.New("shell takes exactly one name")
	}

	name := cfg.resolveName(args[0])

	h, err := ismblob.Open(name)
	if err != nil {
		return err
	}

	o.ErrPrintln("attached to", h.Name(), "- \"help\" lists commands, \"exit\" detaches")

	if o.In() == os.Stdin && liner.TerminalSupported() {
		interactiveLoop(o, h, env)
	} else {
		scriptedLoop(o, h)
	}

	return h.Close()
}

// interactiveLoop runs the prompt on the controlling terminal with line
// editing and persistent history.
func interactiveLoop(o *IO, h *ismblob.Handle, env map[string]string) {
	rl := liner.NewLiner()
	defer rl.Close()

	rl.SetCtrlCAborts(true)

	histPath := historyPath(env)
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			_, _ = rl.ReadHistory(f)
			_ = f.Close()
		}
	}

	for {
		line, err := rl.Prompt("ismb> ")
		if err != nil {
			// Ctrl-C and Ctrl-D both end the session.
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		rl.AppendHistory(line)

		quit, lineErr := shellLine(o, h, line)
		if lineErr != nil {
			o.ErrPrintln("error:", lineErr)
		}

		if quit {
			break
		}
	}

	if histPath != "" {
		if f, err := os.Create(histPath); err == nil {
			_, _ = rl.WriteHistory(f)
			_ = f.Close()
		}
	}
}

// scriptedLoop reads commands line by line from the input stream, for
// piped use and tests.
func scriptedLoop(o *IO, h *ismblob.Handle) {
	sc := bufio.NewScanner(o.In())

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		quit, err := shellLine(o, h, line)
		if err != nil {
			o.ErrPrintln("error:", err)
		}

		if quit {
			break
		}
	}
}

func historyPath(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".ismb_history")
	}

	return ""
}

// shellLine executes one shell command against the held handle. The
// returned quit flag ends the session.
func shellLine(o *IO, h *ismblob.Handle, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return true, nil

	case "help":
		shellHelp(o)

	case "info":
		cnt, err := h.SharedRefcount()
		if err != nil {
			return false, err
		}

		o.Printf("name %s, metadata %d bytes, data %d bytes, total %d bytes, refcount %d\n",
			h.Name(), len(h.Metadata()), len(h.Data()), h.Size(), cnt)

	case "rc":
		cnt, err := h.SharedRefcount()
		if err != nil {
			return false, err
		}

		o.Println(cnt)

	case "meta":
		if len(h.Metadata()) == 0 {
			o.Println("no metadata")
			break
		}

		printMetadata(o, h.Metadata())

	case "view":
		d, err := ndview.DecodeDescr(h.Metadata())
		if err != nil {
			return false, err
		}

		o.Printf("%s %v order %s, %d elements of %d bytes, strides %v\n",
			d.DType, d.Shape, d.Order, d.Elements(), d.ItemSize(), d.Strides())

	case "peek":
		return false, shellPeek(o, h.Data(), rest)

	case "poke":
		return false, shellPoke(o, h.Data(), rest)

	case "fill":
		if len(rest) != 1 {
			return false, errors.New("usage: fill <byte>")
		}

		val, err := parseByteValue(rest[0])
		if err != nil {
			return false, err
		}

		data := h.Data()
		for i := range data {
			data[i] = val
		}

		o.Printf("filled %d bytes with %#02x\n", len(data), val)

	case "dump":
		if len(rest) != 1 {
			return false, errors.New("usage: dump <file>")
		}

		if err := atomic.WriteFile(rest[0], bytes.NewReader(h.Data())); err != nil {
			return false, fmt.Errorf("write %s: %w", rest[0], err)
		}

		o.Printf("wrote %d bytes to %s\n", len(h.Data()), rest[0])

	case "bench":
		return false, shellBench(o, h.Data(), rest)

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}

	return false, nil
}

func shellHelp(o *IO) {
	o.Println(`  info                 segment layout and refcount
  rc                   shared refcount
  meta                 metadata preview
  view                 decode metadata as an array descr
  peek <off> [len]     hex dump of data bytes [default len: 64]
  poke <off> <b>...    write bytes (decimal or 0x..) at offset
  fill <b>             fill the whole data region with one byte
  dump <file>          write the data region to a file
  bench [passes]       sweep the region and report throughput
  exit                 detach and leave`)
}

func shellPeek(o *IO, data []byte, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: peek <off> [len]")
	}

	off, err := parseRegionOffset(args[0], len(data))
	if err != nil {
		return err
	}

	n := 64

	if len(args) == 2 {
		n, err = strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad length %q", args[1])
		}
	}

	end := off + n
	if end > len(data) {
		end = len(data)
	}

	o.Printf("%s", hex.Dump(data[off:end]))

	return nil
}

func shellPoke(o *IO, data []byte, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: poke <off> <byte>...")
	}

	off, err := parseRegionOffset(args[0], len(data))
	if err != nil {
		return err
	}

	vals := args[1:]
	if off+len(vals) > len(data) {
		return fmt.Errorf("%d bytes at offset %d spill past the %d-byte data region",
			len(vals), off, len(data))
	}

	for i, arg := range vals {
		val, err := parseByteValue(arg)
		if err != nil {
			return err
		}

		data[off+i] = val
	}

	o.Printf("wrote %d bytes at offset %d\n", len(vals), off)

	return nil
}

func shellBench(o *IO, data []byte, args []string) error {
	if len(data) == 0 {
		return errors.New("data region is empty")
	}

	passes := 8

	if len(args) == 1 {
		var err error

		passes, err = strconv.Atoi(args[0])
		if err != nil || passes <= 0 {
			return fmt.Errorf("bad pass count %q", args[0])
		}
	}

	start := time.Now()

	var sum byte

	for pass := 0; pass < passes; pass++ {
		for i := range data {
			data[i] = byte(i + pass)
		}

		for _, b := range data {
			sum += b
		}
	}

	elapsed := time.Since(start)
	moved := float64(2*passes*len(data)) / (1 << 20)

	o.Printf("%d passes over %d bytes in %v (%.1f MiB/s, checksum %d)\n",
		passes, len(data), elapsed.Round(time.Millisecond), moved/elapsed.Seconds(), sum)

	return nil
}

func parseRegionOffset(s string, size int) (int, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad offset %q", s)
	}

	if n >= int64(size) {
		return 0, fmt.Errorf("offset %d beyond the %d-byte data region", n, size)
	}

	return int(n), nil
}

func parseByteValue(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte %q", s)
	}

	return byte(v), nil
}

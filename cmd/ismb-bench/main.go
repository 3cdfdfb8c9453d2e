// Package main provides ismb-bench, a contention stress tool for named
// shared-memory segments.
//
// It creates a set of segments, hammers them with concurrent
// attach/verify/detach cycles, and then checks that releasing the
// creating handles destroys every segment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// Config holds all benchmark configuration.
type Config struct {
	Segments int
	Workers  int
	Ops      int
	Size     int
}

func main() {
	cfg := Config{}

	flag.IntVar(&cfg.Segments, "segments", 8, "Number of segments to create")
	flag.IntVar(&cfg.Workers, "workers", 4*runtime.NumCPU(), "Concurrent attachers")
	flag.IntVar(&cfg.Ops, "ops", 2000, "Attach/verify/detach cycles per segment")
	flag.IntVar(&cfg.Size, "size", 4096, "Data region size per segment in bytes")
	flag.Parse()

	err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	if cfg.Segments <= 0 || cfg.Workers <= 0 || cfg.Ops <= 0 || cfg.Size <= 0 {
		return errors.New("segments, workers, ops, and size must all be positive")
	}

	// The creating handles keep every segment alive for the whole run.
	creators := make([]*ismblob.Handle, 0, cfg.Segments)
	names := make([]string, 0, cfg.Segments)

	defer func() {
		for _, h := range creators {
			_ = h.Close()
		}
	}()

	for i := range cfg.Segments {
		name := "ismb-bench-" + uuid.NewString()

		h, err := ismblob.Create(name, ismblob.CreateOptions{
			DataLen:  cfg.Size,
			Metadata: fmt.Appendf(nil, "bench segment %d", i),
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}

		seed(h.Data(), byte(i))

		creators = append(creators, h)
		names = append(names, name)
	}

	fmt.Printf("%d segments x %d bytes, %d workers, %d cycles per segment\n",
		cfg.Segments, cfg.Size, cfg.Workers, cfg.Ops)

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64

		mu       sync.Mutex
		firstErr error
	)

	start := time.Now()

	for i := range names {
		name, pattern := names[i], byte(i)

		for range cfg.Ops {
			wg.Add(1)

			submitErr := pool.Submit(func() {
				defer wg.Done()

				attachErr := attachOnce(name, pattern, cfg.Size)
				if attachErr != nil {
					failures.Add(1)

					mu.Lock()
					if firstErr == nil {
						firstErr = attachErr
					}
					mu.Unlock()
				}
			})
			if submitErr != nil {
				wg.Done()
				return fmt.Errorf("submit: %w", submitErr)
			}
		}
	}

	wg.Wait()

	elapsed := time.Since(start)
	total := cfg.Segments * cfg.Ops

	fmt.Printf("%d attach/verify/detach cycles in %v (%.0f ops/s)\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())

	// Releasing the creators must destroy every segment; the namespace
	// comes back empty.
	for _, h := range creators {
		closeErr := h.Close()
		if closeErr != nil {
			return fmt.Errorf("close creator: %w", closeErr)
		}
	}

	creators = nil

	for _, name := range names {
		_, statErr := ismblob.Stat(name)
		if !errors.Is(statErr, ismblob.ErrNotFound) {
			return fmt.Errorf("%s survived the last release (stat err: %v)", name, statErr)
		}
	}

	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d cycles failed, first: %w", n, total, firstErr)
	}

	fmt.Println("all segments destroyed on last release")

	return nil
}

// attachOnce opens the segment, checks the seeded pattern, rewrites it,
// and detaches. Concurrent attachers write identical bytes, so the
// pattern holds no matter how the cycles interleave.
func attachOnce(name string, pattern byte, size int) error {
	h, err := ismblob.Open(name)
	if err != nil {
		return err
	}

	data := h.Data()
	if len(data) != size {
		_ = h.Close()
		return fmt.Errorf("%s: data region is %d bytes, want %d", name, len(data), size)
	}

	for i, b := range data {
		if want := byte(i) + pattern; b != want {
			_ = h.Close()
			return fmt.Errorf("%s: byte %d is %#x, want %#x", name, i, b, want)
		}
	}

	seed(data, pattern)

	cnt, err := h.SharedRefcount()
	if err != nil {
		_ = h.Close()
		return err
	}

	// The creator is still attached next to this handle.
	if cnt < 2 {
		_ = h.Close()
		return fmt.Errorf("%s: refcount %d while the creator holds it", name, cnt)
	}

	return h.Close()
}

func seed(data []byte, pattern byte) {
	for i := range data {
		data[i] = byte(i) + pattern
	}
}

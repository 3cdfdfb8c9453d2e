package cli

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Argument parse errors.
var (
	ErrBadSize = errors.New("bad size")
	ErrBadMode = errors.New("bad mode")
)

// parseSize parses a byte count with an optional K, M, or G suffix
// (binary multiples, case-insensitive). "0" is allowed; segments may be
// metadata-only.
func parseSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadSize)
	}

	mult := int64(1)

	switch s[len(s)-1] {
	case 'k', 'K':
		mult, s = 1<<10, s[:len(s)-1]
	case 'm', 'M':
		mult, s = 1<<20, s[:len(s)-1]
	case 'g', 'G':
		mult, s = 1<<30, s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}

	if n < 0 || n > math.MaxInt64/mult {
		return 0, fmt.Errorf("%w: %q out of range", ErrBadSize, s)
	}

	total := n * mult
	if total > math.MaxInt {
		return 0, fmt.Errorf("%w: %q out of range", ErrBadSize, s)
	}

	return int(total), nil
}

// errTrailingArgs reports positional arguments a command does not take.
func errTrailingArgs(cmd string, args []string) error {
	return fmt.Errorf("%s takes no arguments, got %q", cmd, strings.Join(args, " "))
}

// parseMode parses an octal file mode such as "0640" or "600".
func parseMode(s string) (os.FileMode, error) {
	s = strings.TrimPrefix(s, "0o")

	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not octal", ErrBadMode, s)
	}

	if n > 0o777 {
		return 0, fmt.Errorf("%w: %q has bits beyond 0777", ErrBadMode, s)
	}

	return os.FileMode(n), nil
}

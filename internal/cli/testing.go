package cli

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// CLI drives [Run] in tests with captured streams and a hermetic
// environment: a temp working directory and a temp XDG config home, so
// the developer's real config files never leak in.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a test CLI rooted in a fresh temp directory.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{"XDG_CONFIG_HOME": t.TempDir()},
	}
}

// Run executes the CLI and returns stdout, stderr, and the exit code.
// Args should not include the program name or --cwd; both are added.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.run(nil, nil, args)
}

// RunWithInput executes the CLI with the given stdin.
func (r *CLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	return r.run(strings.NewReader(stdin), nil, args)
}

// RunWithSignals executes the CLI with a signal channel; a closed channel
// makes holding commands release immediately.
func (r *CLI) RunWithSignals(sigCh <-chan os.Signal, args ...string) (string, string, int) {
	return r.run(nil, sigCh, args)
}

func (r *CLI) run(stdin io.Reader, sigCh <-chan os.Signal, args []string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"ismb", "--cwd", r.Dir}, args...)
	code := Run(stdin, &outBuf, &errBuf, fullArgs, r.Env, sigCh)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test on a nonzero exit code.
// Returns trimmed stdout.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if it succeeds. Returns
// trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes a file under the CLI's working directory and returns
// its path.
func (r *CLI) WriteFile(name, content string) string {
	r.t.Helper()

	path := r.Dir + "/" + name

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		r.t.Fatalf("write %s: %v", name, err)
	}

	return path
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}

// Package shell runs external commands with a bounded timeout. The firewall
// and shaper layers build their iptables/tc/netsh invocations on top of it,
// which also lets tests swap in a fake Runner instead of touching the OS.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Runner executes external commands. Run blocks until completion (or the
// timeout); Start is fire-and-forget for callers that deliberately do not
// wait for confirmation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	Start(name string, args ...string) error
}

// Exec is the real Runner backed by os/exec.
type Exec struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Exec {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Exec{Timeout: timeout}
}

// Run executes the command and returns its combined output. A non-zero exit
// status or a launch failure is an error; the output is included so callers
// can surface tool diagnostics.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s timed out after %s", name, e.Timeout)
		}
		if output != "" {
			return output, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, output)
		}
		return output, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}

// Start launches the command without waiting for it. The exit status is
// reaped in the background and discarded; the caller is expected to treat
// the operation as optimistically complete.
func (e *Exec) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}

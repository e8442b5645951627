// Package firewall applies and removes per-process block rules by driving
// the platform firewall tool: iptables on Linux, netsh advfirewall on
// Windows. Rules are never tracked here; the caller records the returned
// undo closure in its ledger.
package firewall

import (
	"context"
	"errors"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/proc"
	"netctrl-go/pkg/shell"
)

var (
	ErrUnsupportedPlatform = errors.New("firewall: no blocker for this platform")
	ErrBadDirection        = errors.New("firewall: direction must be inbound or outbound")
)

// Blocker adds and deletes block rules for one resolved process target.
type Blocker interface {
	// Setup performs the one-time bootstrap (chain creation on Linux).
	// Idempotent.
	Setup(ctx context.Context) error

	// KeyFor returns the key and kind a rule for this target would be
	// scoped to, without side effects. Callers use it for duplicate checks
	// before invoking Block.
	KeyFor(t *proc.Target) (key, kind string, err error)

	// Block installs a drop rule for the target in the given direction and
	// returns the undo closure.
	Block(ctx context.Context, t *proc.Target, dir ledger.Direction) (ledger.UndoFunc, error)

	// Remove deletes a rule by (kind, key, direction) without a prior Block
	// in this process. Used for crash recovery of journaled rules.
	Remove(ctx context.Context, kind, key string, dir ledger.Direction) error

	// Teardown removes the bootstrap state where possible. Best-effort.
	Teardown(ctx context.Context) error
}

// Options tune the platform blocker.
type Options struct {
	// RulePrefix names Windows firewall rules (prefix_<keyhash>_out|_in).
	RulePrefix string
	// ConfirmSetup makes the Linux chain bootstrap run synchronously
	// instead of fire-and-forget.
	ConfirmSetup bool
}

// New returns the blocker for the current platform.
func New(run shell.Runner, opts Options) (Blocker, error) {
	if opts.RulePrefix == "" {
		opts.RulePrefix = "netctrl"
	}
	return newPlatform(run, opts)
}

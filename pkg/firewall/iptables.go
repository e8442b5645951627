package firewall

import (
	"context"
	"fmt"
	"strconv"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/log"
	"netctrl-go/pkg/proc"
	"netctrl-go/pkg/shell"
)

const (
	chainOut = "NETCTRL_OUT"
	chainIn  = "NETCTRL_IN"
)

// bootstrapScript creates the dedicated chains and hooks them into
// OUTPUT/INPUT, all idempotent so repeated runs are harmless.
const bootstrapScript = "(iptables -w -N " + chainOut + " 2>/dev/null; " +
	"iptables -w -N " + chainIn + " 2>/dev/null; " +
	"iptables -w -C OUTPUT -j " + chainOut + " 2>/dev/null || " +
	"iptables -w -I OUTPUT -j " + chainOut + "; " +
	"iptables -w -C INPUT -j " + chainIn + " 2>/dev/null || " +
	"iptables -w -I INPUT -j " + chainIn + ") >/dev/null 2>&1"

// iptablesBlocker drops traffic in dedicated NETCTRL_OUT/NETCTRL_IN chains,
// keyed by cgroup path for sandboxed targets and by PID owner otherwise.
type iptablesBlocker struct {
	run          shell.Runner
	confirmSetup bool
}

func newIptables(run shell.Runner, opts Options) *iptablesBlocker {
	return &iptablesBlocker{run: run, confirmSetup: opts.ConfirmSetup}
}

func chainFor(dir ledger.Direction) (string, error) {
	switch dir {
	case ledger.Outbound:
		return chainOut, nil
	case ledger.Inbound:
		return chainIn, nil
	}
	return "", ErrBadDirection
}

// Setup bootstraps the chains. By default the bootstrap is launched
// fire-and-forget, matching how interactive startup tolerates a slow
// iptables; ConfirmSetup waits for each step instead.
func (b *iptablesBlocker) Setup(ctx context.Context) error {
	if !b.confirmSetup {
		return b.run.Start("sh", "-c", bootstrapScript)
	}

	// Chain creation fails when the chain exists; that is fine.
	if _, err := b.run.Run(ctx, "iptables", "-w", "-N", chainOut); err != nil {
		log.Debug().Err(err).Msg("chain " + chainOut + " not created (may already exist)")
	}
	if _, err := b.run.Run(ctx, "iptables", "-w", "-N", chainIn); err != nil {
		log.Debug().Err(err).Msg("chain " + chainIn + " not created (may already exist)")
	}
	if _, err := b.run.Run(ctx, "iptables", "-w", "-C", "OUTPUT", "-j", chainOut); err != nil {
		if _, err := b.run.Run(ctx, "iptables", "-w", "-I", "OUTPUT", "-j", chainOut); err != nil {
			return fmt.Errorf("failed to hook %s into OUTPUT: %w", chainOut, err)
		}
	}
	if _, err := b.run.Run(ctx, "iptables", "-w", "-C", "INPUT", "-j", chainIn); err != nil {
		if _, err := b.run.Run(ctx, "iptables", "-w", "-I", "INPUT", "-j", chainIn); err != nil {
			return fmt.Errorf("failed to hook %s into INPUT: %w", chainIn, err)
		}
	}
	return nil
}

// KeyFor prefers the cgroup path: for sandboxed targets PID-owner rules do
// not match the traffic.
func (b *iptablesBlocker) KeyFor(t *proc.Target) (string, string, error) {
	if t.Cgroup != "" {
		return t.Cgroup, ledger.KindCgroup, nil
	}
	if t.PID > 0 {
		return strconv.Itoa(int(t.PID)), ledger.KindPID, nil
	}
	return "", "", fmt.Errorf("target %q has neither cgroup nor pid", t.Name)
}

func matchFor(kind, key string) ([]string, error) {
	switch kind {
	case ledger.KindCgroup:
		return []string{"-m", "cgroup", "--path", key}, nil
	case ledger.KindPID:
		return []string{"-m", "owner", "--pid-owner", key}, nil
	}
	return nil, fmt.Errorf("iptables blocker cannot remove rules of kind %q", kind)
}

func (b *iptablesBlocker) Block(ctx context.Context, t *proc.Target, dir ledger.Direction) (ledger.UndoFunc, error) {
	chain, err := chainFor(dir)
	if err != nil {
		return nil, err
	}
	key, kind, err := b.KeyFor(t)
	if err != nil {
		return nil, err
	}
	matchArgs, err := matchFor(kind, key)
	if err != nil {
		return nil, err
	}

	args := append([]string{"-w", "-A", chain}, matchArgs...)
	args = append(args, "-j", "DROP")
	if _, err := b.run.Run(ctx, "iptables", args...); err != nil {
		return nil, fmt.Errorf("iptables append failed: %w", err)
	}

	undo := func() error {
		// Undo runs during teardown; never tie it to a caller context that
		// may already be canceled.
		return b.Remove(context.Background(), kind, key, dir)
	}
	return undo, nil
}

func (b *iptablesBlocker) Remove(ctx context.Context, kind, key string, dir ledger.Direction) error {
	chain, err := chainFor(dir)
	if err != nil {
		return err
	}
	matchArgs, err := matchFor(kind, key)
	if err != nil {
		return err
	}
	args := append([]string{"-w", "-D", chain}, matchArgs...)
	args = append(args, "-j", "DROP")
	if _, err := b.run.Run(ctx, "iptables", args...); err != nil {
		return fmt.Errorf("iptables delete failed: %w", err)
	}
	return nil
}

// Teardown flushes both chains. Rules already deleted one by one make the
// flush a no-op; orphans from a crashed run get cleared here too.
func (b *iptablesBlocker) Teardown(ctx context.Context) error {
	if _, err := b.run.Run(ctx, "iptables", "-w", "-F", chainOut); err != nil {
		log.Warn().Err(err).Msg("failed to flush " + chainOut)
	}
	if _, err := b.run.Run(ctx, "iptables", "-w", "-F", chainIn); err != nil {
		log.Warn().Err(err).Msg("failed to flush " + chainIn)
	}
	return nil
}

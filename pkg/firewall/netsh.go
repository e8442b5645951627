package firewall

import (
	"context"
	"fmt"
	"hash/fnv"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/proc"
	"netctrl-go/pkg/shell"
)

// netshBlocker drives Windows Firewall through netsh advfirewall. Rules are
// scoped to the target's executable path; each rule name embeds a hash of
// that path so rules for different executables never collide, since netsh
// deletes every rule sharing a name.
type netshBlocker struct {
	run    shell.Runner
	prefix string
}

func newNetsh(run shell.Runner, opts Options) *netshBlocker {
	return &netshBlocker{run: run, prefix: opts.RulePrefix}
}

func (b *netshBlocker) ruleName(key string, dir ledger.Direction) (string, error) {
	h := fnv.New32a()
	h.Write([]byte(key))
	switch dir {
	case ledger.Outbound:
		return fmt.Sprintf("%s_%08x_out", b.prefix, h.Sum32()), nil
	case ledger.Inbound:
		return fmt.Sprintf("%s_%08x_in", b.prefix, h.Sum32()), nil
	}
	return "", ErrBadDirection
}

func dirWord(dir ledger.Direction) string {
	if dir == ledger.Inbound {
		return "in"
	}
	return "out"
}

// Setup is a no-op; Windows Firewall needs no chain bootstrap.
func (b *netshBlocker) Setup(ctx context.Context) error { return nil }

// KeyFor scopes Windows rules to the executable path.
func (b *netshBlocker) KeyFor(t *proc.Target) (string, string, error) {
	if t.Exe == "" {
		return "", "", fmt.Errorf("target %q has no resolvable executable path", t.Name)
	}
	return t.Exe, ledger.KindExe, nil
}

func (b *netshBlocker) Block(ctx context.Context, t *proc.Target, dir ledger.Direction) (ledger.UndoFunc, error) {
	exe, _, err := b.KeyFor(t)
	if err != nil {
		return nil, err
	}
	name, err := b.ruleName(exe, dir)
	if err != nil {
		return nil, err
	}

	args := []string{
		"advfirewall", "firewall", "add", "rule",
		"name=" + name,
		"dir=" + dirWord(dir),
		"action=block",
		"program=" + exe,
	}
	if _, err := b.run.Run(ctx, "netsh", args...); err != nil {
		return nil, fmt.Errorf("netsh add rule failed: %w", err)
	}

	undo := func() error {
		return b.Remove(context.Background(), ledger.KindExe, exe, dir)
	}
	return undo, nil
}

func (b *netshBlocker) Remove(ctx context.Context, kind, key string, dir ledger.Direction) error {
	if kind != ledger.KindExe {
		return fmt.Errorf("netsh blocker cannot remove rules of kind %q", kind)
	}
	name, err := b.ruleName(key, dir)
	if err != nil {
		return err
	}
	if _, err := b.run.Run(ctx, "netsh", "advfirewall", "firewall", "delete", "rule", "name="+name); err != nil {
		return fmt.Errorf("netsh delete rule failed: %w", err)
	}
	return nil
}

// Teardown is a no-op: rule names are derived per executable, so there is no
// fixed set to sweep. Per-entry undos remove live rules and `recover` handles
// journaled orphans.
func (b *netshBlocker) Teardown(ctx context.Context) error { return nil }

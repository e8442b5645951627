package firewall

import (
	"context"
	"strings"
	"testing"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/proc"
)

func TestNetshBlockByExePath(t *testing.T) {
	run := &fakeRunner{}
	b := newNetsh(run, Options{RulePrefix: "netctrl"})

	target := &proc.Target{PID: 10, Name: "RobloxPlayer.exe", Exe: `C:\Games\RobloxPlayer.exe`}
	key, kind, err := b.KeyFor(target)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	if key != target.Exe || kind != ledger.KindExe {
		t.Errorf("got key=%q kind=%q, want exe key", key, kind)
	}

	undo, err := b.Block(context.Background(), target, ledger.Outbound)
	if err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	name, err := b.ruleName(target.Exe, ledger.Outbound)
	if err != nil {
		t.Fatalf("ruleName failed: %v", err)
	}
	if !strings.HasPrefix(name, "netctrl_") || !strings.HasSuffix(name, "_out") {
		t.Errorf("rule name %q not of the form prefix_hash_out", name)
	}
	want := "netsh advfirewall firewall add rule name=" + name +
		" dir=out action=block program=" + target.Exe
	if run.cmds[0] != want {
		t.Errorf("got %q, want %q", run.cmds[0], want)
	}

	if err := undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if !strings.Contains(run.cmds[1], "delete rule name="+name) {
		t.Errorf("got undo %q, want delete by rule name %q", run.cmds[1], name)
	}
}

func TestNetshBlockNeedsExePath(t *testing.T) {
	b := newNetsh(&fakeRunner{}, Options{RulePrefix: "netctrl"})
	if _, err := b.Block(context.Background(), &proc.Target{PID: 10, Name: "x"}, ledger.Inbound); err == nil {
		t.Error("expected error when executable path is unknown")
	}
}

func TestNetshInboundRuleName(t *testing.T) {
	run := &fakeRunner{}
	b := newNetsh(run, Options{RulePrefix: "custom"})

	target := &proc.Target{PID: 10, Name: "x.exe", Exe: `C:\x.exe`}
	if _, err := b.Block(context.Background(), target, ledger.Inbound); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if !strings.Contains(run.cmds[0], "name=custom_") || !strings.Contains(run.cmds[0], "_in ") ||
		!strings.Contains(run.cmds[0], "dir=in") {
		t.Errorf("got %q, want inbound rule named custom_<hash>_in", run.cmds[0])
	}
}

// Undoing one executable's rule must never touch another's: netsh deletes by
// name, so the names have to differ even in the same direction.
func TestNetshUndoScopedPerExecutable(t *testing.T) {
	run := &fakeRunner{}
	b := newNetsh(run, Options{RulePrefix: "netctrl"})

	exeA := &proc.Target{PID: 1, Name: "a.exe", Exe: `C:\a.exe`}
	exeB := &proc.Target{PID: 2, Name: "b.exe", Exe: `C:\b.exe`}

	undoA, err := b.Block(context.Background(), exeA, ledger.Outbound)
	if err != nil {
		t.Fatalf("Block a.exe failed: %v", err)
	}
	if _, err := b.Block(context.Background(), exeB, ledger.Outbound); err != nil {
		t.Fatalf("Block b.exe failed: %v", err)
	}

	nameA, _ := b.ruleName(exeA.Exe, ledger.Outbound)
	nameB, _ := b.ruleName(exeB.Exe, ledger.Outbound)
	if nameA == nameB {
		t.Fatalf("rule names collide: %q", nameA)
	}

	if err := undoA(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	deleted := run.cmds[len(run.cmds)-1]
	if !strings.Contains(deleted, "name="+nameA) {
		t.Errorf("undo deleted %q, want rule %q", deleted, nameA)
	}
	if strings.Contains(deleted, nameB) {
		t.Errorf("undo of a.exe touched b.exe's rule: %q", deleted)
	}
}

func TestNetshTeardownRunsNoCommands(t *testing.T) {
	run := &fakeRunner{}
	b := newNetsh(run, Options{RulePrefix: "netctrl"})
	if err := b.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	if len(run.cmds) != 0 {
		t.Errorf("teardown issued commands for rules it cannot name: %v", run.cmds)
	}
}

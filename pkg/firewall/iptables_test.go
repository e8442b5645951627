package firewall

import (
	"context"
	"errors"
	"strings"
	"testing"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/proc"
)

// fakeRunner records command lines instead of executing them.
type fakeRunner struct {
	cmds    []string
	started []string
	failOn  string // substring; matching commands return an error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := name + " " + strings.Join(args, " ")
	f.cmds = append(f.cmds, line)
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return "", errors.New("exit status 1")
	}
	return "", nil
}

func (f *fakeRunner) Start(name string, args ...string) error {
	f.started = append(f.started, name+" "+strings.Join(args, " "))
	return nil
}

func TestIptablesBlockByPID(t *testing.T) {
	run := &fakeRunner{}
	b := newIptables(run, Options{})

	target := &proc.Target{PID: 4242, Name: "procA"}
	key, kind, err := b.KeyFor(target)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	if key != "4242" || kind != ledger.KindPID {
		t.Errorf("got key=%q kind=%q, want 4242/pid", key, kind)
	}

	undo, err := b.Block(context.Background(), target, ledger.Outbound)
	if err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	want := "iptables -w -A NETCTRL_OUT -m owner --pid-owner 4242 -j DROP"
	if len(run.cmds) != 1 || run.cmds[0] != want {
		t.Errorf("got %v, want [%q]", run.cmds, want)
	}

	if err := undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	wantUndo := "iptables -w -D NETCTRL_OUT -m owner --pid-owner 4242 -j DROP"
	if run.cmds[len(run.cmds)-1] != wantUndo {
		t.Errorf("got undo %q, want %q", run.cmds[len(run.cmds)-1], wantUndo)
	}
}

func TestIptablesBlockPrefersCgroup(t *testing.T) {
	run := &fakeRunner{}
	b := newIptables(run, Options{})

	cg := "/user.slice/app-flatpak-org.mozilla.firefox-77.scope"
	target := &proc.Target{PID: 77, Name: "firefox", Cgroup: cg}
	key, kind, err := b.KeyFor(target)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	if key != cg || kind != ledger.KindCgroup {
		t.Errorf("got key=%q kind=%q, want cgroup key", key, kind)
	}
	if _, err := b.Block(context.Background(), target, ledger.Inbound); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	want := "iptables -w -A NETCTRL_IN -m cgroup --path " + cg + " -j DROP"
	if run.cmds[0] != want {
		t.Errorf("got %q, want %q", run.cmds[0], want)
	}
}

func TestIptablesBlockFailureSurfaced(t *testing.T) {
	run := &fakeRunner{failOn: "-A NETCTRL_OUT"}
	b := newIptables(run, Options{})

	target := &proc.Target{PID: 1, Name: "init"}
	if _, err := b.Block(context.Background(), target, ledger.Outbound); err == nil {
		t.Fatal("expected append failure to be surfaced")
	}
}

func TestIptablesBlockRejectsBoth(t *testing.T) {
	b := newIptables(&fakeRunner{}, Options{})
	if _, err := b.Block(context.Background(), &proc.Target{PID: 1}, ledger.Both); !errors.Is(err, ErrBadDirection) {
		t.Errorf("got %v, want ErrBadDirection", err)
	}
}

func TestIptablesSetupFireAndForget(t *testing.T) {
	run := &fakeRunner{}
	b := newIptables(run, Options{})
	if err := b.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if len(run.started) != 1 || !strings.Contains(run.started[0], "sh -c") {
		t.Errorf("expected one background bootstrap, got %v", run.started)
	}
	if len(run.cmds) != 0 {
		t.Errorf("fire-and-forget setup should not run blocking commands, got %v", run.cmds)
	}
}

func TestIptablesSetupConfirmed(t *testing.T) {
	run := &fakeRunner{failOn: "-C"} // jump rules missing, must be inserted
	b := newIptables(run, Options{ConfirmSetup: true})
	if err := b.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	joined := strings.Join(run.cmds, "\n")
	for _, want := range []string{
		"iptables -w -N NETCTRL_OUT",
		"iptables -w -N NETCTRL_IN",
		"iptables -w -I OUTPUT -j NETCTRL_OUT",
		"iptables -w -I INPUT -j NETCTRL_IN",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in setup commands:\n%s", want, joined)
		}
	}
}

func TestIptablesTeardownFlushesChains(t *testing.T) {
	run := &fakeRunner{}
	b := newIptables(run, Options{})
	if err := b.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	joined := strings.Join(run.cmds, "\n")
	if !strings.Contains(joined, "-F NETCTRL_OUT") || !strings.Contains(joined, "-F NETCTRL_IN") {
		t.Errorf("expected both chains flushed, got:\n%s", joined)
	}
}

func TestIptablesRemoveUnknownKind(t *testing.T) {
	b := newIptables(&fakeRunner{}, Options{})
	if err := b.Remove(context.Background(), ledger.KindExe, "/bin/x", ledger.Outbound); err == nil {
		t.Error("expected error for exe kind on iptables")
	}
}

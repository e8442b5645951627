package ledger

import (
	"errors"
	"testing"
)

func okApply(calls *int) ApplyFunc {
	return func() (UndoFunc, error) {
		*calls++
		return func() error { return nil }, nil
	}
}

func TestApplyTwiceSameKey(t *testing.T) {
	l := New()
	calls := 0

	outcome, err := l.Apply(Outbound, "procA", "pid", okApply(&calls))
	if err != nil || outcome != Applied {
		t.Fatalf("first apply: got (%v, %v), want (Applied, nil)", outcome, err)
	}

	outcome, err = l.Apply(Outbound, "procA", "pid", okApply(&calls))
	if err != nil || outcome != AlreadyActive {
		t.Fatalf("second apply: got (%v, %v), want (AlreadyActive, nil)", outcome, err)
	}

	if calls != 1 {
		t.Errorf("applyFn invoked %d times, want 1", calls)
	}
	if l.Len() != 1 {
		t.Errorf("ledger holds %d entries, want 1", l.Len())
	}
}

func TestRevokeAllAttemptsEveryUndo(t *testing.T) {
	l := New()
	undos := 0

	// Three applies; the middle undo fails.
	for i, fail := range []bool{false, true, false} {
		fail := fail
		key := string(rune('a' + i))
		_, err := l.Apply(Outbound, key, "pid", func() (UndoFunc, error) {
			return func() error {
				undos++
				if fail {
					return errors.New("rule already removed")
				}
				return nil
			}, nil
		})
		if err != nil {
			t.Fatalf("apply %q: %v", key, err)
		}
	}

	var reported int
	count := l.RevokeAll(func(e Entry, err error) { reported++ })
	if count != 3 {
		t.Errorf("RevokeAll processed %d entries, want 3", count)
	}
	if undos != 3 {
		t.Errorf("attempted %d undos, want 3", undos)
	}
	if reported != 1 {
		t.Errorf("reported %d undo errors, want 1", reported)
	}
	if l.AnyActive() {
		t.Error("ledger not empty after RevokeAll")
	}
}

func TestRevokeAllEmpty(t *testing.T) {
	l := New()
	if count := l.RevokeAll(nil); count != 0 {
		t.Errorf("RevokeAll on empty ledger returned %d, want 0", count)
	}
}

func TestBlockScenario(t *testing.T) {
	l := New()
	calls := 0

	if outcome, _ := l.Apply(Outbound, "procA", "pid", okApply(&calls)); outcome != Applied {
		t.Fatalf("apply(outbound, procA): got %v, want Applied", outcome)
	}
	if outcome, _ := l.Apply(Outbound, "procA", "pid", okApply(&calls)); outcome != AlreadyActive {
		t.Fatalf("re-apply(outbound, procA): got %v, want AlreadyActive", outcome)
	}
	if outcome, _ := l.Apply(Inbound, "procA", "pid", okApply(&calls)); outcome != Applied {
		t.Fatalf("apply(inbound, procA): got %v, want Applied", outcome)
	}

	if !l.AnyActive() {
		t.Error("expected ledger active after two applies")
	}
	if !l.Active(Outbound) || !l.Active(Inbound) {
		t.Error("expected both directions active")
	}

	if count := l.RevokeAll(nil); count != 2 {
		t.Errorf("RevokeAll returned %d, want 2", count)
	}
	if l.AnyActive() {
		t.Error("expected ledger inactive after RevokeAll")
	}
}

func TestFailedApplyLeavesLedgerEmpty(t *testing.T) {
	l := New()

	outcome, err := l.Apply(Outbound, "missingProc", "pid", func() (UndoFunc, error) {
		return nil, errors.New("process not found")
	})
	if outcome != Failed {
		t.Errorf("got outcome %v, want Failed", outcome)
	}
	if err == nil {
		t.Error("expected apply error to be surfaced")
	}
	if l.AnyActive() {
		t.Error("failed apply must not insert an entry")
	}
	if l.Len() != 0 {
		t.Errorf("ledger holds %d entries, want 0", l.Len())
	}
}

func TestBothDirectionCountsForEither(t *testing.T) {
	l := New()
	calls := 0

	if outcome, _ := l.Apply(Both, "eth0", "iface", okApply(&calls)); outcome != Applied {
		t.Fatal("apply(both, eth0) should succeed")
	}
	if !l.Active(Outbound) || !l.Active(Inbound) {
		t.Error("interface-wide entry should count for both directions")
	}
}

func TestEntriesSnapshot(t *testing.T) {
	l := New()
	calls := 0
	l.Apply(Outbound, "/usr/bin/procA", "exe", okApply(&calls))
	l.Apply(Inbound, "/usr/bin/procA", "exe", okApply(&calls))

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Direction != Outbound || entries[1].Direction != Inbound {
		t.Error("entries not in insertion order")
	}
	if entries[0].Kind != "exe" {
		t.Errorf("got kind %q, want exe", entries[0].Kind)
	}
}

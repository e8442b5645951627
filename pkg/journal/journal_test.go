package journal

import (
	"path/filepath"
	"testing"

	"netctrl-go/pkg/ledger"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndOrphans(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record(ledger.Outbound, ledger.KindPID, "4242"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record(ledger.Both, ledger.KindIface, "eth0"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	orphans, err := j.Orphans()
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("got %d orphans, want 2", len(orphans))
	}
	if orphans[0].Direction != ledger.Outbound || orphans[0].Key != "4242" || orphans[0].Kind != ledger.KindPID {
		t.Errorf("unexpected first orphan: %+v", orphans[0])
	}
	if orphans[1].Direction != ledger.Both || orphans[1].Key != "eth0" {
		t.Errorf("unexpected second orphan: %+v", orphans[1])
	}
}

func TestForgetRemovesRow(t *testing.T) {
	j := openTestJournal(t)

	j.Record(ledger.Outbound, ledger.KindPID, "1")
	j.Record(ledger.Inbound, ledger.KindPID, "1")
	if err := j.Forget(ledger.Outbound, "1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	orphans, err := j.Orphans()
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Direction != ledger.Inbound {
		t.Errorf("got %+v, want only the inbound row", orphans)
	}
}

func TestRecordSameKeyReplaces(t *testing.T) {
	j := openTestJournal(t)

	j.Record(ledger.Outbound, ledger.KindPID, "1")
	j.Record(ledger.Outbound, ledger.KindPID, "1")

	orphans, _ := j.Orphans()
	if len(orphans) != 1 {
		t.Errorf("got %d rows for one (direction,key), want 1", len(orphans))
	}
}

func TestClear(t *testing.T) {
	j := openTestJournal(t)

	j.Record(ledger.Outbound, ledger.KindPID, "1")
	if err := j.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	orphans, _ := j.Orphans()
	if len(orphans) != 0 {
		t.Errorf("journal not empty after Clear: %+v", orphans)
	}
}

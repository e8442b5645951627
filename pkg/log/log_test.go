package log

import (
	"strings"
	"testing"
)

// Mirrors the run command's initialization order: Init then SetStd. Events
// logged afterwards must land in SQLite, not just on the console.
func TestEventsPersistAfterConsoleEcho(t *testing.T) {
	t.Setenv("NETCTRL_DIR", t.TempDir())
	if err := Init("logs-test.db"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()
	SetStd()

	Printf("restriction applied to %s", "procA")
	Info().Str("key", "4242").Msg("rule added")

	entries, err := GetLogsSinceStart()
	if err != nil {
		t.Fatalf("GetLogsSinceStart failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d persisted entries, want 2", len(entries))
	}
	if !strings.Contains(entries[0].LogData, "restriction applied to procA") {
		t.Errorf("first entry missing Printf message: %s", entries[0].LogData)
	}
	if !strings.Contains(entries[1].LogData, "rule added") || !strings.Contains(entries[1].LogData, "4242") {
		t.Errorf("second entry missing event fields: %s", entries[1].LogData)
	}

	last, err := GetLastNLogs(1)
	if err != nil {
		t.Fatalf("GetLastNLogs failed: %v", err)
	}
	if len(last) != 1 || !strings.Contains(last[0].LogData, "rule added") {
		t.Errorf("GetLastNLogs(1) = %v, want the most recent event", last)
	}
}

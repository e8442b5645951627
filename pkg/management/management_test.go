package management

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"netctrl-go/pkg/log"
)

func startTestServer(t *testing.T, password string) (*Server, string) {
	t.Helper()
	app := fmt.Sprintf("netctrl-mgmt-test-%d", os.Getpid())
	s := NewServer(app, password)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start management server: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, app
}

func TestCommandRoundtrip(t *testing.T) {
	s, app := startTestServer(t, "")

	s.RegisterHandler("block", "Block a process", func(args []string) (string, error) {
		return "OK: blocked " + strings.Join(args, " "), nil
	})

	c := NewClient(app, "")
	res, err := c.SendCommand("block firefox")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if res != "OK: blocked firefox" {
		t.Errorf("got %q", res)
	}
}

func TestPing(t *testing.T) {
	_, app := startTestServer(t, "")

	c := NewClient(app, "")
	if !c.IsServerStarted() {
		t.Error("expected ping to succeed against a running server")
	}
}

func TestUnknownCommand(t *testing.T) {
	_, app := startTestServer(t, "")

	c := NewClient(app, "")
	res, err := c.SendCommand("frobnicate")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if !strings.Contains(res, "unknown command") {
		t.Errorf("got %q, want unknown command error", res)
	}
}

func TestHandlerErrorReported(t *testing.T) {
	s, app := startTestServer(t, "")

	s.RegisterHandler("boom", "Always fails", func(args []string) (string, error) {
		return "", fmt.Errorf("process not found")
	})

	c := NewClient(app, "")
	res, err := c.SendCommand("boom")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if !strings.Contains(res, "process not found") {
		t.Errorf("got %q, want handler error in response", res)
	}
}

func TestLogsCommandReturnsRunEntries(t *testing.T) {
	t.Setenv("NETCTRL_DIR", t.TempDir())
	if err := log.Init("mgmt-logs-test.db"); err != nil {
		t.Fatalf("log.Init failed: %v", err)
	}
	defer log.Close()

	_, app := startTestServer(t, "")
	log.Printf("blocked %s", "procA")

	c := NewClient(app, "")
	res, err := c.SendCommand("logs")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if !strings.Contains(res, "blocked procA") {
		t.Errorf("logs response missing this run's entry: %q", res)
	}
}

func TestPasswordRequired(t *testing.T) {
	_, app := startTestServer(t, "sesame")

	good := NewClient(app, "sesame")
	if res, err := good.SendCommand("ping"); err != nil || res != pongString {
		t.Errorf("authenticated ping: got (%q, %v)", res, err)
	}

	bad := NewClient(app, "wrong")
	if _, err := bad.SendCommand("ping"); err == nil {
		t.Error("expected auth failure with wrong password")
	}
}

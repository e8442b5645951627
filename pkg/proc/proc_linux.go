//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// sandboxCgroup returns the cgroup path for sandboxed targets (flatpak and
// systemd app-* scopes). For such processes PID-owner firewall rules do not
// see the traffic, so restrictions are keyed by cgroup path instead.
func sandboxCgroup(pid int32) string {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return ""
	}
	return parseSandboxCgroup(scanner.Text())
}

func parseSandboxCgroup(line string) string {
	if !strings.Contains(line, "flatpak") && !strings.Contains(line, "app-") {
		return ""
	}
	pos := strings.LastIndex(line, ":")
	if pos < 0 {
		return ""
	}
	return strings.TrimSpace(line[pos+1:])
}

// Package proc resolves a process name to the identifiers restrictions are
// keyed by: PID, executable path and, on Linux, a sandbox cgroup path.
package proc

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// MatchMode selects how a configured target name is compared against
// running process names. The default is exact, matching `pgrep -x`
// semantics; substring matching is available for targets whose full name is
// awkward to type but can hit unrelated processes.
type MatchMode string

const (
	MatchExact     MatchMode = "exact"
	MatchPrefix    MatchMode = "prefix"
	MatchSubstring MatchMode = "substring"
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case MatchExact, "":
		return MatchExact, nil
	case MatchPrefix:
		return MatchPrefix, nil
	case MatchSubstring:
		return MatchSubstring, nil
	}
	return "", fmt.Errorf("unknown match mode %q (want exact, prefix or substring)", s)
}

// Matches reports whether a process name matches the target under this mode.
func (m MatchMode) Matches(procName, target string) bool {
	switch m {
	case MatchPrefix:
		return strings.HasPrefix(procName, target)
	case MatchSubstring:
		return strings.Contains(procName, target)
	default:
		return procName == target
	}
}

// Target is a resolved process.
type Target struct {
	PID    int32
	Name   string
	Exe    string // executable path, may be empty when unreadable
	Cgroup string // Linux sandbox cgroup path, empty elsewhere
}

// Resolve enumerates running processes and returns the first whose name
// matches under the given mode, like pgrep: first match wins.
func Resolve(name string, mode MatchMode) (*Target, error) {
	if name == "" {
		return nil, fmt.Errorf("empty process name")
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if !mode.Matches(pname, name) {
			continue
		}

		t := &Target{PID: p.Pid, Name: pname}
		if exe, err := p.Exe(); err == nil {
			t.Exe = exe
		}
		t.Cgroup = sandboxCgroup(p.Pid)
		return t, nil
	}

	return nil, fmt.Errorf("no process matching %q (%s)", name, mode)
}

//go:build windows

package firewall

import "netctrl-go/pkg/shell"

func newPlatform(run shell.Runner, opts Options) (Blocker, error) {
	return newNetsh(run, opts), nil
}

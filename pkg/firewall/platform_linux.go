//go:build linux

package firewall

import "netctrl-go/pkg/shell"

func newPlatform(run shell.Runner, opts Options) (Blocker, error) {
	return newIptables(run, opts), nil
}

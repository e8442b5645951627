//go:build !linux && !windows

package firewall

import "netctrl-go/pkg/shell"

func newPlatform(run shell.Runner, opts Options) (Blocker, error) {
	return nil, ErrUnsupportedPlatform
}

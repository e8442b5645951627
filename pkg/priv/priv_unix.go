//go:build !windows

// Package priv answers whether the current process holds the privileges
// needed to modify firewall and queueing state.
package priv

import "os"

func IsElevated() bool {
	return os.Geteuid() == 0
}

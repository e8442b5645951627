//go:build linux

package shaper

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// checkLink verifies the interface exists before any tc invocation, so a
// typo fails with a useful message instead of tc's.
func checkLink(name string) error {
	if _, err := netlink.LinkByName(name); err != nil {
		return fmt.Errorf("not found: %w", err)
	}
	return nil
}

// Interfaces lists candidate link names for status output.
func Interfaces() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, nil
}

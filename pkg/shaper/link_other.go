//go:build !linux

package shaper

import (
	"errors"
	"net"
)

var errNoShaping = errors.New("traffic shaping requires tc, Linux only")

func checkLink(name string) error {
	return errNoShaping
}

// Interfaces still enumerates via the stdlib so status output works
// everywhere.
func Interfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ifaces))
	for _, i := range ifaces {
		names = append(names, i.Name)
	}
	return names, nil
}

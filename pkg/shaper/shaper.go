// Package shaper degrades traffic on a network interface with a tc netem
// qdisc (added delay and packet loss). Unlike the firewall blockers this is
// interface-wide, not process-scoped.
package shaper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/shell"
)

// Params describe the netem discipline.
type Params struct {
	Delay time.Duration
	Loss  float64 // percent, 0-100
}

func (p Params) validate() error {
	if p.Delay < 0 {
		return fmt.Errorf("negative delay %s", p.Delay)
	}
	if p.Loss < 0 || p.Loss > 100 {
		return fmt.Errorf("loss %.2f%% out of range", p.Loss)
	}
	if p.Delay == 0 && p.Loss == 0 {
		return fmt.Errorf("neither delay nor loss requested")
	}
	return nil
}

type Shaper struct {
	run shell.Runner

	// validateLink is swapped out in tests; the default asks netlink.
	validateLink func(name string) error
}

func New(run shell.Runner) *Shaper {
	return &Shaper{run: run, validateLink: checkLink}
}

// Apply installs the netem qdisc on iface and returns the undo closure.
func (s *Shaper) Apply(ctx context.Context, iface string, p Params) (ledger.UndoFunc, error) {
	if iface == "" {
		return nil, fmt.Errorf("empty interface name")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.validateLink(iface); err != nil {
		return nil, fmt.Errorf("interface %q: %w", iface, err)
	}

	args := []string{"qdisc", "add", "dev", iface, "root", "netem"}
	if p.Delay > 0 {
		ms := p.Delay.Milliseconds()
		if ms == 0 {
			// tc netem takes whole milliseconds; "delay 0ms" would be a no-op.
			ms = 1
		}
		args = append(args, "delay", fmt.Sprintf("%dms", ms))
	}
	if p.Loss > 0 {
		args = append(args, "loss", strconv.FormatFloat(p.Loss, 'f', -1, 64)+"%")
	}
	if _, err := s.run.Run(ctx, "tc", args...); err != nil {
		return nil, fmt.Errorf("tc qdisc add failed: %w", err)
	}

	undo := func() error {
		return s.Remove(context.Background(), iface)
	}
	return undo, nil
}

// Remove deletes the netem qdisc from iface.
func (s *Shaper) Remove(ctx context.Context, iface string) error {
	if _, err := s.run.Run(ctx, "tc", "qdisc", "del", "dev", iface, "root", "netem"); err != nil {
		return fmt.Errorf("tc qdisc del failed: %w", err)
	}
	return nil
}

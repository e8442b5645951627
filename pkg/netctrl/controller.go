// Package netctrl ties the pieces together: it resolves targets, drives the
// platform blocker and shaper, and records every applied restriction in a
// ledger so Close can unwind them all on any exit path.
package netctrl

import (
	"context"
	"fmt"
	"sync"

	"netctrl-go/pkg/appdir"
	"netctrl-go/pkg/firewall"
	"netctrl-go/pkg/journal"
	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/log"
	"netctrl-go/pkg/proc"
	"netctrl-go/pkg/shaper"
	"netctrl-go/pkg/shell"
)

type resolveFunc func(name string, mode proc.MatchMode) (*proc.Target, error)

type Controller struct {
	cfg     *Config
	led     *ledger.Ledger
	blocker firewall.Blocker
	shaper  *shaper.Shaper
	jrnl    *journal.Journal // nil when journaling is disabled
	mode    proc.MatchMode
	resolve resolveFunc

	closeOnce sync.Once
}

// NewController builds the platform controller and performs the one-time
// firewall bootstrap at construction, so a controller that exists is one
// whose chains are (at least optimistically) in place.
func NewController(cfg *Config) (*Controller, error) {
	mode, err := proc.ParseMatchMode(cfg.MatchMode)
	if err != nil {
		return nil, err
	}

	run := shell.New(cfg.CommandTimeout)
	blocker, err := firewall.New(run, firewall.Options{
		RulePrefix:   cfg.RulePrefix,
		ConfirmSetup: cfg.ConfirmSetup,
	})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		led:     ledger.New(),
		blocker: blocker,
		shaper:  shaper.New(run),
		mode:    mode,
		resolve: proc.Resolve,
	}

	if cfg.JournalDBFile != "" {
		jrnl, err := journal.Open(appdir.File(cfg.JournalDBFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open restriction journal: %w", err)
		}
		c.jrnl = jrnl
	}

	if err := blocker.Setup(context.Background()); err != nil {
		c.closeJournal()
		return nil, fmt.Errorf("firewall setup failed: %w", err)
	}

	return c, nil
}

func (c *Controller) closeJournal() {
	if c.jrnl != nil {
		c.jrnl.Close()
		c.jrnl = nil
	}
}

// journaledUndo wraps an undo so the journal row goes away once the undo has
// been attempted, matching the ledger's attempt-once semantics.
func (c *Controller) journaledUndo(dir ledger.Direction, kind, key string, undo ledger.UndoFunc) ledger.UndoFunc {
	if c.jrnl == nil {
		return undo
	}
	if err := c.jrnl.Record(dir, kind, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to journal restriction")
	}
	return func() error {
		defer func() {
			if err := c.jrnl.Forget(dir, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to clear journal row")
			}
		}()
		return undo()
	}
}

func (c *Controller) blockDirection(ctx context.Context, name string, dir ledger.Direction) (ledger.Outcome, error) {
	t, err := c.resolve(name, c.mode)
	if err != nil {
		return ledger.Failed, err
	}
	key, kind, err := c.blocker.KeyFor(t)
	if err != nil {
		return ledger.Failed, err
	}

	return c.led.Apply(dir, key, kind, func() (ledger.UndoFunc, error) {
		undo, err := c.blocker.Block(ctx, t, dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("target", t.Name).Str("key", key).Str("kind", kind).
			Str("direction", dir.String()).Msg("restriction applied")
		return c.journaledUndo(dir, kind, key, undo), nil
	})
}

// BlockOutbound blocks traffic the target sends.
func (c *Controller) BlockOutbound(ctx context.Context, name string) (ledger.Outcome, error) {
	return c.blockDirection(ctx, name, ledger.Outbound)
}

// BlockInbound blocks traffic the target receives.
func (c *Controller) BlockInbound(ctx context.Context, name string) (ledger.Outcome, error) {
	return c.blockDirection(ctx, name, ledger.Inbound)
}

// Block blocks both directions. The first failure aborts; an
// already-blocked direction is skipped, so repeating Block is safe.
func (c *Controller) Block(ctx context.Context, name string) (ledger.Outcome, error) {
	out, err := c.blockDirection(ctx, name, ledger.Outbound)
	if err != nil {
		return ledger.Failed, err
	}
	in, err := c.blockDirection(ctx, name, ledger.Inbound)
	if err != nil {
		return ledger.Failed, err
	}
	if out == ledger.Applied || in == ledger.Applied {
		return ledger.Applied, nil
	}
	return ledger.AlreadyActive, nil
}

// Lag installs a netem delay/loss qdisc on the interface, tracked like any
// other restriction.
func (c *Controller) Lag(ctx context.Context, iface string, p shaper.Params) (ledger.Outcome, error) {
	if iface == "" {
		iface = c.cfg.Interface
	}
	if iface == "" {
		return ledger.Failed, fmt.Errorf("no interface given and none configured")
	}

	return c.led.Apply(ledger.Both, iface, ledger.KindIface, func() (ledger.UndoFunc, error) {
		undo, err := c.shaper.Apply(ctx, iface, p)
		if err != nil {
			return nil, err
		}
		log.Info().Str("interface", iface).Dur("delay", p.Delay).Float64("loss", p.Loss).
			Msg("shaping applied")
		return c.journaledUndo(ledger.Both, ledger.KindIface, iface, undo), nil
	})
}

// Unblock reverses every active restriction and returns how many were
// processed. Undo failures are logged and swallowed; teardown proceeds.
func (c *Controller) Unblock(ctx context.Context) int {
	n := c.led.RevokeAll(func(e ledger.Entry, err error) {
		log.Warn().Err(err).Str("key", e.Key).Str("direction", e.Direction.String()).
			Msg("undo failed, restriction may already be gone")
	})
	if err := c.blocker.Teardown(ctx); err != nil {
		log.Warn().Err(err).Msg("firewall teardown failed")
	}
	return n
}

func (c *Controller) BlockedOutbound() bool { return c.led.Active(ledger.Outbound) }
func (c *Controller) BlockedInbound() bool  { return c.led.Active(ledger.Inbound) }
func (c *Controller) AnyActive() bool       { return c.led.AnyActive() }

// Status is a snapshot for the CLI and the HTTP API.
type Status struct {
	Target          string        `json:"target"`
	MatchMode       string        `json:"match_mode"`
	BlockedOutbound bool          `json:"blocked_outbound"`
	BlockedInbound  bool          `json:"blocked_inbound"`
	Restrictions    []Restriction `json:"restrictions"`
}

type Restriction struct {
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	Key       string `json:"key"`
	AppliedAt string `json:"applied_at"`
}

func (c *Controller) Status() Status {
	entries := c.led.Entries()
	s := Status{
		Target:          c.cfg.Target,
		MatchMode:       string(c.mode),
		BlockedOutbound: c.BlockedOutbound(),
		BlockedInbound:  c.BlockedInbound(),
		Restrictions:    make([]Restriction, 0, len(entries)),
	}
	for _, e := range entries {
		s.Restrictions = append(s.Restrictions, Restriction{
			Direction: e.Direction.String(),
			Kind:      e.Kind,
			Key:       e.Key,
			AppliedAt: e.AppliedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return s
}

// Close unwinds all restrictions exactly once. Every exit path of the
// owning command must reach this: normal quit, disable request, and the
// signal handler.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Unblock(context.Background())
		c.closeJournal()
	})
}

// Recover deletes OS rules journaled by a previous run that died without
// unwinding. Returns how many orphans were processed.
func Recover(cfg *Config) (int, error) {
	if cfg.JournalDBFile == "" {
		return 0, fmt.Errorf("journaling is disabled, nothing to recover")
	}
	jrnl, err := journal.Open(appdir.File(cfg.JournalDBFile))
	if err != nil {
		return 0, fmt.Errorf("failed to open restriction journal: %w", err)
	}
	defer jrnl.Close()

	orphans, err := jrnl.Orphans()
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	run := shell.New(cfg.CommandTimeout)
	blocker, err := firewall.New(run, firewall.Options{RulePrefix: cfg.RulePrefix, ConfirmSetup: true})
	if err != nil {
		return 0, err
	}
	sh := shaper.New(run)

	ctx := context.Background()
	for _, o := range orphans {
		var err error
		if o.Kind == ledger.KindIface {
			err = sh.Remove(ctx, o.Key)
		} else {
			err = blocker.Remove(ctx, o.Kind, o.Key, o.Direction)
		}
		if err != nil {
			// The rule may be gone already (reboot cleared it); recovery
			// stays best-effort like any other undo.
			log.Warn().Err(err).Str("key", o.Key).Msg("orphan cleanup failed")
		}
	}

	if err := jrnl.Clear(); err != nil {
		return len(orphans), err
	}
	return len(orphans), nil
}

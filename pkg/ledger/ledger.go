// Package ledger tracks externally-applied network restrictions so they can
// be cleanly and completely reversed, including on abnormal termination.
// Every entry pairs the key it was applied under with an undo closure; the
// ledger itself performs no I/O.
package ledger

import (
	"fmt"
	"sync"
	"time"
)

// Direction of the traffic a restriction covers.
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Both // used for interface-wide restrictions such as shaping qdiscs
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	case Both:
		return "both"
	}
	return "unknown"
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "outbound":
		return Outbound, nil
	case "inbound":
		return Inbound, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Kinds of target key a restriction can be scoped to.
const (
	KindExe    = "exe"
	KindCgroup = "cgroup"
	KindPID    = "pid"
	KindIface  = "iface"
)

// Outcome of an Apply call.
type Outcome int

const (
	Failed Outcome = iota
	Applied
	AlreadyActive
)

// UndoFunc reverses a previously applied restriction. It is invoked at most
// once per entry.
type UndoFunc func() error

// ApplyFunc performs the external side effect and returns the closure that
// reverses it. A nil error means the restriction is active (or optimistically
// assumed active, for fire-and-forget appliers).
type ApplyFunc func() (UndoFunc, error)

// Entry is one active restriction.
type Entry struct {
	Direction Direction
	Key       string // exe path, cgroup path, pid, or interface name
	Kind      string // "exe", "cgroup", "pid" or "iface"
	AppliedAt time.Time
	undo      UndoFunc
}

type entryKey struct {
	dir Direction
	key string
}

// Ledger is an insertion-ordered set of active restrictions keyed by
// (direction, target key). A single mutex covers Apply/RevokeAll/queries so
// the management socket and the interactive loop can share one instance.
type Ledger struct {
	mu      sync.Mutex
	entries []*Entry
	index   map[entryKey]*Entry
}

func New() *Ledger {
	return &Ledger{
		index: make(map[entryKey]*Entry),
	}
}

// Apply invokes fn unless (dir, key) is already active. On success the entry
// is recorded; on failure nothing is inserted and the error is returned to
// the caller, never retried.
func (l *Ledger) Apply(dir Direction, key, kind string, fn ApplyFunc) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ek := entryKey{dir: dir, key: key}
	if _, ok := l.index[ek]; ok {
		return AlreadyActive, nil
	}

	undo, err := fn()
	if err != nil {
		return Failed, err
	}

	e := &Entry{
		Direction: dir,
		Key:       key,
		Kind:      kind,
		AppliedAt: time.Now(),
		undo:      undo,
	}
	l.entries = append(l.entries, e)
	l.index[ek] = e
	return Applied, nil
}

// RevokeAll invokes every entry's undo exactly once and clears the ledger
// unconditionally, returning the number of entries processed. A failing undo
// never prevents attempting the rest; errors are handed to onErr (may be
// nil) and otherwise swallowed, because teardown must proceed even when the
// system is already inconsistent.
func (l *Ledger) RevokeAll(onErr func(Entry, error)) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := len(l.entries)
	for _, e := range l.entries {
		if e.undo == nil {
			continue
		}
		if err := e.undo(); err != nil && onErr != nil {
			onErr(*e, err)
		}
		e.undo = nil
	}
	l.entries = nil
	l.index = make(map[entryKey]*Entry)
	return count
}

// Active reports whether any restriction covers the given direction.
// Interface-wide (Both) entries count for either direction.
func (l *Ledger) Active(dir Direction) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Direction == dir || e.Direction == Both || dir == Both {
			return true
		}
	}
	return false
}

// AnyActive reports whether the ledger holds any restriction at all.
func (l *Ledger) AnyActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries) > 0
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a snapshot of the active restrictions in insertion order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

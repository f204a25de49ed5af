package refresh

import (
	"reflect"
	"time"
)

// MergePolicy decides how a fetched snapshot is folded into an entity.
type MergePolicy int

const (
	// MergeReplace swaps in the latest snapshot and never raises liveness.
	MergeReplace MergePolicy = iota
	// MergeAppendCount swaps in the latest snapshot and raises liveness when
	// it holds strictly more items than the previous one.
	MergeAppendCount
)

func (p MergePolicy) String() string {
	switch p {
	case MergeReplace:
		return "replace"
	case MergeAppendCount:
		return "append-count"
	default:
		return "unknown"
	}
}

// Entity is one monitored id and the items last fetched for it.
type Entity[T any] struct {
	ID    string
	Items []T
	// Live is set when new items arrived since the last Acknowledge.
	Live bool
	// Revision starts at 1 and bumps whenever Items change.
	Revision uint64
	// UpdatedAt is when Items last changed, not when they were last fetched.
	UpdatedAt time.Time
}

type entry[T any] struct {
	Entity[T]
	fetched bool
	// rebase suppresses liveness on the next merge, set when the query moves
	// to another day and counts stop being comparable.
	rebase bool
}

// collection is the reconciled, ordered set of entities. Positions are
// reserved the first time an id is monitored and never move afterwards.
type collection[T any] struct {
	order   []string
	entries map[string]*entry[T]
	equal   func(a, b []T) bool
}

func newCollection[T any](equal func(a, b []T) bool) collection[T] {
	if equal == nil {
		equal = defaultEqual[T]
	}
	return collection[T]{entries: make(map[string]*entry[T]), equal: equal}
}

func (c *collection[T]) reserve(id string) {
	if _, ok := c.entries[id]; ok {
		return
	}
	c.entries[id] = &entry[T]{Entity: Entity[T]{ID: id}}
	c.order = append(c.order, id)
}

// merge folds a snapshot into the entity for id. It reports whether the
// visible state changed and whether liveness was raised.
func (c *collection[T]) merge(id string, items []T, policy MergePolicy, now time.Time) (changed, raised bool) {
	c.reserve(id)
	e := c.entries[id]

	if !e.fetched {
		e.fetched = true
		e.rebase = false
		e.Items = cloneItems(items)
		e.Revision = 1
		e.UpdatedAt = now
		return true, false
	}

	prev := len(e.Items)
	if !c.equal(e.Items, items) {
		e.Items = cloneItems(items)
		e.Revision++
		e.UpdatedAt = now
		changed = true
	}
	if policy == MergeAppendCount && !e.rebase && len(items) > prev && !e.Live {
		e.Live = true
		changed = true
		raised = true
	}
	e.rebase = false
	return changed, raised
}

func (c *collection[T]) acknowledge(id string) bool {
	e, ok := c.entries[id]
	if !ok || !e.Live {
		return false
	}
	e.Live = false
	return true
}

func (c *collection[T]) markRebase() {
	for _, e := range c.entries {
		e.rebase = true
	}
}

func (c *collection[T]) get(id string) (Entity[T], bool) {
	e, ok := c.entries[id]
	if !ok || !e.fetched {
		return Entity[T]{}, false
	}
	return cloneEntity(e.Entity), true
}

// snapshot lists fetched entities in reserved order.
func (c *collection[T]) snapshot() []Entity[T] {
	out := make([]Entity[T], 0, len(c.order))
	for _, id := range c.order {
		if e := c.entries[id]; e.fetched {
			out = append(out, cloneEntity(e.Entity))
		}
	}
	return out
}

func (c *collection[T]) size() int {
	n := 0
	for _, e := range c.entries {
		if e.fetched {
			n++
		}
	}
	return n
}

func (c *collection[T]) reset() {
	c.order = nil
	c.entries = make(map[string]*entry[T])
}

func cloneEntity[T any](e Entity[T]) Entity[T] {
	e.Items = cloneItems(e.Items)
	return e
}

func cloneItems[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	return append([]T(nil), items...)
}

func defaultEqual[T any](a, b []T) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Package indexset assigns stable, dense integer handles to named entities
// (tasks, hosts) so the analytical layers (PlatformModel, GraphAnalyzer) can
// address them as matrix rows/columns instead of chasing map lookups on
// every inner-loop access.
package indexset

import (
	"sort"

	"github.com/spaolacci/murmur3"
)

// Table is an open-addressed name->handle map. Handles are assigned in
// first-seen order starting at 0 and never change once assigned, so a
// Table built twice from the same insertion order yields identical
// handles — required for the dense OCT/bandwidth/latency matrices to be
// reproducible across runs.
type Table struct {
	buckets []entry
	names   []string
	mask    uint64
}

type entry struct {
	used   bool
	name   string
	handle int
}

// New creates a table sized for approximately hint entries.
func New(hint int) *Table {
	size := uint64(16)
	for size < uint64(hint)*2 {
		size <<= 1
	}
	return &Table{
		buckets: make([]entry, size),
		mask:    size - 1,
	}
}

func (t *Table) hash(name string) uint64 {
	return murmur3.Sum64([]byte(name))
}

// Assign returns the handle for name, creating one if this is the first
// time name has been seen.
func (t *Table) Assign(name string) int {
	if idx, ok := t.lookup(name); ok {
		return idx
	}
	if len(t.names)*2 >= len(t.buckets) {
		t.grow()
	}
	h := t.hash(name) & t.mask
	for t.buckets[h].used {
		h = (h + 1) & t.mask
	}
	handle := len(t.names)
	t.buckets[h] = entry{used: true, name: name, handle: handle}
	t.names = append(t.names, name)
	return handle
}

// Handle returns the handle for name and whether it has been assigned.
func (t *Table) Handle(name string) (int, bool) {
	return t.lookup(name)
}

func (t *Table) lookup(name string) (int, bool) {
	h := t.hash(name) & t.mask
	for t.buckets[h].used {
		if t.buckets[h].name == name {
			return t.buckets[h].handle, true
		}
		h = (h + 1) & t.mask
	}
	return 0, false
}

func (t *Table) grow() {
	old := t.buckets
	t.buckets = make([]entry, len(old)*2)
	t.mask = uint64(len(t.buckets)) - 1
	for _, e := range old {
		if !e.used {
			continue
		}
		h := t.hash(e.name) & t.mask
		for t.buckets[h].used {
			h = (h + 1) & t.mask
		}
		t.buckets[h] = e
	}
}

// Name returns the name assigned to handle.
func (t *Table) Name(handle int) string {
	return t.names[handle]
}

// Len returns the number of assigned handles.
func (t *Table) Len() int {
	return len(t.names)
}

// Names returns all names in handle order (index i has handle i).
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// SortedNames returns the assigned names sorted lexicographically, used
// wherever ties must be broken by name rather than by insertion/handle
// order.
func (t *Table) SortedNames() []string {
	out := t.Names()
	sort.Strings(out)
	return out
}

// Package timesheet implements the per-host ordered sequence of
// (task, start, finish) triples, with gap-aware
// first-fit insertion.
package timesheet

// Entry is one scheduled slot on a host's timesheet.
type Entry struct {
	TaskHandle int
	Start      float64
	Finish     float64
}

// Timesheet is a strictly non-overlapping, start-sorted sequence of
// entries for a single host. The zero value is an empty timesheet.
type Timesheet struct {
	entries []Entry
}

// Entries returns the timesheet contents in start order. The returned
// slice must not be mutated by the caller.
func (ts *Timesheet) Entries() []Entry { return ts.entries }

// Len returns the number of scheduled entries.
func (ts *Timesheet) Len() int { return len(ts.entries) }

// LastFinish returns the finish time of the last entry, or 0 if empty.
func (ts *Timesheet) LastFinish() float64 {
	if len(ts.entries) == 0 {
		return 0
	}
	return ts.entries[len(ts.entries)-1].Finish
}

// Insert performs gap-aware first-fit insertion: scanning gaps
// between consecutive entries (and the implicit (_, 0, 0) prefix before
// the first entry) for one at least eet wide with a start no earlier
// than est, taking the first (lowest-position) fit; otherwise appending
// after the last entry (or at est if the timesheet is empty).
func (ts *Timesheet) Insert(taskHandle int, est, eet float64) (position int, start, finish float64) {
	prevFinish := 0.0
	for i, e := range ts.entries {
		gapStart := prevFinish
		if est > gapStart {
			gapStart = est
		}
		if e.Start-gapStart >= eet {
			start = gapStart
			finish = start + eet
			ts.insertAt(i, Entry{TaskHandle: taskHandle, Start: start, Finish: finish})
			return i, start, finish
		}
		prevFinish = e.Finish
	}
	start = prevFinish
	if est > start {
		start = est
	}
	finish = start + eet
	ts.entries = append(ts.entries, Entry{TaskHandle: taskHandle, Start: start, Finish: finish})
	return len(ts.entries) - 1, start, finish
}

func (ts *Timesheet) insertAt(pos int, e Entry) {
	ts.entries = append(ts.entries, Entry{})
	copy(ts.entries[pos+1:], ts.entries[pos:])
	ts.entries[pos] = e
}

// Clone returns a deep copy of the timesheet, backed by a freshly
// allocated slice from buf if buf has enough capacity (see
// schedstate.arena), or a new allocation otherwise.
func (ts *Timesheet) Clone(buf []Entry) *Timesheet {
	var dst []Entry
	if cap(buf) >= len(ts.entries) {
		dst = buf[:len(ts.entries)]
	} else {
		dst = make([]Entry, len(ts.entries))
	}
	copy(dst, ts.entries)
	return &Timesheet{entries: dst}
}

// Monotone reports whether the timesheet satisfies the non-overlap invariant:
// non-negative starts and finish[i] <= start[i+1] for every i.
func (ts *Timesheet) Monotone() bool {
	for i, e := range ts.entries {
		if e.Start < 0 || e.Finish < e.Start {
			return false
		}
		if i+1 < len(ts.entries) && e.Finish > ts.entries[i+1].Start {
			return false
		}
	}
	return true
}

// Package schedstate implements SchedulerState: the mapping from
// host to Timesheet plus task to placement, with a copy operation cheap
// enough for Lookahead to call once per (task, host) candidate pair.
package schedstate

import (
	"math"
	"sync"

	"github.com/swarmguard/dagsched/schederr"
	"github.com/swarmguard/dagsched/timesheet"
)

// Placement is the recorded outcome for one task: the host it was
// assigned to, its earliest completion time, and its position within
// that host's timesheet.
type Placement struct {
	HostHandle int
	Scheduled  bool
	ECT        float64
	Position   int
}

// State is SchedulerState: host->Timesheet plus task->Placement. The
// zero value is not usable; construct with New.
type State struct {
	timetable []*timesheet.Timesheet // by host handle
	tasks     []Placement            // by task handle
}

// New allocates an empty State sized for numHosts hosts and numTasks
// tasks.
func New(numHosts, numTasks int) *State {
	s := &State{
		timetable: make([]*timesheet.Timesheet, numHosts),
		tasks:     make([]Placement, numTasks),
	}
	for i := range s.timetable {
		s.timetable[i] = &timesheet.Timesheet{}
	}
	for i := range s.tasks {
		s.tasks[i].ECT = math.NaN()
	}
	return s
}

// Timesheet returns the timesheet for a host handle.
func (s *State) Timesheet(hostHandle int) *timesheet.Timesheet { return s.timetable[hostHandle] }

// Placement returns the current placement of a task handle.
func (s *State) Placement(taskHandle int) Placement { return s.tasks[taskHandle] }

// Update records the task's placement (host, ECT = finish, position).
// It returns an InvalidState error when position lies outside
// [0, number of entries on host]. It does not add an entry to the host's
// timesheet and does not check (start, finish) against the existing
// entries for overlap.
func (s *State) Update(taskHandle, hostHandle, position int, start, finish float64) error {
	ts := s.timetable[hostHandle]
	entries := ts.Entries()
	if position < 0 || position > len(entries) {
		return schederr.NewInvalidState("update position out of range", schederr.Fields{
			Task: taskHandle, Host: hostHandle,
		})
	}
	s.tasks[taskHandle] = Placement{HostHandle: hostHandle, Scheduled: true, ECT: finish, Position: position}
	return nil
}

// Insert is the common path used by every static algorithm: it asks the
// host's timesheet to place the task (gap-aware first fit) and records
// the resulting placement in one call.
func (s *State) Insert(taskHandle, hostHandle int, est, eet float64) (start, finish float64) {
	position, start, finish := s.timetable[hostHandle].Insert(taskHandle, est, eet)
	s.tasks[taskHandle] = Placement{HostHandle: hostHandle, Scheduled: true, ECT: finish, Position: position}
	return start, finish
}

// MaxTime returns the predicted makespan: the maximum ECT across all
// scheduled tasks. Unscheduled tasks (NaN ECT) are ignored.
func (s *State) MaxTime() float64 {
	max := 0.0
	for _, p := range s.tasks {
		if p.Scheduled && p.ECT > max {
			max = p.ECT
		}
	}
	return max
}

// NumTasks and NumHosts expose the dimensions fixed at New.
func (s *State) NumTasks() int { return len(s.tasks) }
func (s *State) NumHosts() int { return len(s.timetable) }

// arena pools the entry slices backing Timesheet copies so Lookahead's
// up to 10,000 (task, host) evaluations per scheduling call do not each
// pay a fresh heap allocation per host timesheet.
var entryArena = sync.Pool{
	New: func() any { return make([]timesheet.Entry, 0, 32) },
}

// Copy deep-copies both the timetable and task placements, as Lookahead
// requires for hypothetical evaluation: mutating the
// returned State must never be observable in s.
func (s *State) Copy() *State {
	cp := &State{
		timetable: make([]*timesheet.Timesheet, len(s.timetable)),
		tasks:     make([]Placement, len(s.tasks)),
	}
	copy(cp.tasks, s.tasks)
	for i, ts := range s.timetable {
		buf, _ := entryArena.Get().([]timesheet.Entry)
		cp.timetable[i] = ts.Clone(buf)
	}
	return cp
}

// Release returns a copy's underlying timesheet buffers to the arena.
// Callers that allocate many short-lived copies (Lookahead's inner loop)
// should call Release once a candidate has been scored and discarded.
func (s *State) Release() {
	for _, ts := range s.timetable {
		buf := ts.Entries()[:0]
		entryArena.Put(buf)
	}
}

// Package static implements the eleven static scheduling algorithms.
// Each produces a full host->task-list schedule (optionally with a
// predicted makespan) from a TaskGraph and PlatformModel, with no
// knowledge of the simulator beyond what PlatformModel/GraphAnalyzer
// already summarize.
package static

import (
	"fmt"
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schederr"
	"github.com/swarmguard/dagsched/schedstate"
)

// Result is what every static algorithm returns: the final scheduler
// state (from which host->task-list and per-task ECT are both
// recoverable) plus the algorithm's predicted makespan, defined per
// the expected makespan as max(task_state[*].ect).
type Result struct {
	State            *schedstate.State
	ExpectedMakespan float64
}

// HostCandidate is one (host, primary-metric) pair under consideration
// for a placement decision.
type HostCandidate struct {
	Handle  int
	Primary float64
}

// SelectBestHost applies the canonical tie-break key:
// (primary_metric, host.speed, host.name), minimised, with speed used as
// a descending tie-break (prefer the faster host) and name ascending as
// the final tie-break.
func SelectBestHost(m *platform.Model, candidates []HostCandidate) int {
	if len(candidates) == 0 {
		return -1
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if hostLess(m, c, best) {
			best = c
		}
	}
	return best.Handle
}

func hostLess(m *platform.Model, a, b HostCandidate) bool {
	if a.Primary != b.Primary {
		return a.Primary < b.Primary
	}
	as, bs := m.Speed(a.Handle), m.Speed(b.Handle)
	if as != bs {
		return as > bs
	}
	return m.HostName(a.Handle) < m.HostName(b.Handle)
}

// TaskOrder assigns each task its index within a fixed topological
// order, used as the tie-break key (primary_metric, task_toporder_index,
// task.name) for task selection.
type TaskOrder struct {
	index map[int]int // task handle -> position in topological order
}

// NewTaskOrder computes the topological order of g once and exposes
// O(1) index lookups for tie-breaking.
func NewTaskOrder(g *graph.TaskGraph) *TaskOrder {
	order := g.TopologicalOrder()
	idx := make(map[int]int, len(order))
	for i, t := range order {
		idx[t.Handle] = i
	}
	return &TaskOrder{index: idx}
}

func (o *TaskOrder) Index(taskHandle int) int { return o.index[taskHandle] }

// SortByDescendingPrimary orders tasks by descending primary[handle],
// tie-broken by ascending topological index, then ascending name — the
// key HEFT and PEFT both use for their ready-order.
func SortByDescendingPrimary(tasks []*graph.Task, primary []float64, order *TaskOrder) {
	sort.Slice(tasks, func(i, j int) bool {
		pi, pj := primary[tasks[i].Handle], primary[tasks[j].Handle]
		if pi != pj {
			return pi > pj
		}
		oi, oj := order.Index(tasks[i].Handle), order.Index(tasks[j].Handle)
		if oi != oj {
			return oi < oj
		}
		return tasks[i].Name < tasks[j].Name
	})
}

// scheduleBoundaryTask places a zero-amount boundary task (root or end)
// onto the master host when the platform declares one, matching the
// shared "try_schedule_boundary_task" preamble. It is a no-op (the task
// remains for the caller to place normally) when there is no master
// host.
func scheduleBoundaryTask(state *schedstate.State, m *platform.Model, task *graph.Task) bool {
	master := m.MasterHandle()
	if master < 0 {
		return false
	}
	state.Insert(task.Handle, master, 0, 0)
	return true
}

// allHosts returns every host handle 0..NumHosts-1.
func allHosts(m *platform.Model) []int {
	hosts := make([]int, m.NumHosts())
	for i := range hosts {
		hosts[i] = i
	}
	return hosts
}

// parentPlacements gathers the ParentPlacement view PlatformModel.EST
// needs, reading each parent's recorded placement out of state. Every
// algorithm here visits tasks in an order that keeps this an invariant
// (a task only becomes a placement candidate once every parent is
// scheduled), so encountering an unscheduled parent means the caller's
// ordering logic has a bug; it is reported as an InvalidState error
// rather than silently skipped. Returns an error-free empty slice for
// boundary tasks with no parents.
func parentPlacements(g *graph.TaskGraph, state *schedstate.State, task *graph.Task) ([]platform.ParentPlacement, error) {
	parents := g.Parents(task)
	out := make([]platform.ParentPlacement, 0, len(parents))
	for _, e := range parents {
		p := state.Placement(e.From.Handle)
		if !p.Scheduled {
			return nil, schederr.NewInvalidState(
				fmt.Sprintf("task %q: parent %q is not yet scheduled", task.Name, e.From.Name),
				schederr.Fields{Task: task.Handle, Host: -1, Names: []string{e.From.Name}})
		}
		out = append(out, platform.ParentPlacement{
			HostHandle: p.HostHandle,
			ECT:        p.ECT,
			EdgeWeight: e.Weight,
		})
	}
	return out, nil
}

// estimateInsertion previews the (start, finish) a gap-aware insertion
// of (est, eet) would produce on host, without mutating the timesheet.
// Shared by every algorithm that must compare multiple hosts before
// committing to one (HEFT, Lookahead, PEFT, DLS, HCPT, LDCP).
func estimateInsertion(state *schedstate.State, host int, est, eet float64) (start, finish float64) {
	ts := state.Timesheet(host)
	prevFinish := 0.0
	for _, e := range ts.Entries() {
		gapStart := prevFinish
		if est > gapStart {
			gapStart = est
		}
		if e.Start-gapStart >= eet {
			return gapStart, gapStart + eet
		}
		prevFinish = e.Finish
	}
	start = prevFinish
	if est > start {
		start = est
	}
	return start, start + eet
}

// finalizeResult wraps a completed State into a Result, reading the
// predicted makespan straight off the state.
func finalizeResult(state *schedstate.State) *Result {
	return &Result{State: state, ExpectedMakespan: state.MaxTime()}
}

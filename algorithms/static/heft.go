package static

import (
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// HEFTOrder returns the tasks of g sorted by descending upward rank
// (ranku), tie-broken by ascending topological index then name — the
// priority order HEFT and Lookahead share.
func HEFTOrder(g *graph.TaskGraph, a *graph.Analyzer) []*graph.Task {
	tasks := g.Tasks()
	ranku := a.Ranku()
	order := NewTaskOrder(g)
	SortByDescendingPrimary(tasks, ranku, order)
	return tasks
}

// HEFT is the Heterogeneous Earliest Finish Time algorithm: tasks are
// placed in HEFTOrder, each onto the host minimising finish time via
// gap-aware insertion.
func HEFT(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	a := graph.NewAnalyzer(g, m)
	order := HEFTOrder(g, a)
	state := schedstate.New(m.NumHosts(), g.NumTasks())
	if err := heftScheduleOrder(g, m, state, order); err != nil {
		return nil, err
	}
	return finalizeResult(state), nil
}

// heftScheduleOrder places every task in order onto the host minimising
// finish time, mutating state in place. It is shared by HEFT and
// Lookahead (on a copy, for the remaining suffix of the order).
func heftScheduleOrder(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, order []*graph.Task) error {
	for _, t := range order {
		if t.IsBoundary() && t.Amount == 0 {
			if scheduleBoundaryTask(state, m, t) {
				continue
			}
		}
		if _, err := placeOnBestHost(g, m, state, t); err != nil {
			return err
		}
	}
	return nil
}

// placeOnBestHost computes, for every host, the insertion this task
// would receive (est, eet, resulting finish), commits the task to the
// host minimising finish time (tie-break: host.speed desc, then
// host.name), and returns that host's handle.
func placeOnBestHost(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task) (int, error) {
	parents, err := parentPlacements(g, state, t)
	if err != nil {
		return -1, err
	}
	candidates := make([]HostCandidate, 0, m.NumHosts())
	type plan struct{ est, eet float64 }
	plans := make(map[int]plan, m.NumHosts())
	for _, h := range allHosts(m) {
		est := m.EST(h, parents)
		eet := m.EET(t.Amount, h)
		finish := estimateFinish(state, h, est, eet)
		candidates = append(candidates, HostCandidate{Handle: h, Primary: finish})
		plans[h] = plan{est: est, eet: eet}
	}
	best := SelectBestHost(m, candidates)
	p := plans[best]
	state.Insert(t.Handle, best, p.est, p.eet)
	return best, nil
}

// estimateFinish predicts the finish time a gap-aware insertion of
// (est, eet) would produce on host, without mutating the timesheet.
func estimateFinish(state *schedstate.State, host int, est, eet float64) float64 {
	_, finish := estimateInsertion(state, host, est, eet)
	return finish
}

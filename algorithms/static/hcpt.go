package static

import (
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// HCPT is Heterogeneous Critical Parent Trees: the critical path (tasks
// whose AEST and ALST coincide) is processed in ascending-AEST order, a
// DFS over not-yet-emitted parents (sorted by AEST) pulling critical-path
// ancestors forward of whatever a vanilla topological sort would have
// emitted first. Each emitted task is placed on the host minimising
// finish time via gap-aware insertion.
func HCPT(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	a := graph.NewAnalyzer(g, m)
	aest, alst := a.AESTALST()

	var critical []*graph.Task
	for _, t := range g.Tasks() {
		if graph.IsCritical(aest[t.Handle], alst[t.Handle]) {
			critical = append(critical, t)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		if aest[critical[i].Handle] != aest[critical[j].Handle] {
			return aest[critical[i].Handle] < aest[critical[j].Handle]
		}
		return critical[i].Name < critical[j].Name
	})

	order := hcptOrder(g, aest, critical)
	state := schedstate.New(m.NumHosts(), g.NumTasks())
	for _, t := range order {
		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			continue
		}
		if _, err := placeOnBestHost(g, m, state, t); err != nil {
			return nil, err
		}
	}
	return finalizeResult(state), nil
}

// hcptOrder performs a stack-guided topological sort: starting
// a DFS from each critical-path task (in ascending AEST order), visiting
// not-yet-emitted parents sorted by ascending AEST before emitting the
// node itself. Any task unreached by that pass (graphs where the
// critical path does not dominate) is swept up afterward via a plain
// topological DFS so every task is still emitted exactly once.
func hcptOrder(g *graph.TaskGraph, aest []float64, critical []*graph.Task) []*graph.Task {
	queued := make([]bool, g.NumTasks())
	order := make([]*graph.Task, 0, g.NumTasks())

	var visit func(t *graph.Task)
	visit = func(t *graph.Task) {
		if queued[t.Handle] {
			return
		}
		parents := g.Parents(t)
		ps := make([]*graph.Task, 0, len(parents))
		for _, e := range parents {
			if !queued[e.From.Handle] {
				ps = append(ps, e.From)
			}
		}
		sort.SliceStable(ps, func(i, j int) bool { return aest[ps[i].Handle] < aest[ps[j].Handle] })
		for _, p := range ps {
			visit(p)
		}
		queued[t.Handle] = true
		order = append(order, t)
	}

	for _, c := range critical {
		visit(c)
	}
	for _, t := range g.TopologicalOrder() {
		visit(t)
	}
	return order
}

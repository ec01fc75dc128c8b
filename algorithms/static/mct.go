package static

import (
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// MCT is Minimum Completion Time: tasks are visited in topological
// arrival order (no priority ranking, unlike HEFT) and each is placed on
// the host minimising completion time via gap-aware insertion.
func MCT(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	order := g.TopologicalOrder()
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

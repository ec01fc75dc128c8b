package static

import (
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// OLB is Opportunistic Load Balancing: tasks are assigned, in topological
// order, to whichever host becomes free soonest, ignoring communication
// entirely (est is always 0). It is the baseline every other algorithm's
// predicted makespan is normalised against.
func OLB(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	order := g.TopologicalOrder()
	state := schedstate.New(m.NumHosts(), g.NumTasks())
	for _, t := range order {
		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			continue
		}
		best, eet := olbBestHost(m, state, t)
		state.Insert(t.Handle, best, 0, eet)
	}
	return finalizeResult(state), nil
}

// olbBestHost picks the host whose timesheet is free soonest, ignoring
// communication cost, tie-broken by host speed then name.
func olbBestHost(m *platform.Model, state *schedstate.State, t *graph.Task) (host int, eet float64) {
	candidates := make([]HostCandidate, 0, m.NumHosts())
	eets := make(map[int]float64, m.NumHosts())
	for _, h := range allHosts(m) {
		free := state.Timesheet(h).LastFinish()
		e := m.EET(t.Amount, h)
		candidates = append(candidates, HostCandidate{Handle: h, Primary: free})
		eets[h] = e
	}
	best := SelectBestHost(m, candidates)
	return best, eets[best]
}

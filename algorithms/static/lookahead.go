package static

import (
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// Lookahead uses HEFT's task order, but for each task evaluates every
// candidate host by completing a full HEFT schedule of the remaining
// tasks on a throwaway copy of the state, and picks the host minimising
// the resulting predicted makespan rather than the task's own finish
// time. Its predicted makespan must never exceed
// HEFT's on identical inputs.
func Lookahead(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	a := graph.NewAnalyzer(g, m)
	order := HEFTOrder(g, a)
	state := schedstate.New(m.NumHosts(), g.NumTasks())

	for i, t := range order {
		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			continue
		}
		remaining := order[i+1:]
		best, err := lookaheadBestHost(g, m, state, t, remaining)
		if err != nil {
			return nil, err
		}
		parents, err := parentPlacements(g, state, t)
		if err != nil {
			return nil, err
		}
		est := m.EST(best, parents)
		eet := m.EET(t.Amount, best)
		state.Insert(t.Handle, best, est, eet)
	}
	return finalizeResult(state), nil
}

func lookaheadBestHost(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task, remaining []*graph.Task) (int, error) {
	candidates := make([]HostCandidate, 0, m.NumHosts())
	for _, h := range allHosts(m) {
		cp := state.Copy()
		parents, err := parentPlacements(g, cp, t)
		if err != nil {
			cp.Release()
			return -1, err
		}
		est := m.EST(h, parents)
		eet := m.EET(t.Amount, h)
		cp.Insert(t.Handle, h, est, eet)
		if err := heftScheduleOrder(g, m, cp, remaining); err != nil {
			cp.Release()
			return -1, err
		}
		candidates = append(candidates, HostCandidate{Handle: h, Primary: cp.MaxTime()})
		cp.Release()
	}
	return SelectBestHost(m, candidates), nil
}

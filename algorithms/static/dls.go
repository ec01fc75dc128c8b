package static

import (
	"math"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// DLS is Dynamic Level Scheduling: at each step, among the current
// ready frontier and every host, pick the (task, host) pair maximising
// the dynamic level DL(t,h) = sl(t) + (aec(t) - eet(t,h)) - start_on(h,t),
// place it, and recompute the frontier.
func DLS(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	a := graph.NewAnalyzer(g, m)
	sl := a.StaticLevel()
	state := schedstate.New(m.NumHosts(), g.NumTasks())

	indeg, children := buildIndegree(g)
	frontier := readyFrontier(g, indeg)

	for len(frontier) > 0 {
		bestTaskIdx, bestHost, bestEET := -1, -1, 0.0
		bestDL := math.Inf(-1)

		for i, t := range frontier {
			if t.IsBoundary() && t.Amount == 0 {
				continue
			}
			parents, err := parentPlacements(g, state, t)
			if err != nil {
				return nil, err
			}
			aec := a.AEC(t)
			for _, h := range allHosts(m) {
				est := m.EST(h, parents)
				eet := m.EET(t.Amount, h)
				start, _ := estimateInsertion(state, h, est, eet)
				dl := sl[t.Handle] + (aec - eet) - start
				if dlBetter(dl, h, m, bestDL, bestHost) {
					bestDL, bestTaskIdx, bestHost, bestEET = dl, i, h, eet
				}
			}
		}

		var t *graph.Task
		if bestTaskIdx == -1 {
			// only boundary tasks remain in the frontier
			t = frontier[0]
			bestTaskIdx = 0
			if !scheduleBoundaryTask(state, m, t) {
				if _, err := placeOnBestHost(g, m, state, t); err != nil {
					return nil, err
				}
			}
		} else {
			t = frontier[bestTaskIdx]
			parents, err := parentPlacements(g, state, t)
			if err != nil {
				return nil, err
			}
			est := m.EST(bestHost, parents)
			state.Insert(t.Handle, bestHost, est, bestEET)
		}
		frontier = append(frontier[:bestTaskIdx], frontier[bestTaskIdx+1:]...)
		frontier = releaseChildren(t, children, indeg, frontier)
	}
	return finalizeResult(state), nil
}

// dlBetter implements the maximise-DL selection with the canonical
// tie-break: larger DL wins; ties broken by faster host, then host name.
func dlBetter(dl float64, host int, m *platform.Model, bestDL float64, bestHost int) bool {
	if bestHost == -1 {
		return true
	}
	if dl != bestDL {
		return dl > bestDL
	}
	hs, bs := m.Speed(host), m.Speed(bestHost)
	if hs != bs {
		return hs > bs
	}
	return m.HostName(host) < m.HostName(bestHost)
}

package static

import (
	"math"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// batchKey selects which of the three batch algorithms' task-priority
// rule runBatch applies.
type batchKey int

const (
	minMinKey batchKey = iota
	maxMinKey
	sufferageKey
)

// MinMin schedules the currently-ready batch by repeatedly placing the
// task whose best-host ECT is smallest.
func MinMin(g *graph.TaskGraph, m *platform.Model) (*Result, error) { return runBatch(g, m, minMinKey) }

// MaxMin schedules the currently-ready batch by repeatedly placing the
// task whose best-host ECT is largest.
func MaxMin(g *graph.TaskGraph, m *platform.Model) (*Result, error) { return runBatch(g, m, maxMinKey) }

// Sufferage schedules the currently-ready batch by repeatedly placing
// the task that would "suffer" most from not getting its best host:
// largest (second-best ECT - best ECT). With a single host every task's
// suffering is undefined (no second host to compare against) and the
// rule degenerates to MinMin.
func Sufferage(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	return runBatch(g, m, sufferageKey)
}

type batchCandidate struct {
	host             int
	est, eet         float64
	best, second     float64
}

// runBatch implements the shared batch loop: schedule zero-amount
// boundary tasks immediately as they become ready, then repeatedly score
// every (task, host) pair in the remaining ready set, select one task by
// key, place it on its best host, and recompute the frontier.
func runBatch(g *graph.TaskGraph, m *platform.Model, key batchKey) (*Result, error) {
	indeg, children := buildIndegree(g)
	frontier := readyFrontier(g, indeg)
	state := schedstate.New(m.NumHosts(), g.NumTasks())

	for len(frontier) > 0 {
		var err error
		frontier, err = scheduleReadyBoundaries(g, state, m, children, indeg, frontier)
		if err != nil {
			return nil, err
		}
		if len(frontier) == 0 {
			break
		}

		cands := make([]batchCandidate, len(frontier))
		for i, t := range frontier {
			c, err := bestAndSecondECT(g, m, state, t)
			if err != nil {
				return nil, err
			}
			cands[i] = c
		}

		chosen := pickBatchTask(frontier, cands, key)
		t := frontier[chosen]
		c := cands[chosen]
		state.Insert(t.Handle, c.host, c.est, c.eet)

		frontier = append(frontier[:chosen], frontier[chosen+1:]...)
		frontier = releaseChildren(t, children, indeg, frontier)
	}
	return finalizeResult(state), nil
}

// scheduleReadyBoundaries removes and places every zero-amount boundary
// task currently in frontier, releasing their children, until none
// remain — batch algorithms only compete over real work. A boundary task
// goes onto the master host when there is one, otherwise onto the host
// with the earliest finish.
func scheduleReadyBoundaries(g *graph.TaskGraph, state *schedstate.State, m *platform.Model, children map[int][]graph.Edge, indeg []int, frontier []*graph.Task) ([]*graph.Task, error) {
	for {
		idx := -1
		for i, t := range frontier {
			if t.IsBoundary() && t.Amount == 0 {
				idx = i
				break
			}
		}
		if idx == -1 {
			return frontier, nil
		}
		t := frontier[idx]
		if !scheduleBoundaryTask(state, m, t) {
			if _, err := placeOnBestHost(g, m, state, t); err != nil {
				return nil, err
			}
		}
		frontier = append(frontier[:idx], frontier[idx+1:]...)
		frontier = releaseChildren(t, children, indeg, frontier)
	}
}

// bestAndSecondECT computes, over every host, the completion time a
// gap-aware insertion of t would yield, and returns the best host along
// with its (est, eet) and the best and second-best completion times.
func bestAndSecondECT(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task) (batchCandidate, error) {
	parents, err := parentPlacements(g, state, t)
	if err != nil {
		return batchCandidate{}, err
	}
	best, second := math.Inf(1), math.Inf(1)
	bestHost := -1
	var bestEST, bestEET float64
	for _, h := range allHosts(m) {
		est := m.EST(h, parents)
		eet := m.EET(t.Amount, h)
		_, finish := estimateInsertion(state, h, est, eet)
		if bestHost == -1 || hostLess(m, HostCandidate{h, finish}, HostCandidate{bestHost, best}) {
			second = best
			best, bestHost, bestEST, bestEET = finish, h, est, eet
		} else if finish < second {
			second = finish
		}
	}
	return batchCandidate{host: bestHost, est: bestEST, eet: bestEET, best: best, second: second}, nil
}

func pickBatchTask(frontier []*graph.Task, cands []batchCandidate, key batchKey) int {
	best := 0
	for i := 1; i < len(frontier); i++ {
		if batchBetter(frontier[i], cands[i], frontier[best], cands[best], key) {
			best = i
		}
	}
	return best
}

// batchBetter implements each batch rule's selection priority, always
// falling back to ascending task name for determinism.
func batchBetter(ta *graph.Task, ca batchCandidate, tb *graph.Task, cb batchCandidate, key batchKey) bool {
	switch key {
	case minMinKey:
		if ca.best != cb.best {
			return ca.best < cb.best
		}
	case maxMinKey:
		if ca.best != cb.best {
			return ca.best > cb.best
		}
	case sufferageKey:
		sa, sb := ca.second-ca.best, cb.second-cb.best
		aInf, bInf := math.IsInf(sa, 1), math.IsInf(sb, 1)
		switch {
		case aInf && bInf:
			// no second host to compare against on either side: degenerate
			// to MinMin.
			if ca.best != cb.best {
				return ca.best < cb.best
			}
		case sa != sb:
			return sa > sb
		}
	}
	return ta.Name < tb.Name
}

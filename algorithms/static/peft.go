package static

import (
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// PEFT is the Predict Earliest Finish Time algorithm. It ranks tasks by
// mean Optimistic Cost Table value, processes the ready frontier in
// descending-rank order (not a full topological sort by rank, since OCT
// rank need not agree with topological order the way ranku does), and
// places each task on the host minimising finish + OCT[t,h].
func PEFT(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	a := graph.NewAnalyzer(g, m)
	oct := a.OCT()
	rank := graph.OCTRank(oct)
	order := NewTaskOrder(g)
	state := schedstate.New(m.NumHosts(), g.NumTasks())

	indeg, children := buildIndegree(g)
	frontier := readyFrontier(g, indeg)

	for len(frontier) > 0 {
		idx := pickMaxRank(frontier, rank, order)
		t := frontier[idx]
		frontier = append(frontier[:idx], frontier[idx+1:]...)

		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			frontier = releaseChildren(t, children, indeg, frontier)
			continue
		}
		if err := placeWithOCT(g, m, state, t, oct); err != nil {
			return nil, err
		}
		frontier = releaseChildren(t, children, indeg, frontier)
	}
	return finalizeResult(state), nil
}

func placeWithOCT(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task, oct [][]float64) error {
	parents, err := parentPlacements(g, state, t)
	if err != nil {
		return err
	}
	candidates := make([]HostCandidate, 0, m.NumHosts())
	type plan struct{ est, eet float64 }
	plans := make(map[int]plan, m.NumHosts())
	for _, h := range allHosts(m) {
		est := m.EST(h, parents)
		eet := m.EET(t.Amount, h)
		finish := estimateFinish(state, h, est, eet)
		candidates = append(candidates, HostCandidate{Handle: h, Primary: finish + oct[t.Handle][h]})
		plans[h] = plan{est: est, eet: eet}
	}
	best := SelectBestHost(m, candidates)
	p := plans[best]
	state.Insert(t.Handle, best, p.est, p.eet)
	return nil
}

func pickMaxRank(frontier []*graph.Task, rank []float64, order *TaskOrder) int {
	best := 0
	for i := 1; i < len(frontier); i++ {
		a, b := frontier[i], frontier[best]
		ra, rb := rank[a.Handle], rank[b.Handle]
		if ra > rb {
			best = i
			continue
		}
		if ra < rb {
			continue
		}
		oa, ob := order.Index(a.Handle), order.Index(b.Handle)
		if oa < ob || (oa == ob && a.Name < b.Name) {
			best = i
		}
	}
	return best
}

// buildIndegree computes each task's in-degree (number of parent edges)
// and the children edge list keyed by handle, used by every algorithm
// that walks a schedulable frontier rather than a fixed topological
// order (PEFT, DLS, the batch family).
func buildIndegree(g *graph.TaskGraph) (indeg []int, children map[int][]graph.Edge) {
	tasks := g.Tasks()
	indeg = make([]int, g.NumTasks())
	children = make(map[int][]graph.Edge, len(tasks))
	for _, t := range tasks {
		edges := g.Children(t)
		children[t.Handle] = edges
		for _, e := range edges {
			indeg[e.To.Handle]++
		}
	}
	return indeg, children
}

func readyFrontier(g *graph.TaskGraph, indeg []int) []*graph.Task {
	var frontier []*graph.Task
	for _, t := range g.Tasks() {
		if indeg[t.Handle] == 0 {
			frontier = append(frontier, t)
		}
	}
	return frontier
}

func releaseChildren(t *graph.Task, children map[int][]graph.Edge, indeg []int, frontier []*graph.Task) []*graph.Task {
	for _, e := range children[t.Handle] {
		indeg[e.To.Handle]--
		if indeg[e.To.Handle] == 0 {
			frontier = append(frontier, e.To)
		}
	}
	return frontier
}

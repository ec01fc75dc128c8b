package static

import (
	"math"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// LDCP is Longest Dynamic Critical Path. It maintains one HostDAG per
// host (private edge-set copies sharing task identity by handle), walks
// from the last placed task to a "key node" via URAS (the unscheduled
// child maximising communication-cost-plus-URank), resolves that key
// node down to a schedulable task if necessary, places it on the host
// minimising finish time, and rewrites every HostDAG to reflect the
// placement before repeating.
func LDCP(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	numHosts := m.NumHosts()
	dags := make([]*graph.HostDAG, numHosts)
	for h := 0; h < numHosts; h++ {
		dags[h] = graph.NewHostDAG(g, m, h)
	}
	state := schedstate.New(numHosts, g.NumTasks())

	lastOnHost := make([]int, numHosts)
	for h := range lastOnHost {
		lastOnHost[h] = -1
	}

	lastTask := g.Root.Handle
	lastHost := maxURankHost(dags, m, lastTask)
	first := true

	for done := 0; done < g.NumTasks(); done++ {
		var taskHandle int
		switch {
		case first:
			taskHandle = lastTask
			first = false
		default:
			if keyNode, ok := uras(g, dags[lastHost], lastTask, state); ok {
				keyHost := maxURankHost(dags, m, keyNode)
				taskHandle = ascendToSchedulable(g, dags[keyHost], keyNode, state)
			} else {
				taskHandle = firstUnscheduledSchedulable(g, state)
			}
		}
		if taskHandle < 0 {
			break // every reachable task already scheduled
		}

		t := g.ByHandle(taskHandle)
		chosenHost, err := ldcpPlace(g, m, state, t)
		if err != nil {
			return nil, err
		}
		ldcpCommit(dags, g, m, state, t, chosenHost, lastOnHost)
		lastTask, lastHost = taskHandle, chosenHost
	}
	return finalizeResult(state), nil
}

// ldcpPlace places t on the host minimising finish time via gap-aware
// insertion (or the master host, for a zero-amount boundary task), and
// returns the chosen host's handle.
func ldcpPlace(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task) (int, error) {
	if t.IsBoundary() && t.Amount == 0 {
		if master := m.MasterHandle(); master >= 0 {
			state.Insert(t.Handle, master, 0, 0)
			return master, nil
		}
	}
	return placeOnBestHost(g, m, state, t)
}

// ldcpCommit performs the five-step DAG rewrite once t
// has been placed on chosenHost.
func ldcpCommit(dags []*graph.HostDAG, g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task, chosenHost int, lastOnHost []int) {
	// (i) fix the placed task's size to its value under the chosen host,
	// across every DAG copy, since its duration is no longer hypothetical.
	fixedSize := m.EET(t.Amount, chosenHost)
	for _, d := range dags {
		d.SetSize(t.Handle, fixedSize)
	}

	// (ii) zero communication cost to already-placed parents sharing the
	// chosen host, on every DAG.
	for _, e := range g.Parents(t) {
		p := state.Placement(e.From.Handle)
		if p.Scheduled && p.HostHandle == chosenHost {
			for _, d := range dags {
				d.ZeroEdge(e.From.Handle, t.Handle)
			}
		}
	}

	// (iii) enforce ordering against whatever task previously ran last on
	// this host, replacing any prior such edge.
	if prev := lastOnHost[chosenHost]; prev >= 0 {
		_ = dags[chosenHost].AddOrderingEdge(prev, t.Handle)
	}
	lastOnHost[chosenHost] = t.Handle

	// (iv) refresh temporary edges from this task to every schedulable
	// task that is not already one of its successors.
	successors := descendantSet(dags[chosenHost], t.Handle)
	var notSuccessors []int
	for _, other := range g.Tasks() {
		if other.Handle == t.Handle || successors[other.Handle] {
			continue
		}
		if !state.Placement(other.Handle).Scheduled && schedulable(g, state, other.Handle) {
			notSuccessors = append(notSuccessors, other.Handle)
		}
	}
	dags[chosenHost].RefreshTemporaryEdges(t.Handle, notSuccessors)

	// (v) recompute URank for scheduled tasks is handled inside
	// AddOrderingEdge/RefreshTemporaryEdges themselves.
}

// uras returns the URAS of `from` in dag: the unscheduled child
// maximising edge-cost plus URank, tie-broken by task name.
func uras(g *graph.TaskGraph, dag *graph.HostDAG, from int, state *schedstate.State) (int, bool) {
	best, bestKey := -1, math.Inf(-1)
	for _, e := range dag.ChildEdges(from) {
		if state.Placement(e.To).Scheduled {
			continue
		}
		key := e.Weight + dag.URank(e.To)
		if key > bestKey || (key == bestKey && best >= 0 && g.ByHandle(e.To).Name < g.ByHandle(best).Name) {
			bestKey, best = key, e.To
		}
	}
	return best, best != -1
}

// ascendToSchedulable walks the ancestors of start in dag (depth-first,
// skipping already-scheduled tasks) until it finds a schedulable one,
// returning the one with the highest URank when several qualify.
func ascendToSchedulable(g *graph.TaskGraph, dag *graph.HostDAG, start int, state *schedstate.State) int {
	if !state.Placement(start).Scheduled && schedulable(g, state, start) {
		return start
	}
	visited := map[int]bool{start: true}
	stack := []int{start}
	best, bestURank := -1, math.Inf(-1)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range dag.ParentEdges(n) {
			if visited[e.To] || state.Placement(e.To).Scheduled {
				continue
			}
			visited[e.To] = true
			if schedulable(g, state, e.To) {
				u := dag.URank(e.To)
				if u > bestURank || (u == bestURank && best >= 0 && g.ByHandle(e.To).Name < g.ByHandle(best).Name) {
					bestURank, best = u, e.To
				}
				continue
			}
			stack = append(stack, e.To)
		}
	}
	return best
}

// firstUnscheduledSchedulable returns the first task in topological order
// that is both unscheduled and schedulable, used when URAS finds nothing
// (the last task's DAG has no remaining unscheduled children).
func firstUnscheduledSchedulable(g *graph.TaskGraph, state *schedstate.State) int {
	for _, t := range g.TopologicalOrder() {
		if !state.Placement(t.Handle).Scheduled && schedulable(g, state, t.Handle) {
			return t.Handle
		}
	}
	return -1
}

// schedulable reports whether every parent of handle has been scheduled.
func schedulable(g *graph.TaskGraph, state *schedstate.State, handle int) bool {
	for _, e := range g.Parents(g.ByHandle(handle)) {
		if !state.Placement(e.From.Handle).Scheduled {
			return false
		}
	}
	return true
}

// descendantSet collects every task reachable from handle via dag's
// current child edges (including temporary ordering edges).
func descendantSet(dag *graph.HostDAG, handle int) map[int]bool {
	visited := make(map[int]bool)
	stack := []int{handle}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range dag.ChildEdges(n) {
			if !visited[e.To] {
				visited[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return visited
}

// maxURankHost returns the host whose HostDAG reports the highest URank
// for taskHandle, tie-broken by faster host then host name — the mirror
// image of SelectBestHost's minimising tie-break, achieved by negating
// the primary metric.
func maxURankHost(dags []*graph.HostDAG, m *platform.Model, taskHandle int) int {
	candidates := make([]HostCandidate, len(dags))
	for h, d := range dags {
		candidates[h] = HostCandidate{Handle: h, Primary: -d.URank(taskHandle)}
	}
	return SelectBestHost(m, candidates)
}

package graph

import (
	"math"

	"github.com/swarmguard/dagsched/platform"
)

// Analyzer computes the ranking functions every static algorithm needs,
// over a fixed (TaskGraph, platform.Model) pair. All methods are pure:
// they read the graph and model and return fresh slices/maps, never
// mutating either input.
type Analyzer struct {
	g *TaskGraph
	m *platform.Model
}

// NewAnalyzer binds an Analyzer to a graph/model pair.
func NewAnalyzer(g *TaskGraph, m *platform.Model) *Analyzer {
	return &Analyzer{g: g, m: m}
}

// AEC is the average execution cost: amount / mean_speed.
func (a *Analyzer) AEC(t *Task) float64 {
	return t.Amount / a.m.MeanSpeed()
}

// reverseTopological returns the topological order reversed, i.e.
// children-before-parents, needed by every upward (sink-to-source) pass.
func (a *Analyzer) reverseTopological() []*Task {
	order := a.g.TopologicalOrder()
	rev := make([]*Task, len(order))
	for i, t := range order {
		rev[len(order)-1-i] = t
	}
	return rev
}

// Ranku computes the HEFT upward rank for every task, keyed by handle.
func (a *Analyzer) Ranku() []float64 {
	ranku := make([]float64, a.g.NumTasks())
	meanBW, meanLat := a.m.MeanBandwidth(), a.m.MeanLatency()
	for _, t := range a.reverseTopological() {
		children := a.g.Children(t)
		if len(children) == 0 {
			ranku[t.Handle] = a.AEC(t)
			continue
		}
		best := math.Inf(-1)
		for _, e := range children {
			commCost := 0.0
			if meanBW > 0 {
				commCost = e.Weight/meanBW + meanLat
			}
			cand := commCost + ranku[e.To.Handle]
			if cand > best {
				best = cand
			}
		}
		ranku[t.Handle] = a.AEC(t) + best
	}
	return ranku
}

// StaticLevel computes DLS's static level: sl(t) = aec(t) +
// max_over_children(sl(child)).
func (a *Analyzer) StaticLevel() []float64 {
	sl := make([]float64, a.g.NumTasks())
	for _, t := range a.reverseTopological() {
		children := a.g.Children(t)
		if len(children) == 0 {
			sl[t.Handle] = a.AEC(t)
			continue
		}
		best := math.Inf(-1)
		for _, e := range children {
			if sl[e.To.Handle] > best {
				best = sl[e.To.Handle]
			}
		}
		sl[t.Handle] = a.AEC(t) + best
	}
	return sl
}

// AESTALST returns the per-task AEST (forward pass) and ALST (reverse
// pass) used by HCPT's critical-path selection.
func (a *Analyzer) AESTALST() (aest, alst []float64) {
	n := a.g.NumTasks()
	aest = make([]float64, n)
	alst = make([]float64, n)
	meanBW, meanLat := a.m.MeanBandwidth(), a.m.MeanLatency()

	order := a.g.TopologicalOrder()
	for _, t := range order {
		parents := a.g.Parents(t)
		best := 0.0
		for _, e := range parents {
			commCost := 0.0
			if meanBW > 0 {
				commCost = e.Weight/meanBW + meanLat
			}
			cand := aest[e.From.Handle] + a.AEC(e.From) + commCost
			if cand > best {
				best = cand
			}
		}
		aest[t.Handle] = best
	}

	// ALST: reverse pass, initialised from the end task's AEST+AEC (the
	// predicted makespan), propagated backward as the latest a task may
	// start without delaying any successor's ALST.
	end := a.g.End
	makespan := aest[end.Handle] + a.AEC(end)
	for _, t := range order {
		alst[t.Handle] = makespan
	}
	for _, t := range a.reverseTopological() {
		children := a.g.Children(t)
		if len(children) == 0 {
			alst[t.Handle] = makespan - a.AEC(t)
			continue
		}
		best := math.Inf(1)
		for _, e := range children {
			commCost := 0.0
			if meanBW > 0 {
				commCost = e.Weight/meanBW + meanLat
			}
			cand := alst[e.To.Handle] - commCost
			if cand < best {
				best = cand
			}
		}
		alst[t.Handle] = best - a.AEC(t)
	}
	return aest, alst
}

// CriticalPathTolerance is the absolute tolerance used to decide AEST ≈
// ALST membership in the critical path.
const CriticalPathTolerance = 1e-9

// IsCritical reports whether a task's AEST and ALST are equal within
// CriticalPathTolerance.
func IsCritical(aestT, alstT float64) bool {
	return math.Abs(aestT-alstT) <= CriticalPathTolerance
}

// OCT computes the PEFT optimistic cost table: oct[taskHandle][hostHandle].
func (a *Analyzer) OCT() [][]float64 {
	numHosts := a.m.NumHosts()
	oct := make([][]float64, a.g.NumTasks())
	for i := range oct {
		oct[i] = make([]float64, numHosts)
	}
	meanBW, meanLat := a.m.MeanBandwidth(), a.m.MeanLatency()

	for _, t := range a.reverseTopological() {
		children := a.g.Children(t)
		if len(children) == 0 {
			continue // zero row for the sink, already zero-valued
		}
		for h := 0; h < numHosts; h++ {
			best := math.Inf(-1)
			for _, e := range children {
				c := e.To
				innerBest := math.Inf(1)
				for hp := 0; hp < numHosts; hp++ {
					commCost := 0.0
					if hp != h && meanBW > 0 {
						commCost = e.Weight/meanBW + meanLat
					}
					cand := oct[c.Handle][hp] + a.m.EET(c.Amount, hp) + commCost
					if cand < innerBest {
						innerBest = cand
					}
				}
				if innerBest > best {
					best = innerBest
				}
			}
			oct[t.Handle][h] = best
		}
	}
	return oct
}

// OCTRank averages the OCT row for each task across all hosts; used as
// PEFT's per-task priority.
func OCTRank(oct [][]float64) []float64 {
	rank := make([]float64, len(oct))
	for i, row := range oct {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if len(row) > 0 {
			rank[i] = sum / float64(len(row))
		}
	}
	return rank
}

// HostDAG is a per-host private copy of the task graph's edge structure,
// used by LDCP to compute URank and to perform its graph rewrites.
// It shares task identity by handle with the owning
// TaskGraph; only the edge set (including temporary bookkeeping edges)
// is copied.
type HostDAG struct {
	g          *TaskGraph
	hostHandle int
	m          *platform.Model

	size     []float64         // per-task execution time on this host's private view
	children map[int][]ldcpEdge
	parents  map[int][]ldcpEdge
	urank    []float64

	// temporaryFrom tracks the single set of temporary ordering edges
	// emanating from the most-recently-scheduled task on this host, so a
	// subsequent refresh can remove exactly the prior set before adding
	// the new one, removing the previous such transitive edge if any.
	temporaryFrom int
	temporaryTo   map[int]bool
}

type ldcpEdge struct {
	to        int
	weight    float64
	temporary bool
}

// NewHostDAG builds the private per-host DAG copy for hostHandle, with
// each task's size initialised to amount/speed[hostHandle].
func NewHostDAG(g *TaskGraph, m *platform.Model, hostHandle int) *HostDAG {
	d := &HostDAG{
		g:             g,
		hostHandle:    hostHandle,
		m:             m,
		size:          make([]float64, g.NumTasks()),
		children:      make(map[int][]ldcpEdge, g.NumTasks()),
		parents:       make(map[int][]ldcpEdge, g.NumTasks()),
		urank:         make([]float64, g.NumTasks()),
		temporaryFrom: -1,
		temporaryTo:   make(map[int]bool),
	}
	for _, t := range g.Tasks() {
		d.size[t.Handle] = m.EET(t.Amount, hostHandle)
		for _, e := range g.Children(t) {
			d.children[t.Handle] = append(d.children[t.Handle], ldcpEdge{to: e.To.Handle, weight: e.Weight})
			d.parents[e.To.Handle] = append(d.parents[e.To.Handle], ldcpEdge{to: t.Handle, weight: e.Weight})
		}
	}
	d.recomputeURank()
	return d
}

// SetSize overrides a task's execution time on this host's view, used
// once the task is actually placed on the owning host.
func (d *HostDAG) SetSize(taskHandle int, value float64) {
	d.size[taskHandle] = value
}

// ZeroEdge zeroes the communication cost between two already co-located
// tasks that are now co-located on the same host.
func (d *HostDAG) ZeroEdge(from, to int) {
	for i := range d.children[from] {
		if d.children[from][i].to == to {
			d.children[from][i].weight = 0
		}
	}
	for i := range d.parents[to] {
		if d.parents[to][i].to == from {
			d.parents[to][i].weight = 0
		}
	}
}

// AddOrderingEdge adds a zero-weight synthetic edge enforcing from runs
// before to on this host, replacing the previous transitive ordering
// edge issued from the same source if any. Removal happens strictly
// before the new edge is added, and the
// call is rejected if it would create a cycle.
func (d *HostDAG) AddOrderingEdge(from, to int) error {
	if d.reaches(to, from) {
		return errCycle
	}
	if d.temporaryFrom == from {
		for oldTo := range d.temporaryTo {
			d.removeEdge(from, oldTo)
		}
	}
	d.temporaryFrom = from
	d.temporaryTo = map[int]bool{to: true}
	d.children[from] = append(d.children[from], ldcpEdge{to: to, weight: 0, temporary: true})
	d.parents[to] = append(d.parents[to], ldcpEdge{to: from, weight: 0, temporary: true})
	d.recomputeURankFromScheduled()
	return nil
}

// RefreshTemporaryEdges replaces the set of temporary edges emanating
// from the last scheduled task with fresh edges to every schedulable
// task that is not already a successor of it.
func (d *HostDAG) RefreshTemporaryEdges(from int, schedulableNotSuccessors []int) {
	for oldTo := range d.temporaryTo {
		d.removeEdge(from, oldTo)
	}
	d.temporaryFrom = from
	d.temporaryTo = make(map[int]bool, len(schedulableNotSuccessors))
	for _, to := range schedulableNotSuccessors {
		if d.reaches(to, from) {
			continue // would create a cycle; skip rather than abort the batch
		}
		d.temporaryTo[to] = true
		d.children[from] = append(d.children[from], ldcpEdge{to: to, weight: 0, temporary: true})
		d.parents[to] = append(d.parents[to], ldcpEdge{to: from, weight: 0, temporary: true})
	}
	d.recomputeURankFromScheduled()
}

func (d *HostDAG) removeEdge(from, to int) {
	d.children[from] = removeLdcpEdge(d.children[from], to)
	d.parents[to] = removeLdcpEdge(d.parents[to], from)
}

func removeLdcpEdge(edges []ldcpEdge, to int) []ldcpEdge {
	out := edges[:0]
	for _, e := range edges {
		if e.to != to {
			out = append(out, e)
		}
	}
	return out
}

// reaches reports whether there is a path from `from` to `to` in the
// current edge set (used for the cycle guard before adding an edge).
func (d *HostDAG) reaches(from, to int) bool {
	if from == to {
		return true
	}
	visited := make(map[int]bool)
	var stack []int
	stack = append(stack, from)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, e := range d.children[n] {
			if e.to == to {
				return true
			}
			stack = append(stack, e.to)
		}
	}
	return false
}

// URank returns the current upward rank of taskHandle on this host.
func (d *HostDAG) URank(taskHandle int) float64 { return d.urank[taskHandle] }

// HostEdge is the exported view of a HostDAG edge, used by algorithms
// (LDCP) that need to walk the per-host edge set without reaching into
// HostDAG's internal bookkeeping.
type HostEdge struct {
	To        int
	Weight    float64
	Temporary bool
}

// ChildEdges returns taskHandle's outgoing edges in this host's DAG.
func (d *HostDAG) ChildEdges(taskHandle int) []HostEdge {
	edges := d.children[taskHandle]
	out := make([]HostEdge, len(edges))
	for i, e := range edges {
		out[i] = HostEdge{To: e.to, Weight: e.weight, Temporary: e.temporary}
	}
	return out
}

// ParentEdges returns taskHandle's incoming edges in this host's DAG.
func (d *HostDAG) ParentEdges(taskHandle int) []HostEdge {
	edges := d.parents[taskHandle]
	out := make([]HostEdge, len(edges))
	for i, e := range edges {
		out[i] = HostEdge{To: e.to, Weight: e.weight, Temporary: e.temporary}
	}
	return out
}

func (d *HostDAG) recomputeURank() {
	meanBW := d.m.MeanBandwidth()
	order := d.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		children := d.children[t]
		if len(children) == 0 {
			d.urank[t] = d.size[t]
			continue
		}
		best := math.Inf(-1)
		for _, e := range children {
			commCost := 0.0
			if meanBW > 0 {
				commCost = e.weight / meanBW
			}
			cand := commCost + d.urank[e.to]
			if cand > best {
				best = cand
			}
		}
		d.urank[t] = d.size[t] + best
	}
}

// recomputeURankFromScheduled recomputes URank for every task in the DAG,
// which covers the already-scheduled ones. Callers track "scheduled"
// externally, so HostDAG does not restrict the pass to them; the full
// recompute is topologically correct to re-run since it is pure and
// idempotent — LDCP calls this
// after every placement on a graph that shrinks monotonically in
// practice, so the cost stays bounded by the workflow size, not by the
// number of scheduling steps.
func (d *HostDAG) recomputeURankFromScheduled() {
	d.recomputeURank()
}

func (d *HostDAG) topoOrder() []int {
	n := len(d.size)
	indeg := make([]int, n)
	for _, edges := range d.children {
		for _, e := range edges {
			indeg[e.to]++
		}
	}
	var frontier []int
	for h := 0; h < n; h++ {
		if indeg[h] == 0 {
			frontier = append(frontier, h)
		}
	}
	order := make([]int, 0, n)
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)
		for _, e := range d.children[next] {
			indeg[e.to]--
			if indeg[e.to] == 0 {
				frontier = append(frontier, e.to)
			}
		}
	}
	return order
}

var errCycle = cycleError{}

type cycleError struct{}

func (cycleError) Error() string { return "graph: rewrite would introduce a cycle" }

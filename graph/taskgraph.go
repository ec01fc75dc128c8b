package graph

import (
	"fmt"
	"sort"

	"github.com/swarmguard/dagsched/internal/indexset"
	"github.com/swarmguard/dagsched/schederr"
)

// Edge is a data transfer between a unique producer and a unique
// consumer, annotated with the number of bytes carried. Weight is 0 for
// control-only edges.
type Edge struct {
	From, To *Task
	Weight   float64
}

// TaskGraph is the folded representation where vertices are
// computation tasks, edges carry the byte weight of the communication
// task they replace. There is exactly one root and one end after Build
// returns successfully.
type TaskGraph struct {
	tasks    []*Task
	handles  *indexset.Table
	children map[int][]Edge // by task handle
	parents  map[int][]Edge

	Root *Task
	End  *Task
}

// TrueRootName and TrueEndName are the synthetic boundary names inserted
// when a source workflow has more than one root or more than one sink;
// they carry zero work and connect via zero-weight edges.
const (
	TrueRootName = "TRUE_ROOT"
	TrueEndName  = "TRUE_END"
)

// Build validates and folds a raw task/edge set into a TaskGraph. If the
// input has multiple roots (tasks with no parents) or multiple sinks
// (tasks with no children), synthetic TRUE_ROOT/TRUE_END tasks are
// inserted with zero-weight edges to reconcile them into single
// boundaries, mirroring Taskflow's `_construct_connection_matrix`
// handling of multi-root/multi-end inputs.
func Build(tasks []*Task, edges []Edge) (*TaskGraph, error) {
	if len(tasks) == 0 {
		return nil, schederr.NewGraphError("graph: empty task set", schederr.Fields{Task: -1, Host: -1})
	}
	byName := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byName[t.Name]; dup {
			return nil, schederr.NewGraphError(
				fmt.Sprintf("graph: duplicate task name %q", t.Name),
				schederr.Fields{Task: -1, Host: -1, Names: []string{t.Name}})
		}
		byName[t.Name] = t
	}

	indeg := make(map[string]int, len(tasks))
	outdeg := make(map[string]int, len(tasks))
	for _, t := range tasks {
		indeg[t.Name] = 0
		outdeg[t.Name] = 0
	}
	for _, e := range edges {
		if _, ok := byName[e.From.Name]; !ok {
			return nil, schederr.NewGraphError(
				fmt.Sprintf("graph: edge references unknown task %q", e.From.Name),
				schederr.Fields{Task: -1, Host: -1, Names: []string{e.From.Name}})
		}
		if _, ok := byName[e.To.Name]; !ok {
			return nil, schederr.NewGraphError(
				fmt.Sprintf("graph: edge references unknown task %q", e.To.Name),
				schederr.Fields{Task: -1, Host: -1, Names: []string{e.To.Name}})
		}
		indeg[e.To.Name]++
		outdeg[e.From.Name]++
	}

	var roots, ends []*Task
	for _, t := range tasks {
		if indeg[t.Name] == 0 {
			roots = append(roots, t)
		}
		if outdeg[t.Name] == 0 {
			ends = append(ends, t)
		}
	}
	sortByName(roots)
	sortByName(ends)

	allTasks := append([]*Task{}, tasks...)
	allEdges := append([]Edge{}, edges...)

	var root *Task
	switch {
	case len(roots) == 1 && roots[0].Name == RootName:
		root = roots[0]
	case len(roots) == 1:
		root = roots[0]
	default:
		root = &Task{Name: TrueRootName, Kind: Computation, Amount: 0}
		allTasks = append(allTasks, root)
		for _, r := range roots {
			allEdges = append(allEdges, Edge{From: root, To: r, Weight: 0})
		}
	}

	var end *Task
	switch {
	case len(ends) == 1 && ends[0].Name == EndName:
		end = ends[0]
	case len(ends) == 1:
		end = ends[0]
	default:
		end = &Task{Name: TrueEndName, Kind: Computation, Amount: 0}
		allTasks = append(allTasks, end)
		for _, e := range ends {
			allEdges = append(allEdges, Edge{From: e, To: end, Weight: 0})
		}
	}

	idx := indexset.New(len(allTasks))
	for _, t := range allTasks {
		t.Handle = idx.Assign(t.Name)
	}

	g := &TaskGraph{
		tasks:    allTasks,
		handles:  idx,
		children: make(map[int][]Edge, len(allTasks)),
		parents:  make(map[int][]Edge, len(allTasks)),
		Root:     root,
		End:      end,
	}
	for _, e := range allEdges {
		g.children[e.From.Handle] = append(g.children[e.From.Handle], e)
		g.parents[e.To.Handle] = append(g.parents[e.To.Handle], e)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func sortByName(ts []*Task) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
}

// Tasks returns all vertices (including any synthetic boundaries) in
// handle order.
func (g *TaskGraph) Tasks() []*Task {
	out := make([]*Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

// Children returns the outgoing edges of t.
func (g *TaskGraph) Children(t *Task) []Edge { return g.children[t.Handle] }

// Parents returns the incoming edges of t.
func (g *TaskGraph) Parents(t *Task) []Edge { return g.parents[t.Handle] }

// NumTasks returns the vertex count.
func (g *TaskGraph) NumTasks() int { return len(g.tasks) }

// ByHandle returns the task owning handle, used by algorithms (LDCP) that
// carry handles rather than *Task across their own bookkeeping structures.
func (g *TaskGraph) ByHandle(handle int) *Task { return g.tasks[handle] }

func (g *TaskGraph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.tasks))
	var visit func(t *Task) error
	visit = func(t *Task) error {
		color[t.Handle] = gray
		for _, e := range g.children[t.Handle] {
			switch color[e.To.Handle] {
			case gray:
				return schederr.NewGraphError(
					fmt.Sprintf("graph: cycle detected through task %q", e.To.Name),
					schederr.Fields{Task: e.To.Handle, Host: -1, Names: []string{e.To.Name}})
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		color[t.Handle] = black
		return nil
	}
	for _, t := range g.tasks {
		if color[t.Handle] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns a deterministic topological order of the
// graph: Kahn's algorithm with the ready frontier broken by task name at
// every step, so ties never depend on map iteration order.
func (g *TaskGraph) TopologicalOrder() []*Task {
	indeg := make([]int, len(g.tasks))
	for _, t := range g.tasks {
		for _, e := range g.children[t.Handle] {
			indeg[e.To.Handle]++
		}
	}
	var frontier []*Task
	for _, t := range g.tasks {
		if indeg[t.Handle] == 0 {
			frontier = append(frontier, t)
		}
	}
	sortByName(frontier)

	order := make([]*Task, 0, len(g.tasks))
	for len(frontier) > 0 {
		sortByName(frontier)
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)
		for _, e := range g.children[next.Handle] {
			indeg[e.To.Handle]--
			if indeg[e.To.Handle] == 0 {
				frontier = append(frontier, e.To)
			}
		}
	}
	return order
}

package static

import (
	"math/rand"
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schedstate"
)

// RoundRobinStatic assigns tasks, visited in topological order, to hosts
// by cycling through them index-mod-host-count. Hosts are ordered by name
// so the assignment is reproducible across runs independent of handle
// allocation order.
func RoundRobinStatic(g *graph.TaskGraph, m *platform.Model) (*Result, error) {
	order := g.TopologicalOrder()
	hosts := hostsByName(m)
	state := schedstate.New(m.NumHosts(), g.NumTasks())
	i := 0
	for _, t := range order {
		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			continue
		}
		h := hosts[i%len(hosts)]
		i++
		if err := insertAssigned(g, m, state, t, h); err != nil {
			return nil, err
		}
	}
	return finalizeResult(state), nil
}

// RandomStatic assigns tasks, visited in topological order, to a host
// chosen uniformly at random from a seeded source, so the same seed
// always reproduces the same schedule.
func RandomStatic(g *graph.TaskGraph, m *platform.Model, seed int64) (*Result, error) {
	order := g.TopologicalOrder()
	hosts := hostsByName(m)
	rng := rand.New(rand.NewSource(seed))
	state := schedstate.New(m.NumHosts(), g.NumTasks())
	for _, t := range order {
		if t.IsBoundary() && t.Amount == 0 && scheduleBoundaryTask(state, m, t) {
			continue
		}
		h := hosts[rng.Intn(len(hosts))]
		if err := insertAssigned(g, m, state, t, h); err != nil {
			return nil, err
		}
	}
	return finalizeResult(state), nil
}

// hostsByName returns every host handle sorted by host name, giving
// both round-robin and random placement a deterministic host ordering.
func hostsByName(m *platform.Model) []int {
	hosts := allHosts(m)
	sort.Slice(hosts, func(i, j int) bool { return m.HostName(hosts[i]) < m.HostName(hosts[j]) })
	return hosts
}

// insertAssigned computes (est, eet) for t on a pre-chosen host and
// commits it via gap-aware insertion, used by the algorithms that choose
// a target host by rule rather than by minimising a cost metric.
func insertAssigned(g *graph.TaskGraph, m *platform.Model, state *schedstate.State, t *graph.Task, host int) error {
	parents, err := parentPlacements(g, state, t)
	if err != nil {
		return err
	}
	est := m.EST(host, parents)
	eet := m.EET(t.Amount, host)
	state.Insert(t.Handle, host, est, eet)
	return nil
}

package dynamic

import (
	"context"
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/simulator"
)

// MCT is the dynamic Minimum Completion Time scheduler: every task that
// just became schedulable is dispatched to the currently-free host
// minimising actual completion time (current clock plus communication
// from its parents' real placements plus execution time).
type MCT struct {
	g   *graph.TaskGraph
	m   *platform.Model
	occ *occupancy
}

func NewMCT() *MCT { return &MCT{} }

func (s *MCT) Prepare(g *graph.TaskGraph, m *platform.Model) {
	s.g, s.m = g, m
	s.occ = newOccupancy(m.NumHosts())
}

func (s *MCT) OnEvent(ctx context.Context, sim simulator.Adapter, changed []*graph.Task) error {
	s.occ.update(s.m, changed)
	ready := schedulableTasks(changed)
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name < ready[j].Name })

	for _, t := range ready {
		free := s.occ.freeHosts()
		if len(free) == 0 {
			return nil
		}
		host := s.bestFreeHost(sim.Clock(), t, free)
		if err := dispatch(sim, s.m, t, host); err != nil {
			return err
		}
		s.occ.markBusy(host)
	}
	return nil
}

func (s *MCT) bestFreeHost(clock float64, t *graph.Task, free []int) int {
	parents := actualParentPlacements(s.g, s.m, t)
	best, bestFinish := free[0], -1.0
	for _, h := range free {
		est := s.m.EST(h, parents)
		if est < clock {
			est = clock
		}
		finish := est + s.m.EET(t.Amount, h)
		if bestFinish < 0 || finish < bestFinish ||
			(finish == bestFinish && hostTieBreak(s.m, h, best)) {
			best, bestFinish = h, finish
		}
	}
	return best
}

func hostTieBreak(m *platform.Model, a, b int) bool {
	as, bs := m.Speed(a), m.Speed(b)
	if as != bs {
		return as > bs
	}
	return m.HostName(a) < m.HostName(b)
}

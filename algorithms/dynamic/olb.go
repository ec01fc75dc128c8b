package dynamic

import (
	"context"
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/simulator"
)

// OLB is the dynamic counterpart of the static baseline: every task that
// just became schedulable is dispatched to the fastest currently-free
// host, ignoring communication entirely. If fewer hosts are free than
// tasks are ready, the leftover tasks wait for the next wakeup.
type OLB struct {
	g   *graph.TaskGraph
	m   *platform.Model
	occ *occupancy
}

func NewOLB() *OLB { return &OLB{} }

func (s *OLB) Prepare(g *graph.TaskGraph, m *platform.Model) {
	s.g, s.m = g, m
	s.occ = newOccupancy(m.NumHosts())
}

func (s *OLB) OnEvent(ctx context.Context, sim simulator.Adapter, changed []*graph.Task) error {
	s.occ.update(s.m, changed)
	ready := schedulableTasks(changed)
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name < ready[j].Name })

	for _, t := range ready {
		free := s.occ.freeHosts()
		if len(free) == 0 {
			return nil
		}
		host := fastestHost(s.m, free)
		if err := dispatch(sim, s.m, t, host); err != nil {
			return err
		}
		s.occ.markBusy(host)
	}
	return nil
}

// fastestHost picks, from candidates, the one with the highest speed,
// tie-broken by name.
func fastestHost(m *platform.Model, candidates []int) int {
	best := candidates[0]
	for _, h := range candidates[1:] {
		bs, hs := m.Speed(best), m.Speed(h)
		if hs > bs || (hs == bs && m.HostName(h) < m.HostName(best)) {
			best = h
		}
	}
	return best
}

package dynamic

import (
	"context"
	"math"
	"sort"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/simulator"
)

type batchKey int

const (
	minMinKey batchKey = iota
	maxMinKey
	sufferageKey
)

// Batch is the dynamic counterpart of the static MinMin/MaxMin/Sufferage
// family: at every wakeup it re-scores the whole set of schedulable
// tasks seen so far against the real clock, dispatches whichever ones
// have a currently-free target host, and leaves the rest cached in
// waiting to be re-scored alongside whatever becomes schedulable next.
type Batch struct {
	g       *graph.TaskGraph
	m       *platform.Model
	occ     *occupancy
	key     batchKey
	waiting map[int]*graph.Task
}

func NewMinMin() *Batch    { return &Batch{key: minMinKey} }
func NewMaxMin() *Batch    { return &Batch{key: maxMinKey} }
func NewSufferage() *Batch { return &Batch{key: sufferageKey} }

func (s *Batch) Prepare(g *graph.TaskGraph, m *platform.Model) {
	s.g, s.m = g, m
	s.occ = newOccupancy(m.NumHosts())
	s.waiting = make(map[int]*graph.Task)
}

func (s *Batch) OnEvent(ctx context.Context, sim simulator.Adapter, changed []*graph.Task) error {
	s.occ.update(s.m, changed)
	for _, t := range schedulableTasks(changed) {
		s.waiting[t.Handle] = t
	}
	if len(s.waiting) == 0 {
		return nil
	}

	clock := sim.Clock()
	batch := make([]*graph.Task, 0, len(s.waiting))
	for _, t := range s.waiting {
		batch = append(batch, t)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Name < batch[j].Name })

	for len(batch) > 0 {
		cands := make([]batchCandidate, len(batch))
		for i, t := range batch {
			cands[i] = s.score(clock, t)
		}
		idx := pickBatchTask(batch, cands, s.key)
		t, c := batch[idx], cands[idx]

		if s.occ.isFree(c.host) {
			if err := dispatch(sim, s.m, t, c.host); err != nil {
				return err
			}
			s.occ.markBusy(c.host)
			delete(s.waiting, t.Handle)
		}
		batch = append(batch[:idx], batch[idx+1:]...)
	}
	return nil
}

type batchCandidate struct {
	host         int
	best, second float64
}

// score computes, over every host (not just free ones — the target host
// is chosen first, free-ness only gates whether it dispatches this
// round), the best and second-best completion time from the real clock.
func (s *Batch) score(clock float64, t *graph.Task) batchCandidate {
	parents := actualParentPlacements(s.g, s.m, t)
	best, second := math.Inf(1), math.Inf(1)
	bestHost := -1
	for h := 0; h < s.m.NumHosts(); h++ {
		est := s.m.EST(h, parents)
		if est < clock {
			est = clock
		}
		finish := est + s.m.EET(t.Amount, h)
		if bestHost == -1 || finish < best || (finish == best && hostTieBreak(s.m, h, bestHost)) {
			second = best
			best, bestHost = finish, h
		} else if finish < second {
			second = finish
		}
	}
	return batchCandidate{host: bestHost, best: best, second: second}
}

func pickBatchTask(batch []*graph.Task, cands []batchCandidate, key batchKey) int {
	best := 0
	for i := 1; i < len(batch); i++ {
		if batchBetter(batch[i], cands[i], batch[best], cands[best], key) {
			best = i
		}
	}
	return best
}

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
			if ca.best != cb.best {
				return ca.best < cb.best
			}
		case sa != sb:
			return sa > sb
		}
	}
	return ta.Name < tb.Name
}

// Package dynamic implements the online counterparts of the static
// algorithms (C6): schedulers driven by a prepare/react protocol against
// simulator events rather than computing a full schedule up front.
package dynamic

import (
	"context"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/simulator"
)

// Scheduler is the capability every dynamic algorithm implements: bind
// once to the workflow/platform pair, then react to each batch of
// simulator events by dispatching whatever placements it decides on.
type Scheduler interface {
	Prepare(g *graph.TaskGraph, m *platform.Model)
	OnEvent(ctx context.Context, sim simulator.Adapter, changed []*graph.Task) error
}

// occupancy tracks, per host, whether a task is currently running there.
// Dynamic schedulers only ever dispatch to a host occupancy reports free;
// a host is marked busy when a task is dispatched to it (markBusy) or
// reported Running, and free again when that task is reported Done or
// Failed through Simulate.
type occupancy struct {
	busy []bool
}

func newOccupancy(numHosts int) *occupancy {
	return &occupancy{busy: make([]bool, numHosts)}
}

func (o *occupancy) update(m *platform.Model, changed []*graph.Task) {
	for _, t := range changed {
		if t.Host == "" {
			continue
		}
		h, ok := m.HostHandle(t.Host)
		if !ok {
			continue
		}
		switch t.State {
		case graph.Running:
			o.busy[h] = true
		case graph.Done, graph.Failed:
			o.busy[h] = false
		}
	}
}

func (o *occupancy) markBusy(h int) { o.busy[h] = true }

func (o *occupancy) isFree(h int) bool { return !o.busy[h] }

// freeHosts returns every host currently not running a task.
func (o *occupancy) freeHosts() []int {
	var free []int
	for h, b := range o.busy {
		if !b {
			free = append(free, h)
		}
	}
	return free
}

// schedulableTasks filters changed down to the ones that just became
// schedulable, which is all a dynamic scheduler ever needs to place.
func schedulableTasks(changed []*graph.Task) []*graph.Task {
	var out []*graph.Task
	for _, t := range changed {
		if t.State == graph.Schedulable {
			out = append(out, t)
		}
	}
	return out
}

// actualParentPlacements builds the ParentPlacement view PlatformModel.EST
// needs directly from each parent's recorded Host/Finish fields — the
// dynamic schedulers have no SchedulerState of their own, only what the
// simulator has actually committed to.
func actualParentPlacements(g *graph.TaskGraph, m *platform.Model, t *graph.Task) []platform.ParentPlacement {
	parents := g.Parents(t)
	out := make([]platform.ParentPlacement, 0, len(parents))
	for _, e := range parents {
		if e.From.Host == "" {
			continue
		}
		h, ok := m.HostHandle(e.From.Host)
		if !ok {
			continue
		}
		out = append(out, platform.ParentPlacement{
			HostHandle: h,
			ECT:        e.From.Finish,
			EdgeWeight: e.Weight,
		})
	}
	return out
}

// dispatch assigns task to the named host through sim, watching it
// through to completion so the driving loop learns when the host frees
// back up.
func dispatch(sim simulator.Adapter, m *platform.Model, task *graph.Task, host int) error {
	h := &platform.Host{Name: m.HostName(host), Speed: m.Speed(host)}
	if err := sim.Schedule(task, h); err != nil {
		return err
	}
	sim.Watch(task, graph.Running)
	sim.Watch(task, graph.Done)
	return nil
}

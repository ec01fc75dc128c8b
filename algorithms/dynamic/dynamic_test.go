package dynamic

import (
	"context"
	"math"
	"testing"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/internal/simref"
	"github.com/swarmguard/dagsched/platform"
)

func fanOutGraph(t *testing.T) *graph.TaskGraph {
	t.Helper()
	a := &graph.Task{Name: "a", Amount: 10}
	b := &graph.Task{Name: "b", Amount: 10}
	c := &graph.Task{Name: "c", Amount: 10}
	d := &graph.Task{Name: "d", Amount: 10}
	g, err := graph.Build(
		[]*graph.Task{a, b, c, d},
		[]graph.Edge{
			{From: a, To: b, Weight: 50},
			{From: a, To: c, Weight: 50},
			{From: b, To: d, Weight: 50},
			{From: c, To: d, Weight: 50},
		},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func twoHostPlatform(t *testing.T) (*platform.Model, []*platform.Host) {
	t.Helper()
	hosts := []*platform.Host{
		{Name: "h0", Speed: 1},
		{Name: "h1", Speed: 2},
	}
	m, err := platform.Build(hosts, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 20, 0.1
	})
	if err != nil {
		t.Fatalf("platform.Build: %v", err)
	}
	return m, hosts
}

func runToQuiescence(t *testing.T, sim *simref.Simulator, g *graph.TaskGraph, s Scheduler) {
	t.Helper()
	for _, task := range g.Tasks() {
		sim.Watch(task, graph.Schedulable)
	}
	for {
		changed, err := sim.Simulate(context.Background(), math.Inf(1))
		if err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		if len(changed) == 0 {
			return
		}
		if err := s.OnEvent(context.Background(), sim, changed); err != nil {
			t.Fatalf("OnEvent: %v", err)
		}
	}
}

func TestOLBDispatchesEveryTaskToCompletion(t *testing.T) {
	g := fanOutGraph(t)
	m, hosts := twoHostPlatform(t)
	sim := simref.New(hosts, g, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 20, 0.1
	})

	s := NewOLB()
	s.Prepare(g, m)
	runToQuiescence(t, sim, g, s)

	for _, task := range g.Tasks() {
		if task.State != graph.Done {
			t.Fatalf("task %q ended in state %v, want Done", task.Name, task.State)
		}
	}
}

func TestMCTPrefersTheFasterFreeHost(t *testing.T) {
	g := fanOutGraph(t)
	m, hosts := twoHostPlatform(t)
	sim := simref.New(hosts, g, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 20, 0.1
	})

	s := NewMCT()
	s.Prepare(g, m)
	runToQuiescence(t, sim, g, s)

	var a *graph.Task
	for _, task := range g.Tasks() {
		if task.Name == "a" {
			a = task
		}
		if task.State != graph.Done {
			t.Fatalf("task %q ended in state %v, want Done", task.Name, task.State)
		}
	}
	if a.Host != "h1" {
		t.Fatalf("a.Host = %q, want the faster host h1 (no contention at t=0)", a.Host)
	}
}

func TestFastestHostTieBreaksByName(t *testing.T) {
	hosts := []*platform.Host{{Name: "h0", Speed: 2}, {Name: "h1", Speed: 2}}
	m, err := platform.Build(hosts, func(a, b *platform.Host) (float64, float64) { return 10, 0 })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h0, _ := m.HostHandle("h0")
	h1, _ := m.HostHandle("h1")
	if got := fastestHost(m, []int{h1, h0}); got != h0 {
		t.Fatalf("fastestHost tie = %d, want h0's handle %d", got, h0)
	}
}

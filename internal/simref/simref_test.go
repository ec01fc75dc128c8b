package simref

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
)

func chain(t *testing.T) (*graph.TaskGraph, *graph.Task, *graph.Task) {
	t.Helper()
	a := &graph.Task{Name: "a", Amount: 10}
	b := &graph.Task{Name: "b", Amount: 10}
	g, err := graph.Build([]*graph.Task{a, b}, []graph.Edge{{From: a, To: b, Weight: 100}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var ta, tb *graph.Task
	for _, task := range g.Tasks() {
		switch task.Name {
		case "a":
			ta = task
		case "b":
			tb = task
		}
	}
	return g, ta, tb
}

// fanOut builds root -> {a, b, c} -> end, a single-root single-sink
// graph, so Build never needs to insert synthetic boundary tasks.
func fanOut(t *testing.T) (g *graph.TaskGraph, root, a, b, c, end *graph.Task) {
	t.Helper()
	root = &graph.Task{Name: graph.RootName, Amount: 0}
	a = &graph.Task{Name: "a", Amount: 5}
	b = &graph.Task{Name: "b", Amount: 5}
	c = &graph.Task{Name: "c", Amount: 5}
	end = &graph.Task{Name: graph.EndName, Amount: 0}
	var err error
	g, err = graph.Build(
		[]*graph.Task{root, a, b, c, end},
		[]graph.Edge{
			{From: root, To: a},
			{From: root, To: b},
			{From: root, To: c},
			{From: a, To: end},
			{From: b, To: end},
			{From: c, To: end},
		},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	byName := map[string]*graph.Task{}
	for _, task := range g.Tasks() {
		byName[task.Name] = task
	}
	return g, byName[graph.RootName], byName["a"], byName["b"], byName["c"], byName[graph.EndName]
}

func fixedRoute(bandwidth, latency float64) RouteFunc {
	return func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return bandwidth, latency
	}
}

func drain(t *testing.T, sim *Simulator) []*graph.Task {
	t.Helper()
	var all []*graph.Task
	for {
		changed, err := sim.Simulate(context.Background(), math.Inf(1))
		if err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		if len(changed) == 0 {
			return all
		}
		all = append(all, changed...)
	}
}

func TestRootTaskBecomesSchedulableAtTimeZero(t *testing.T) {
	g, ta, _ := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}, {Name: "h1", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))
	sim.Watch(ta, graph.Schedulable)

	changed, err := sim.Simulate(context.Background(), math.Inf(1))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(changed) != 1 || changed[0] != ta {
		t.Fatalf("Simulate() changed = %v, want [a]", changed)
	}
	if ta.State != graph.Schedulable {
		t.Fatalf("a.State = %v, want Schedulable", ta.State)
	}
}

func TestScheduleOnANotYetReadyTaskIsHeldAsAPendingAssignment(t *testing.T) {
	g, ta, tb := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))

	// b still has an unresolved dependency on a: DispatchDriver's
	// IMMEDIATE/FREE_HOST paths submit every host assignment up front
	// like this, well before most tasks are actually ready.
	if err := sim.Schedule(tb, hosts[0]); err != nil {
		t.Fatalf("Schedule b ahead of readiness: %v", err)
	}
	if tb.State == graph.Done {
		t.Fatal("b should not activate before a finishes")
	}

	drain(t, sim) // promotes a to Schedulable
	if err := sim.Schedule(ta, hosts[0]); err != nil {
		t.Fatalf("Schedule a: %v", err)
	}
	drain(t, sim) // a finishes, cascades, and should auto-activate b's pending assignment

	if tb.State != graph.Done {
		t.Fatalf("b.State = %v, want Done once its pending assignment auto-activates", tb.State)
	}
}

func TestScheduleRejectsDuplicatePendingAssignment(t *testing.T) {
	g, _, tb := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))

	if err := sim.Schedule(tb, hosts[0]); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}
	if err := sim.Schedule(tb, hosts[0]); err == nil {
		t.Fatal("expected an error scheduling the same not-yet-ready task twice")
	}
}

func TestScheduleRejectsAlreadyCommittedTask(t *testing.T) {
	g, ta, _ := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))
	drain(t, sim)

	if err := sim.Schedule(ta, hosts[0]); err != nil {
		t.Fatalf("Schedule a: %v", err)
	}
	drain(t, sim) // a runs to completion
	if err := sim.Schedule(ta, hosts[0]); err == nil {
		t.Fatal("expected an error re-scheduling an already-committed task")
	}
}

func TestCascadePromotesChildOnceEveryParentDone(t *testing.T) {
	g, ta, tb := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))
	sim.Watch(tb, graph.Schedulable)

	drain(t, sim) // promotes a (no parents) to Schedulable

	if err := sim.Schedule(ta, hosts[0]); err != nil {
		t.Fatalf("Schedule a: %v", err)
	}
	changed := drain(t, sim)

	if tb.State != graph.Schedulable {
		t.Fatalf("b.State = %v, want Schedulable once a finishes", tb.State)
	}
	found := false
	for _, c := range changed {
		if c == tb {
			found = true
		}
	}
	if !found {
		t.Fatal("b's Schedulable transition should have been reported to a watcher")
	}
}

func TestScheduleAddsCrossHostCommunicationDelay(t *testing.T) {
	g, ta, tb := chain(t)
	hostA := &platform.Host{Name: "h0", Speed: 1}
	hostB := &platform.Host{Name: "h1", Speed: 1}
	sim := New([]*platform.Host{hostA, hostB}, g, fixedRoute(10, 2))

	drain(t, sim)
	if err := sim.Schedule(ta, hostA); err != nil {
		t.Fatalf("Schedule a: %v", err)
	}

	for {
		changed, err := sim.Simulate(context.Background(), math.Inf(1))
		if err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		if len(changed) == 0 {
			break
		}
		if tb.State == graph.Schedulable {
			if err := sim.Schedule(tb, hostB); err != nil {
				t.Fatalf("Schedule b: %v", err)
			}
		}
	}

	// a finishes at t=10 (amount 10 / speed 1). Crossing hosts costs
	// weight/bandwidth + latency = 100/10 + 2 = 12, so b cannot start
	// running before t=22.
	want := 22.0
	if tb.Start < want {
		t.Fatalf("b.Start = %g, want at least %g (communication delay applied)", tb.Start, want)
	}
}

func TestLoadPlatformAndLoadWorkflowReturnThePreloadedState(t *testing.T) {
	g, _, _ := chain(t)
	hosts := []*platform.Host{{Name: "h0", Speed: 1}}
	sim := New(hosts, g, fixedRoute(10, 0))
	sim.SetRetryPolicy(3, time.Millisecond)

	got, err := sim.LoadPlatform(context.Background(), "unused.xml")
	if err != nil {
		t.Fatalf("LoadPlatform: %v", err)
	}
	if len(got) != 1 || got[0].Name != "h0" {
		t.Fatalf("LoadPlatform() = %v, want the preloaded host set", got)
	}

	gotGraph, err := sim.LoadWorkflow(context.Background(), "unused.dot")
	if err != nil {
		t.Fatalf("LoadWorkflow: %v", err)
	}
	if gotGraph != g {
		t.Fatal("LoadWorkflow should hand back the exact graph the Simulator was built with")
	}
}

func TestAddDependencyDelaysSchedulableUntilExtraParentDone(t *testing.T) {
	g, root, a, b, c, _ := fanOut(t)
	host := &platform.Host{Name: "h0", Speed: 1}
	sim := New([]*platform.Host{host}, g, fixedRoute(10, 0))

	if err := sim.AddDependency(a, c); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	drain(t, sim) // root becomes Schedulable

	if err := sim.Schedule(root, host); err != nil {
		t.Fatalf("Schedule root: %v", err)
	}
	drain(t, sim) // root finishes, cascades to a/b/c

	if b.State != graph.Schedulable {
		t.Fatalf("b.State = %v, want Schedulable once root is done", b.State)
	}
	if c.State == graph.Schedulable {
		t.Fatal("c should not be Schedulable yet: it still has an injected dependency on a")
	}

	if err := sim.Schedule(a, host); err != nil {
		t.Fatalf("Schedule a: %v", err)
	}
	drain(t, sim)

	if c.State != graph.Schedulable {
		t.Fatalf("c.State = %v, want Schedulable once its injected dependency a is done", c.State)
	}
}

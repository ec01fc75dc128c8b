package static

import (
	"testing"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schederr"
	"github.com/swarmguard/dagsched/schedstate"
)

func diamondGraph(t *testing.T) *graph.TaskGraph {
	t.Helper()
	root := &graph.Task{Name: graph.RootName, Amount: 0}
	a := &graph.Task{Name: "a", Amount: 20}
	b := &graph.Task{Name: "b", Amount: 20}
	c := &graph.Task{Name: "c", Amount: 20}
	end := &graph.Task{Name: graph.EndName, Amount: 0}
	g, err := graph.Build(
		[]*graph.Task{root, a, b, c, end},
		[]graph.Edge{
			{From: root, To: a},
			{From: root, To: b},
			{From: a, To: c, Weight: 500},
			{From: b, To: c, Weight: 500},
			{From: c, To: end},
		},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func twoHosts(t *testing.T) *platform.Model {
	t.Helper()
	hosts := []*platform.Host{
		{Name: "fast", Speed: 4},
		{Name: "slow", Speed: 1},
	}
	m, err := platform.Build(hosts, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 50, 0.2
	})
	if err != nil {
		t.Fatalf("platform.Build: %v", err)
	}
	return m
}

// allStaticAlgorithms lets every test below run the same invariant checks
// against the full family without repeating the setup per algorithm.
func allStaticAlgorithms() map[string]func(*graph.TaskGraph, *platform.Model) (*Result, error) {
	return map[string]func(*graph.TaskGraph, *platform.Model) (*Result, error){
		"HEFT":      HEFT,
		"Lookahead": Lookahead,
		"PEFT":      PEFT,
		"DLS":       DLS,
		"HCPT":      HCPT,
		"LDCP":      LDCP,
		"OLB":       OLB,
		"MCT":       MCT,
		"MinMin":    MinMin,
		"MaxMin":    MaxMin,
		"Sufferage": Sufferage,
	}
}

func TestEveryStaticAlgorithmSchedulesAllTasksWithoutOverlap(t *testing.T) {
	for name, fn := range allStaticAlgorithms() {
		name, fn := name, fn
		t.Run(name, func(t *testing.T) {
			g := diamondGraph(t)
			m := twoHosts(t)
			result, err := fn(g, m)
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			for _, task := range g.Tasks() {
				p := result.State.Placement(task.Handle)
				if !p.Scheduled {
					t.Fatalf("%s: task %q was never scheduled", name, task.Name)
				}
			}
			for h := 0; h < m.NumHosts(); h++ {
				if !result.State.Timesheet(h).Monotone() {
					t.Fatalf("%s: host %d timesheet is not monotone", name, h)
				}
			}
			if result.ExpectedMakespan != result.State.MaxTime() {
				t.Fatalf("%s: ExpectedMakespan=%g != state.MaxTime()=%g",
					name, result.ExpectedMakespan, result.State.MaxTime())
			}
		})
	}
}

func TestLookaheadNeverExceedsHEFTsMakespan(t *testing.T) {
	g := diamondGraph(t)
	m := twoHosts(t)

	heft, err := HEFT(g, m)
	if err != nil {
		t.Fatalf("HEFT: %v", err)
	}

	g2 := diamondGraph(t) // Lookahead mutates its own copy of state, but start clean regardless
	lookahead, err := Lookahead(g2, m)
	if err != nil {
		t.Fatalf("Lookahead: %v", err)
	}

	if lookahead.ExpectedMakespan > heft.ExpectedMakespan+1e-9 {
		t.Fatalf("Lookahead makespan %g exceeds HEFT's %g", lookahead.ExpectedMakespan, heft.ExpectedMakespan)
	}
}

func TestSelectBestHostTieBreaksBySpeedThenName(t *testing.T) {
	hosts := []*platform.Host{
		{Name: "b", Speed: 2},
		{Name: "a", Speed: 2},
		{Name: "c", Speed: 1},
	}
	m, err := platform.Build(hosts, func(x, y *platform.Host) (float64, float64) { return 10, 0 })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ha, _ := m.HostHandle("a")
	hb, _ := m.HostHandle("b")
	hc, _ := m.HostHandle("c")

	best := SelectBestHost(m, []HostCandidate{
		{Handle: ha, Primary: 5},
		{Handle: hb, Primary: 5},
		{Handle: hc, Primary: 5},
	})
	if best != ha {
		t.Fatalf("SelectBestHost tie on primary metric should prefer host %q (name asc among equal speed), got %q",
			"a", m.HostName(best))
	}
}

func TestParentPlacementsRejectsAnUnscheduledParent(t *testing.T) {
	g := diamondGraph(t)
	m := twoHosts(t)
	state := schedstate.New(m.NumHosts(), g.NumTasks())

	var c *graph.Task
	for _, task := range g.Tasks() {
		if task.Name == "c" {
			c = task
		}
	}
	if c == nil {
		t.Fatal("diamondGraph has no task named \"c\"")
	}

	// c's parents (a, b) are never placed, so gathering its parent
	// placements must fail rather than silently treat them as absent.
	_, err := parentPlacements(g, state, c)
	if err == nil {
		t.Fatal("expected an error for a task with an unscheduled parent")
	}
	if !schederr.Is(err, schederr.KindInvalidState) {
		t.Fatalf("err = %v, want a schederr.KindInvalidState error", err)
	}
}

func TestRoundRobinCoversAllHostsAndRandomIsSeedReproducible(t *testing.T) {
	g := diamondGraph(t)
	m := twoHosts(t)

	rr, err := RoundRobinStatic(g, m)
	if err != nil {
		t.Fatalf("RoundRobinStatic: %v", err)
	}
	used := map[int]bool{}
	for _, task := range g.Tasks() {
		used[rr.State.Placement(task.Handle).HostHandle] = true
	}
	if len(used) != 2 {
		t.Fatalf("RoundRobinStatic used %d distinct hosts, want 2", len(used))
	}

	rand1, err := RandomStatic(g, m, 42)
	if err != nil {
		t.Fatalf("RandomStatic: %v", err)
	}
	rand2, err := RandomStatic(g, m, 42)
	if err != nil {
		t.Fatalf("RandomStatic: %v", err)
	}
	for _, task := range g.Tasks() {
		h1 := rand1.State.Placement(task.Handle).HostHandle
		h2 := rand2.State.Placement(task.Handle).HostHandle
		if h1 != h2 {
			t.Fatalf("RandomStatic with the same seed produced different placements for %q", task.Name)
		}
	}
}

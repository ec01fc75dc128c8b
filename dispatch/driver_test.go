package dispatch

import (
	"context"
	"testing"

	"github.com/swarmguard/dagsched/algorithms/static"
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/internal/simref"
	"github.com/swarmguard/dagsched/platform"
)

// fanOutGraph builds a -> {b, c} -> d, all real computation tasks, so
// graph.Build never inserts a synthetic root/end boundary.
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

func twoHostPlatform(t *testing.T) *platform.Model {
	t.Helper()
	hosts := []*platform.Host{{Name: "h0", Speed: 1}, {Name: "h1", Speed: 1}}
	m, err := platform.Build(hosts, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 20, 0.1
	})
	if err != nil {
		t.Fatalf("platform.Build: %v", err)
	}
	return m
}

func runDriver(t *testing.T, cfg Config) {
	t.Helper()
	g := fanOutGraph(t)
	m := twoHostPlatform(t)

	result, err := static.HEFT(g, m)
	if err != nil {
		t.Fatalf("HEFT: %v", err)
	}
	cfg.Algorithm = "HEFT"

	hosts := make([]*platform.Host, m.NumHosts())
	for h := range hosts {
		hosts[h] = &platform.Host{Name: m.HostName(h), Speed: m.Speed(h)}
	}
	sim := simref.New(hosts, g, func(a, b *platform.Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 20, 0.1
	})

	driver := NewDriver(cfg, g, m)
	if err := driver.Run(context.Background(), sim, result.State); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, task := range g.Tasks() {
		if task.State != graph.Done {
			t.Fatalf("task %q ended in state %v, want Done", task.Name, task.State)
		}
	}
}

func TestDriverRunsToCompletionUnderEveryDispatchMode(t *testing.T) {
	for _, mode := range []DispatchMode{FreeHost, Immediate, ImmediateOverlap, ParentsDone} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			runDriver(t, Config{Dispatch: mode})
		})
	}
}

func TestDriverParentsDoneRunsCrossHostFanInToCompletion(t *testing.T) {
	// Under ParentsDone, d's parents b and c may finish on different
	// hosts; this runs the cross-host re-scan path and checks that every
	// task still reaches Done.
	runDriver(t, Config{Dispatch: ParentsDone})
}

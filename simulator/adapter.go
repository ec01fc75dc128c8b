// Package simulator defines the narrow contract against the external
// network/compute simulator (C8). Nothing in this package implements a
// simulator: a real binding (e.g. to SimGrid) lives outside this module
// and satisfies Adapter; internal/simref ships a minimal in-memory
// implementation used only by this module's own tests.
package simulator

import (
	"context"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/platform"
)

// Adapter is the full contract: load platform/workflow descriptions,
// step the simulation, and mutate task placement/precedence. Static
// algorithms need only LoadPlatform/LoadWorkflow plus the Schedule/
// AddDependency mutators exposed through DispatchDriver; dynamic
// algorithms additionally drive Simulate/Clock in a loop.
type Adapter interface {
	// LoadPlatform parses a platform description (XML) and
	// returns the host set.
	LoadPlatform(ctx context.Context, path string) ([]*platform.Host, error)

	// LoadWorkflow parses a workflow description (DOT) and
	// returns the folded task graph.
	LoadWorkflow(ctx context.Context, path string) (*graph.TaskGraph, error)

	// Simulate runs the simulator until some watched task transitions
	// state, or until maxClock is reached, whichever comes first. It
	// returns the set of tasks that changed; an empty, non-error result
	// means no further progress is possible and the run should end.
	Simulate(ctx context.Context, maxClock float64) ([]*graph.Task, error)

	// AddDependency injects a precedence constraint: child may not
	// become schedulable until parent is done.
	AddDependency(parent, child *graph.Task) error

	// Schedule assigns a computation task to a host.
	Schedule(task *graph.Task, host *platform.Host) error

	// Watch registers interest in a task reaching state; Simulate only
	// reports tasks that are being watched.
	Watch(task *graph.Task, state graph.TaskState)

	// Clock returns the simulator's current logical time.
	Clock() float64
}

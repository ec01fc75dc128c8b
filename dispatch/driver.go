package dispatch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/internal/obs"
	"github.com/swarmguard/dagsched/internal/resilience"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schederr"
	"github.com/swarmguard/dagsched/schedstate"
	"github.com/swarmguard/dagsched/simulator"
)

// Config bundles the three independent mode choices (plus the producing
// algorithm's name, needed to validate QUEUE_ECT compatibility) that
// govern how a static schedule is translated into simulator events.
type Config struct {
	TaskExecution TaskExecutionMode
	DataTransfer  DataTransferMode
	Dispatch      DispatchMode
	Algorithm     string
}

// Driver translates a static host->task-list schedule, as recorded in a
// schedstate.State, into Schedule/AddDependency/Watch calls against a
// simulator.Adapter.
type Driver struct {
	cfg Config
	g   *graph.TaskGraph
	m   *platform.Model

	// Metrics is optional; set by Scheduler.Run so every committed
	// placement is counted the same way other hot-path writes are.
	Metrics *obs.Instruments

	// rescanLimiter gates PARENTS_DONE's blanket re-scan of every host's
	// cursor. NewDriver sizes it at 2^20 tokens with a 2^20-per-second
	// refill and no per-window cap, so it only denies a re-scan after
	// more than a million of them within one second.
	rescanLimiter *resilience.RateLimiter
}

func NewDriver(cfg Config, g *graph.TaskGraph, m *platform.Model) *Driver {
	return &Driver{
		cfg:           cfg,
		g:             g,
		m:             m,
		rescanLimiter: resilience.NewRateLimiter(1<<20, 1<<20, time.Second, 0),
	}
}

// Run drives the full dispatch lifecycle for state. IMMEDIATE and
// IMMEDIATE_OVERLAP inject every assignment up front, matching
// dispatch_initial, and then drain the simulator to quiescence. FREE_HOST
// (the default) and PARENTS_DONE instead hold each host's later
// assignments back until their trigger condition is observed, reacting
// to simulator events as they arrive.
func (d *Driver) Run(ctx context.Context, sim simulator.Adapter, state *schedstate.State) error {
	if d.cfg.DataTransfer == QueueECT && d.cfg.Algorithm != "HEFT" && d.cfg.Algorithm != "Lookahead" {
		return schederr.NewConfigurationError(
			fmt.Sprintf("QUEUE_ECT data-transfer mode requires an algorithm that publishes predicted ECT, got %q", d.cfg.Algorithm),
			schederr.Fields{})
	}

	switch d.cfg.Dispatch {
	case Immediate, ImmediateOverlap:
		if err := d.Inject(ctx, sim, state); err != nil {
			return err
		}
		if err := d.drain(ctx, sim); err != nil {
			return err
		}
	default:
		if err := d.runDeferred(ctx, sim, state); err != nil {
			return err
		}
	}
	return d.exitContractCheck()
}

// Inject walks every host's timesheet in start order and schedules every
// task up front, applying the configured task-execution and
// data-transfer constraints, then runs the post-injection sanity check.
// It is exported for callers (and tests) that want the one-shot
// IMMEDIATE-style injection without driving the simulator loop.
func (d *Driver) Inject(ctx context.Context, sim simulator.Adapter, state *schedstate.State) error {
	for h := 0; h < d.m.NumHosts(); h++ {
		if err := d.injectHost(ctx, sim, state, h); err != nil {
			return err
		}
	}
	return d.sanityCheck(state)
}

func (d *Driver) injectHost(ctx context.Context, sim simulator.Adapter, state *schedstate.State, h int) error {
	entries := state.Timesheet(h).Entries()
	host := &platform.Host{Name: d.m.HostName(h), Speed: d.m.Speed(h)}

	tasks := make([]*graph.Task, len(entries))
	for i, e := range entries {
		tasks[i] = d.g.ByHandle(e.TaskHandle)
	}
	queueOrder, queuePos := d.queueOrdering(tasks, state)

	var prev *graph.Task
	for i, e := range entries {
		t := tasks[i]
		t.Host = host.Name
		t.Start, t.Finish = e.Start, e.Finish
		if err := sim.Schedule(t, host); err != nil {
			return schederr.NewSimulationError("scheduling task onto host",
				err, schederr.Fields{Task: t.Handle, Host: h})
		}
		if d.Metrics != nil {
			d.Metrics.TimesheetInsert.Add(ctx, 1)
		}
		if err := d.applyOrdering(sim, t, prev, tasks, queueOrder, queuePos); err != nil {
			return err
		}
		if !t.IsBoundary() {
			sim.Watch(t, graph.Done)
		}
		prev = t
	}
	return nil
}

// applyOrdering adds the SEQUENTIAL host-order edge and the configured
// data-transfer-mode edges for t, given the previous task on its host.
func (d *Driver) applyOrdering(sim simulator.Adapter, t, prev *graph.Task, hostTasks, queueOrder []*graph.Task, queuePos map[int]int) error {
	if d.cfg.TaskExecution != Sequential {
		return nil
	}
	if prev != nil && !isParentChild(d.g, prev, t) {
		if err := sim.AddDependency(prev, t); err != nil {
			return schederr.NewSimulationError("injecting sequential-order precedence",
				err, schederr.Fields{Task: t.Handle})
		}
	}
	return d.injectDataTransfer(sim, t, prev, hostTasks, queueOrder, queuePos[t.Handle])
}

// queueOrdering returns the chaining order QUEUE/QUEUE_ECT should use for
// a host's task list: by consumer position for QUEUE, by predicted ECT
// for QUEUE_ECT.
func (d *Driver) queueOrdering(tasks []*graph.Task, state *schedstate.State) ([]*graph.Task, map[int]int) {
	order := tasks
	if d.cfg.DataTransfer == QueueECT {
		order = ectOrder(tasks, state)
	}
	pos := make(map[int]int, len(order))
	for i, t := range order {
		pos[t.Handle] = i
	}
	return order, pos
}

// injectDataTransfer applies the data-transfer-mode table: the extra precedence
// edges added to each inbound transfer of t, keyed by DataTransferMode.
// Because communications are folded into TaskGraph edges rather than
// standalone nodes, each constraint that would delay "comm c" is
// expressed directly as a precedence delaying t itself.
func (d *Driver) injectDataTransfer(sim simulator.Adapter, t, prevOnHost *graph.Task, hostTasks, queueOrder []*graph.Task, queueIdx int) error {
	switch d.cfg.DataTransfer {
	case Eager:
		return nil

	case Lazy:
		return addIfAbsent(sim, prevOnHost, t)

	case Prefetch:
		if idx := indexOf(hostTasks, t); idx >= 2 {
			return addIfAbsent(sim, hostTasks[idx-2], t)
		}
		return nil

	case Queue, QueueECT:
		if queueIdx > 0 {
			return addIfAbsent(sim, queueOrder[queueIdx-1], t)
		}
		return nil

	case Parents:
		return addParentOrdering(sim, d.g, t)

	case LazyParents:
		if err := addIfAbsent(sim, prevOnHost, t); err != nil {
			return err
		}
		return addParentOrdering(sim, d.g, t)

	default:
		return nil
	}
}

func addParentOrdering(sim simulator.Adapter, g *graph.TaskGraph, t *graph.Task) error {
	parents := g.Parents(t)
	for i := range parents {
		for j := range parents {
			if i == j {
				continue
			}
			if err := addIfAbsent(sim, parents[j].From, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func addIfAbsent(sim simulator.Adapter, from, to *graph.Task) error {
	if from == nil || from == to {
		return nil
	}
	if err := sim.AddDependency(from, to); err != nil {
		return schederr.NewSimulationError("injecting data-transfer ordering precedence",
			err, schederr.Fields{Task: to.Handle})
	}
	return nil
}

func indexOf(tasks []*graph.Task, t *graph.Task) int {
	for i, c := range tasks {
		if c == t {
			return i
		}
	}
	return -1
}

// ectOrder sorts a host's task list by each task's predicted ECT
// (recorded in state during HEFT/Lookahead's placement pass), tie-broken
// by the task's original position, for QUEUE_ECT's chaining order.
func ectOrder(tasks []*graph.Task, state *schedstate.State) []*graph.Task {
	out := append([]*graph.Task{}, tasks...)
	pos := make(map[int]int, len(tasks))
	for i, t := range tasks {
		pos[t.Handle] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := state.Placement(out[i].Handle).ECT, state.Placement(out[j].Handle).ECT
		if ei != ej {
			return ei < ej
		}
		return pos[out[i].Handle] < pos[out[j].Handle]
	})
	return out
}

// isParentChild reports whether a is a direct parent of b.
func isParentChild(g *graph.TaskGraph, a, b *graph.Task) bool {
	for _, e := range g.Parents(b) {
		if e.From.Handle == a.Handle {
			return true
		}
	}
	return false
}

// sanityCheck enforces the post-injection contract: every non-boundary
// task must have been placed on exactly one host.
func (d *Driver) sanityCheck(state *schedstate.State) error {
	for _, t := range d.g.Tasks() {
		if t.IsBoundary() && t.Amount == 0 {
			continue
		}
		if !state.Placement(t.Handle).Scheduled {
			return schederr.NewSchedulingError(
				fmt.Sprintf("task %q was never placed on any host", t.Name),
				schederr.Fields{Task: t.Handle, Names: []string{t.Name}})
		}
	}
	return nil
}

// exitContractCheck enforces the exit contract: every non-boundary task
// must have reached Done by the time the simulator quiesces.
func (d *Driver) exitContractCheck() error {
	var offenders []string
	for _, t := range d.g.Tasks() {
		if t.IsBoundary() && t.Amount == 0 {
			continue
		}
		if t.State != graph.Done {
			offenders = append(offenders, t.Name)
		}
	}
	if len(offenders) > 0 {
		return schederr.NewSchedulingError(
			fmt.Sprintf("tasks never reached done: %v", offenders),
			schederr.Fields{Names: offenders})
	}
	return nil
}

func (d *Driver) drain(ctx context.Context, sim simulator.Adapter) error {
	for {
		changed, err := sim.Simulate(ctx, math.Inf(1))
		if err != nil {
			return schederr.NewSimulationError("stepping simulator", err, schederr.Fields{})
		}
		if len(changed) == 0 {
			return nil
		}
	}
}

// hostCursor tracks a single host's remaining task queue for the
// deferred (FREE_HOST / PARENTS_DONE) dispatch modes.
type hostCursor struct {
	tasks      []*graph.Task
	queueOrder []*graph.Task
	queuePos   map[int]int
	next       int
}

func (d *Driver) runDeferred(ctx context.Context, sim simulator.Adapter, state *schedstate.State) error {
	cursors := make([]*hostCursor, d.m.NumHosts())
	for h := 0; h < d.m.NumHosts(); h++ {
		entries := state.Timesheet(h).Entries()
		tasks := make([]*graph.Task, len(entries))
		for i, e := range entries {
			tasks[i] = d.g.ByHandle(e.TaskHandle)
		}
		order, pos := d.queueOrdering(tasks, state)
		cursors[h] = &hostCursor{tasks: tasks, queueOrder: order, queuePos: pos}
	}

	advance := func(h int) error {
		c := cursors[h]
		if c.next >= len(c.tasks) {
			return nil
		}
		t := c.tasks[c.next]
		if d.cfg.Dispatch == ParentsDone && !allParentsDone(d.g, t) {
			return nil
		}
		host := &platform.Host{Name: d.m.HostName(h), Speed: d.m.Speed(h)}
		e := state.Timesheet(h).Entries()[c.next]
		t.Host = host.Name
		t.Start, t.Finish = e.Start, e.Finish
		if err := sim.Schedule(t, host); err != nil {
			return schederr.NewSimulationError("scheduling task onto host",
				err, schederr.Fields{Task: t.Handle, Host: h})
		}
		if d.Metrics != nil {
			d.Metrics.TimesheetInsert.Add(ctx, 1)
		}
		var prev *graph.Task
		if c.next > 0 {
			prev = c.tasks[c.next-1]
		}
		if err := d.applyOrdering(sim, t, prev, c.tasks, c.queueOrder, c.queuePos); err != nil {
			return err
		}
		if !t.IsBoundary() {
			sim.Watch(t, graph.Done)
		}
		c.next++
		return nil
	}

	advanceAll := func() error {
		for h := range cursors {
			if err := advance(h); err != nil {
				return err
			}
		}
		return nil
	}

	if err := advanceAll(); err != nil {
		return err
	}

	for {
		changed, err := sim.Simulate(ctx, math.Inf(1))
		if err != nil {
			return schederr.NewSimulationError("stepping simulator", err, schederr.Fields{})
		}
		if len(changed) == 0 {
			break
		}
		for _, t := range changed {
			if t.State != graph.Done || t.Host == "" {
				continue
			}
			h, ok := d.m.HostHandle(t.Host)
			if !ok {
				continue
			}
			if err := advance(h); err != nil {
				return err
			}
		}
		if d.cfg.Dispatch == ParentsDone && d.rescanLimiter.Allow() {
			if err := advanceAll(); err != nil {
				return err
			}
		}
	}
	return d.sanityCheck(state)
}

// allParentsDone reports whether every parent of t has reached Done.
func allParentsDone(g *graph.TaskGraph, t *graph.Task) bool {
	for _, e := range g.Parents(t) {
		if e.From.State != graph.Done && !(e.From.IsBoundary() && e.From.Amount == 0) {
			return false
		}
	}
	return true
}

// Package simref is a minimal in-memory simulator.Adapter implementation:
// a single-threaded discrete-event loop over a preloaded host set and
// task graph, used only by this module's own tests and examples. It is
// not a binding to any real network/compute simulator.
package simref

import (
	"container/heap"
	"context"
	"time"

	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/internal/resilience"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schederr"
)

// RouteFunc reports the bandwidth (bytes/sec) and latency (seconds)
// between two hosts; called with a == b for self-routes, expected to
// return a bandwidth large enough (or simply ignored, since ECOMT-style
// cost is skipped for same-host edges) to represent a loopback.
type RouteFunc func(a, b *platform.Host) (bandwidth, latency float64)

type parentRecord struct {
	host   string
	finish float64
	weight float64
}

// Simulator is a reference Adapter: tasks become Schedulable once every
// graph and AddDependency-injected parent reaches Done, Schedule commits
// a host assignment and computes the resulting Running/Done event times
// from parent finish times plus communication delay, and Simulate drains
// the event queue up to maxClock, batching same-timestamp events into
// one reported change set.
type Simulator struct {
	hosts        map[string]*platform.Host
	hostsOrdered []*platform.Host
	route        RouteFunc

	g     *graph.TaskGraph
	clock float64

	pending    map[int]map[int]bool // child handle -> unfinished parent handles
	childrenOf map[int][]int        // parent handle -> child handles (graph + extra)
	parentsOf  map[int][]parentRecord

	assigned map[int]*platform.Host // handle -> host chosen before the task was actually ready

	watchers map[int]map[graph.TaskState]bool
	events   eventHeap

	// retryAttempts/retryBaseDelay and breaker guard LoadPlatform/
	// LoadWorkflow, the one adapter boundary a real SimulatorAdapter
	// would actually touch disk or a remote simulator process through.
	// Defaults: 1 attempt, and a breaker that starts closed and opens
	// only after repeated load failures.
	retryAttempts  int
	retryBaseDelay time.Duration
	breaker        *resilience.CircuitBreaker
}

// New builds a Simulator over a fixed host set, task graph, and route
// function. The host set and graph are immutable for the Simulator's
// lifetime; LoadPlatform/LoadWorkflow simply hand them back, ignoring
// their path argument, since this package parses no file formats.
func New(hosts []*platform.Host, g *graph.TaskGraph, route RouteFunc) *Simulator {
	s := &Simulator{
		hosts:         make(map[string]*platform.Host, len(hosts)),
		hostsOrdered:  append([]*platform.Host{}, hosts...),
		route:         route,
		g:             g,
		pending:       make(map[int]map[int]bool),
		childrenOf:    make(map[int][]int),
		parentsOf:     make(map[int][]parentRecord),
		assigned:      make(map[int]*platform.Host),
		watchers:      make(map[int]map[graph.TaskState]bool),
		retryAttempts: 1,
		breaker:       resilience.NewCircuitBreakerAdaptive(10*time.Second, 5, 5, 0.5, 2*time.Second, 1),
	}
	for _, h := range hosts {
		s.hosts[h.Name] = h
	}
	s.initGraph()
	return s
}

// SetRetryPolicy configures how many times LoadPlatform/LoadWorkflow are
// retried (with full-jitter exponential backoff starting at baseDelay)
// before surfacing a failure, mirroring config.Config's
// DAGSCHED_RETRY_ATTEMPTS/DAGSCHED_RETRY_BASE_DELAY knobs. attempts <= 0
// is treated as 1 (no retry).
func (s *Simulator) SetRetryPolicy(attempts int, baseDelay time.Duration) {
	if attempts <= 0 {
		attempts = 1
	}
	s.retryAttempts = attempts
	s.retryBaseDelay = baseDelay
}

func (s *Simulator) initGraph() {
	for _, t := range s.g.Tasks() {
		parents := s.g.Parents(t)
		if len(parents) == 0 {
			// Set synchronously so a caller that schedules a
			// no-parent task before ever calling Simulate (as
			// DispatchDriver's immediate-injection paths do) sees
			// it as Schedulable already. The event stays queued
			// too, so a watcher registered before the first
			// Simulate call still gets its notification.
			t.State = graph.Schedulable
			heap.Push(&s.events, &event{time: 0, task: t, to: graph.Schedulable})
			continue
		}
		set := make(map[int]bool, len(parents))
		for _, e := range parents {
			set[e.From.Handle] = true
			s.childrenOf[e.From.Handle] = append(s.childrenOf[e.From.Handle], t.Handle)
		}
		s.pending[t.Handle] = set
	}
}

// LoadPlatform is guarded by a circuit breaker and retried with full
// jitter, the same resilience policy a real file/RPC-backed
// SimulatorAdapter would need around its actual I/O.
func (s *Simulator) LoadPlatform(ctx context.Context, path string) ([]*platform.Host, error) {
	if !s.breaker.Allow() {
		return nil, schederr.NewSimulationError("simref: LoadPlatform circuit open", nil, schederr.Fields{Names: []string{path}})
	}
	hosts, err := resilience.Retry(ctx, s.retryAttempts, s.retryBaseDelay, func() ([]*platform.Host, error) {
		return append([]*platform.Host{}, s.hostsOrdered...), nil
	})
	s.breaker.RecordResult(err == nil)
	return hosts, err
}

func (s *Simulator) LoadWorkflow(ctx context.Context, path string) (*graph.TaskGraph, error) {
	if !s.breaker.Allow() {
		return nil, schederr.NewSimulationError("simref: LoadWorkflow circuit open", nil, schederr.Fields{Names: []string{path}})
	}
	g, err := resilience.Retry(ctx, s.retryAttempts, s.retryBaseDelay, func() (*graph.TaskGraph, error) {
		return s.g, nil
	})
	s.breaker.RecordResult(err == nil)
	return g, err
}

func (s *Simulator) Clock() float64 { return s.clock }

func (s *Simulator) Watch(task *graph.Task, state graph.TaskState) {
	w, ok := s.watchers[task.Handle]
	if !ok {
		w = make(map[graph.TaskState]bool)
		s.watchers[task.Handle] = w
	}
	w[state] = true
}

// AddDependency is a control-only edge: child may not become Schedulable
// until parent reaches Done. It carries no communication weight, the
// same as the synthetic ordering edges DispatchDriver inserts.
func (s *Simulator) AddDependency(parent, child *graph.Task) error {
	if parent.State == graph.Done {
		return nil
	}
	set, ok := s.pending[child.Handle]
	if !ok {
		set = make(map[int]bool)
		s.pending[child.Handle] = set
	}
	set[parent.Handle] = true
	s.childrenOf[parent.Handle] = append(s.childrenOf[parent.Handle], child.Handle)
	return nil
}

// Schedule commits host to task. A task that is already Schedulable
// activates immediately: its Scheduled/Running/Done transitions are
// enqueued as events, with Running firing once every recorded parent's
// communication delay has elapsed and Done firing execution-time later.
// A task whose dependencies have not yet resolved is instead held as a
// pending assignment and activated automatically once cascade empties
// its pending-parent set — the front-loaded assignment style
// DispatchDriver's IMMEDIATE/FREE_HOST injection uses, submitting a
// host for every task before the simulation has advanced far enough for
// most of them to be genuinely ready.
func (s *Simulator) Schedule(task *graph.Task, host *platform.Host) error {
	if _, ok := s.hosts[host.Name]; !ok {
		return schederr.NewInvalidState(
			"simref: Schedule referenced an unknown host",
			schederr.Fields{Task: task.Handle, Names: []string{host.Name}})
	}
	switch task.State {
	case graph.Scheduled, graph.Runnable, graph.Running, graph.Done, graph.Failed:
		return schederr.NewInvalidState(
			"simref: Schedule called on a task that is already committed",
			schederr.Fields{Task: task.Handle})
	case graph.Schedulable:
		s.activate(task, host)
		return nil
	default: // NotScheduled: dependencies still pending
		if _, dup := s.assigned[task.Handle]; dup {
			return schederr.NewInvalidState(
				"simref: Schedule called twice for the same not-yet-ready task",
				schederr.Fields{Task: task.Handle})
		}
		s.assigned[task.Handle] = host
		return nil
	}
}

// activate pushes the Scheduled/Running/Done event triple for a task
// that is ready now, computing Running's delay from every recorded
// parent's finish time plus cross-host communication cost.
func (s *Simulator) activate(task *graph.Task, host *platform.Host) {
	ready := s.clock
	for _, p := range s.parentsOf[task.Handle] {
		arrival := p.finish
		if srcHost, ok := s.hosts[p.host]; ok && p.host != host.Name {
			bw, lat := s.route(srcHost, host)
			if bw > 0 {
				arrival += p.weight/bw + lat
			}
		}
		if arrival > ready {
			ready = arrival
		}
	}

	duration := task.Amount / host.Speed
	heap.Push(&s.events, &event{time: s.clock, task: task, to: graph.Scheduled, host: host.Name})
	heap.Push(&s.events, &event{time: ready, task: task, to: graph.Running})
	heap.Push(&s.events, &event{time: ready + duration, task: task, to: graph.Done})
}

// Simulate drains events up to maxClock, batching every event sharing
// the earliest pending timestamp into one reported change set. An empty,
// non-error result means no further progress is possible within
// maxClock.
func (s *Simulator) Simulate(ctx context.Context, maxClock float64) ([]*graph.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, schederr.NewSimulationError("context canceled", err, schederr.Fields{})
	}
	if len(s.events) == 0 {
		return nil, nil
	}
	if s.events[0].time > maxClock {
		return nil, nil
	}

	batchTime := s.events[0].time
	s.clock = batchTime

	var changed []*graph.Task
	seen := make(map[int]bool)
	for len(s.events) > 0 && s.events[0].time == batchTime {
		e := heap.Pop(&s.events).(*event)
		s.apply(e, &changed, seen)
	}
	return changed, nil
}

func (s *Simulator) apply(e *event, changed *[]*graph.Task, seen map[int]bool) {
	t := e.task
	t.State = e.to
	switch e.to {
	case graph.Scheduled:
		t.Host = e.host
	case graph.Running:
		t.Start = e.time
	case graph.Done:
		t.Finish = e.time
		s.cascade(t, changed, seen)
	}
	s.record(t, changed, seen)
}

func (s *Simulator) record(t *graph.Task, changed *[]*graph.Task, seen map[int]bool) {
	if s.watchers[t.Handle][t.State] && !seen[t.Handle] {
		seen[t.Handle] = true
		*changed = append(*changed, t)
	}
}

// cascade removes the just-finished task from every child's pending set,
// recording its placement for EST-style comm-delay computation, and
// promotes any child whose pending set just emptied to Schedulable.
func (s *Simulator) cascade(parent *graph.Task, changed *[]*graph.Task, seen map[int]bool) {
	for _, childHandle := range s.childrenOf[parent.Handle] {
		child := s.g.ByHandle(childHandle)
		if set, ok := s.pending[childHandle]; ok {
			if !set[parent.Handle] {
				continue
			}
			delete(set, parent.Handle)
			weight := edgeWeight(s.g, parent, child)
			s.parentsOf[childHandle] = append(s.parentsOf[childHandle], parentRecord{
				host: parent.Host, finish: parent.Finish, weight: weight,
			})
			if len(set) > 0 {
				continue
			}
		}
		if child.State == graph.NotScheduled {
			child.State = graph.Schedulable
			s.record(child, changed, seen)
			if host, ok := s.assigned[childHandle]; ok {
				delete(s.assigned, childHandle)
				s.activate(child, host)
			}
		}
	}
}

func edgeWeight(g *graph.TaskGraph, parent, child *graph.Task) float64 {
	for _, e := range g.Children(parent) {
		if e.To.Handle == child.Handle {
			return e.Weight
		}
	}
	return 0
}

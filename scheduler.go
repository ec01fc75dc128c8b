// Package dagsched ties the scheduling kernel together: the
// StaticScheduler/DynamicScheduler capability interfaces, and a common
// Scheduler facade that times the algorithm call, drives DispatchDriver
// (or the dynamic event loop), and reports the resulting makespan.
package dagsched

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/swarmguard/dagsched/algorithms/static"
	"github.com/swarmguard/dagsched/dispatch"
	"github.com/swarmguard/dagsched/graph"
	"github.com/swarmguard/dagsched/internal/obs"
	"github.com/swarmguard/dagsched/platform"
	"github.com/swarmguard/dagsched/schederr"
	"github.com/swarmguard/dagsched/schedstate"
	"github.com/swarmguard/dagsched/simulator"
)

// StaticScheduler is the capability a static algorithm (HEFT, PEFT, OLB,
// the batch family, DLS, HCPT, LDCP, Random/RoundRobin) implements:
// compute a full schedule before any simulation starts.
type StaticScheduler interface {
	GetSchedule(g *graph.TaskGraph, m *platform.Model) (*schedstate.State, *float64, error)
}

// StaticFunc adapts a plain `func(g, m) (*static.Result, error)` — the
// shape every function in algorithms/static has — into a
// StaticScheduler.
type StaticFunc func(g *graph.TaskGraph, m *platform.Model) (*static.Result, error)

func (f StaticFunc) GetSchedule(g *graph.TaskGraph, m *platform.Model) (*schedstate.State, *float64, error) {
	result, err := f(g, m)
	if err != nil {
		return nil, nil, err
	}
	return result.State, &result.ExpectedMakespan, nil
}

// DynamicScheduler is the capability an online algorithm implements; it
// is exactly algorithms/dynamic.Scheduler, re-exported here so callers
// only need to import this package's facade.
type DynamicScheduler interface {
	Prepare(g *graph.TaskGraph, m *platform.Model)
	OnEvent(ctx context.Context, sim simulator.Adapter, changed []*graph.Task) error
}

// Scheduler is the common facade both capability sets are run through:
// it owns timing and the expected-makespan result, and hands the actual
// dispatch work to DispatchDriver or the dynamic event loop.
type Scheduler struct {
	Name   string
	Config dispatch.Config

	static  StaticScheduler
	dynamic DynamicScheduler

	SchedulerTime    time.Duration // wall-clock spent inside the algorithm itself
	TotalTime        time.Duration // wall-clock spent inside Run, including the simulator
	ExpectedMakespan *float64      // nil unless a static algorithm reported one

	// Metrics and Logger are both optional; a zero-value Scheduler runs
	// unobserved. Set Metrics from obs.InitMetrics and Logger from
	// obs.InitLogging (or slog.Default()) to get per-invocation counters,
	// histograms, and structured log lines.
	Metrics *obs.Instruments
	Logger  *slog.Logger
}

// NewStatic builds a Scheduler around a StaticScheduler.
func NewStatic(name string, static StaticScheduler, cfg dispatch.Config) *Scheduler {
	cfg.Algorithm = name
	return &Scheduler{Name: name, Config: cfg, static: static}
}

// NewDynamic builds a Scheduler around a DynamicScheduler.
func NewDynamic(name string, dyn DynamicScheduler, cfg dispatch.Config) *Scheduler {
	cfg.Algorithm = name
	return &Scheduler{Name: name, Config: cfg, dynamic: dyn}
}

// Run executes the scheduler against sim's workflow/platform: for a
// static scheduler it computes the schedule once and hands it to
// DispatchDriver; for a dynamic scheduler it drives the prepare/on_event
// loop directly. Either way it finishes by checking the exit
// contract (every non-boundary task reached Done).
func (s *Scheduler) Run(ctx context.Context, sim simulator.Adapter, g *graph.TaskGraph, m *platform.Model) error {
	runStart := time.Now()
	log := s.logger()
	log.Info("scheduler run starting", "algorithm", s.Name)
	if s.Metrics != nil {
		s.Metrics.Invocations.Add(ctx, 1)
	}

	if err := s.run(ctx, sim, g, m, runStart); err != nil {
		log.Error("scheduler run failed", "algorithm", s.Name, "error", err)
		if s.Metrics != nil {
			s.Metrics.InvocationFails.Add(ctx, 1)
		}
		return err
	}

	s.TotalTime = time.Since(runStart)
	if s.Metrics != nil {
		s.Metrics.SchedulerTime.Record(ctx, s.SchedulerTime.Seconds())
		if s.ExpectedMakespan != nil {
			s.Metrics.Makespan.Record(ctx, *s.ExpectedMakespan)
		}
	}
	log.Info("scheduler run finished", "algorithm", s.Name, "total_time", s.TotalTime)
	return nil
}

func (s *Scheduler) run(ctx context.Context, sim simulator.Adapter, g *graph.TaskGraph, m *platform.Model, runStart time.Time) error {
	runCtx, endRun := obs.WithSpan(ctx, "scheduler.run")
	defer endRun()

	switch {
	case s.static != nil:
		_, endRank := obs.WithSpan(runCtx, "scheduler.rank_and_place")
		state, expected, err := s.static.GetSchedule(g, m)
		endRank()
		s.SchedulerTime = time.Since(runStart)
		if err != nil {
			return err
		}
		s.ExpectedMakespan = expected

		dispatchCtx, endDispatch := obs.WithSpan(runCtx, "scheduler.dispatch")
		defer endDispatch()
		driver := dispatch.NewDriver(s.Config, g, m)
		driver.Metrics = s.Metrics
		return driver.Run(dispatchCtx, sim, state)

	case s.dynamic != nil:
		_, endPrep := obs.WithSpan(runCtx, "scheduler.prepare")
		s.dynamic.Prepare(g, m)
		endPrep()
		s.SchedulerTime = time.Since(runStart)
		return s.runDynamic(runCtx, sim, g)

	default:
		return schederr.NewConfigurationError(
			fmt.Sprintf("scheduler %q has neither a static nor dynamic implementation", s.Name),
			schederr.Fields{})
	}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// runDynamic watches every non-boundary task for its Schedulable
// transition, then drives the simulate/on_event loop until the simulator
// reports no further progress.
func (s *Scheduler) runDynamic(ctx context.Context, sim simulator.Adapter, g *graph.TaskGraph) error {
	for _, t := range g.Tasks() {
		if t.IsBoundary() && t.Amount == 0 {
			continue
		}
		sim.Watch(t, graph.Schedulable)
	}

	for {
		changed, err := sim.Simulate(ctx, math.Inf(1))
		if err != nil {
			return schederr.NewSimulationError("stepping simulator", err, schederr.Fields{})
		}
		if len(changed) == 0 {
			break
		}
		if err := s.dynamic.OnEvent(ctx, sim, changed); err != nil {
			return err
		}
	}
	return exitContractCheck(g)
}

func exitContractCheck(g *graph.TaskGraph) error {
	var offenders []string
	for _, t := range g.Tasks() {
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

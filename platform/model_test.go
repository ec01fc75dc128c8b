package platform

import (
	"math"
	"testing"
)

func buildTestModel(t *testing.T) (*Model, int, int) {
	t.Helper()
	hosts := []*Host{
		{Name: "master", Speed: 1, IsMaster: true},
		{Name: "worker", Speed: 2},
	}
	m, err := Build(hosts, func(a, b *Host) (float64, float64) {
		if a.Name == b.Name {
			return 0, 0
		}
		return 100, 0.5
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	master, _ := m.HostHandle("master")
	worker, _ := m.HostHandle("worker")
	return m, master, worker
}

func TestBuildRejectsNonPositiveSpeed(t *testing.T) {
	_, err := Build([]*Host{{Name: "h0", Speed: 0}}, func(a, b *Host) (float64, float64) { return 0, 0 })
	if err == nil {
		t.Fatal("expected an error for a non-positive host speed")
	}
}

func TestMasterHandleIsRecognizedByFlagOrReservedName(t *testing.T) {
	m, master, _ := buildTestModel(t)
	if m.MasterHandle() != master {
		t.Fatalf("MasterHandle()=%d, want %d", m.MasterHandle(), master)
	}
}

func TestEETScalesWithSpeed(t *testing.T) {
	m, master, worker := buildTestModel(t)
	if got := m.EET(10, master); got != 10 {
		t.Fatalf("EET(10, master)=%g, want 10", got)
	}
	if got := m.EET(10, worker); got != 5 {
		t.Fatalf("EET(10, worker)=%g, want 5", got)
	}
}

func TestECOMTIsZeroWithinAHost(t *testing.T) {
	m, master, _ := buildTestModel(t)
	if got := m.ECOMT(1000, master, master); got != 0 {
		t.Fatalf("ECOMT within a host = %g, want 0", got)
	}
}

func TestECOMTIsInfiniteWithoutBandwidth(t *testing.T) {
	hosts := []*Host{{Name: "a", Speed: 1}, {Name: "b", Speed: 1}}
	m, err := Build(hosts, func(x, y *Host) (float64, float64) { return 0, 0 })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ha, _ := m.HostHandle("a")
	hb, _ := m.HostHandle("b")
	if got := m.ECOMT(1, ha, hb); !math.IsInf(got, 1) {
		t.Fatalf("ECOMT with zero bandwidth = %g, want +Inf", got)
	}
}

func TestESTIsMaxOverParentReadyTimes(t *testing.T) {
	m, master, worker := buildTestModel(t)
	parents := []ParentPlacement{
		{HostHandle: master, ECT: 5, EdgeWeight: 100},  // same host as the task below: no transfer cost
		{HostHandle: worker, ECT: 100, EdgeWeight: 0},  // finishes late; no bytes, but cross-host latency applies
	}
	got := m.EST(master, parents)
	want := 100.0 // the worker parent's ECT dominates once both readiness times are compared
	if got < want {
		t.Fatalf("EST=%g, want at least %g", got, want)
	}
}

func TestESTWithNoParentsIsZero(t *testing.T) {
	m, master, _ := buildTestModel(t)
	if got := m.EST(master, nil); got != 0 {
		t.Fatalf("EST with no parents = %g, want 0", got)
	}
}

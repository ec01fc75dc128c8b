package platform

import (
	"fmt"
	"math"

	"github.com/swarmguard/dagsched/internal/indexset"
)

// Model is the analytical cost model shared by every scheduling
// algorithm: per-host speed, pairwise bandwidth/latency, and the mean
// aggregates HEFT-family ranking functions are defined against. It is
// built once per simulation and never mutated afterward.
type Model struct {
	hosts   *indexset.Table
	speed   []float64
	isMster []bool

	// dense N x N matrices, row-major, indexed by host handle.
	bandwidth []float64
	latency   []float64

	meanSpeed     float64
	meanBandwidth float64
	meanLatency   float64

	masterHandle int // -1 if no master host declared
}

// Build derives a Model from the host set and a bandwidth/latency lookup
// function (typically backed by the platform's Route table). routeFn is
// called once per ordered host pair (including self-pairs) at
// construction time; self-pairs are expected to resolve via a loopback
// route or report zero cost.
func Build(hosts []*Host, routeFn func(src, dst *Host) (bandwidth, latency float64)) (*Model, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("platform: at least one host is required")
	}
	idx := indexset.New(len(hosts))
	for _, h := range hosts {
		idx.Assign(h.Name)
	}
	n := idx.Len()
	m := &Model{
		hosts:        idx,
		speed:        make([]float64, n),
		isMster:      make([]bool, n),
		bandwidth:    make([]float64, n*n),
		latency:      make([]float64, n*n),
		masterHandle: -1,
	}
	byHandle := make([]*Host, n)
	for _, h := range hosts {
		handle, _ := idx.Handle(h.Name)
		byHandle[handle] = h
		m.speed[handle] = h.Speed
		if h.Speed <= 0 {
			return nil, fmt.Errorf("platform: host %q has non-positive speed %g", h.Name, h.Speed)
		}
		if h.IsMaster || h.Name == MasterHostName {
			m.isMster[handle] = true
			m.masterHandle = handle
		}
	}

	var bwSum, latSum float64
	var offDiag int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var bw, lat float64
			if i == j {
				bw, lat = routeFn(byHandle[i], byHandle[j])
			} else {
				bw, lat = routeFn(byHandle[i], byHandle[j])
				bwSum += bw
				latSum += lat
				offDiag++
			}
			m.bandwidth[i*n+j] = bw
			m.latency[i*n+j] = lat
		}
	}

	var speedSum float64
	for _, s := range m.speed {
		speedSum += s
	}
	m.meanSpeed = speedSum / float64(n)
	if offDiag > 0 {
		m.meanBandwidth = bwSum / float64(offDiag)
		m.meanLatency = latSum / float64(offDiag)
	}
	return m, nil
}

// NumHosts returns the number of hosts in the model.
func (m *Model) NumHosts() int { return m.hosts.Len() }

// HostHandle returns the dense index assigned to a host name.
func (m *Model) HostHandle(name string) (int, bool) { return m.hosts.Handle(name) }

// HostName returns the name assigned to a host handle.
func (m *Model) HostName(handle int) string { return m.hosts.Name(handle) }

// Speed returns flops/sec for a host handle.
func (m *Model) Speed(handle int) float64 { return m.speed[handle] }

// MasterHandle returns the handle of the designated master host, or -1
// if none was declared.
func (m *Model) MasterHandle() int { return m.masterHandle }

// Bandwidth returns bytes/sec between two host handles.
func (m *Model) Bandwidth(src, dst int) float64 {
	return m.bandwidth[src*m.hosts.Len()+dst]
}

// Latency returns seconds between two host handles.
func (m *Model) Latency(src, dst int) float64 {
	return m.latency[src*m.hosts.Len()+dst]
}

func (m *Model) MeanSpeed() float64     { return m.meanSpeed }
func (m *Model) MeanBandwidth() float64 { return m.meanBandwidth }
func (m *Model) MeanLatency() float64   { return m.meanLatency }

// EET is the estimated execution time of amount flops on host handle h.
func (m *Model) EET(amount float64, h int) float64 {
	return amount / m.speed[h]
}

// ECOMT is the estimated communication time of weightBytes between two
// host handles; zero when src == dst.
func (m *Model) ECOMT(weightBytes float64, src, dst int) float64 {
	if src == dst {
		return 0
	}
	bw := m.Bandwidth(src, dst)
	if bw <= 0 {
		return math.Inf(1)
	}
	return weightBytes/bw + m.Latency(src, dst)
}

// ParentPlacement describes one already-scheduled parent, as needed by
// EST. It is supplied by the caller (SchedulerState) rather than by a
// dependency on the schedstate package, keeping platform free of any
// import on the scheduling layers it is consumed by.
type ParentPlacement struct {
	HostHandle int
	ECT        float64
	EdgeWeight float64 // bytes carried on the edge from this parent
}

// EST is the earliest start time of a task on host h given its already
// scheduled parents. With no parents, EST is 0.
func (m *Model) EST(h int, parents []ParentPlacement) float64 {
	var est float64
	for _, p := range parents {
		ready := p.ECT + m.ECOMT(p.EdgeWeight, p.HostHandle, h)
		if ready > est {
			est = ready
		}
	}
	return est
}

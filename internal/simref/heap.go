package simref

import "github.com/swarmguard/dagsched/graph"

// event is one pending state transition, ordered by time then task
// handle so simultaneous events process deterministically.
type event struct {
	time float64
	task *graph.Task
	to   graph.TaskState
	host string // only meaningful for a Scheduled event
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].task.Handle < h[j].task.Handle
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

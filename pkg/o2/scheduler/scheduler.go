// Package scheduler implements timestamp-ordered delivery queues drained
// once per poll pass: a single ordered structure per timeline, with ready
// entries drained from the head on each pass.
package scheduler

import (
	"container/heap"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// Clock supplies the scheduler's notion of "now" for each of the two
// timelines: the always-available local clock, and the global
// clock which is only meaningful once the process is synced.
type Clock interface {
	Local() float64
	Global() (value float64, synced bool)
}

type entry struct {
	msg *types.Message
	due float64
	seq uint64 // insertion order, breaks timestamp ties
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler holds the two schedule queues: one for global-time messages
// (only meaningful once synced) and one for local-time messages. Not safe
// for concurrent use — it is owned by the single poll-loop goroutine.
type Scheduler struct {
	clock Clock
	local entryHeap
	global entryHeap
	seq uint64
}

// New builds a Scheduler driven by clock.
func New(clock Clock) *Scheduler {
	s := &Scheduler{clock: clock}
	heap.Init(&s.local)
	heap.Init(&s.global)
	return s
}

// ScheduleLocal enqueues msg for delivery once the local clock reaches due.
func (s *Scheduler) ScheduleLocal(msg *types.Message, due float64) {
	s.seq++
	heap.Push(&s.local, &entry{msg: msg, due: due, seq: s.seq})
}

// ScheduleGlobal enqueues msg for delivery once the global clock reaches
// due; due is meaningless (and the message will never become ready) until
// the process is clock-synced.
func (s *Scheduler) ScheduleGlobal(msg *types.Message, due float64) {
	s.seq++
	heap.Push(&s.global, &entry{msg: msg, due: due, seq: s.seq})
}

// Due pops and returns every message whose scheduled time has arrived, in
// non-decreasing timestamp order with insertion order breaking ties. Called
// once per poll pass.
func (s *Scheduler) Due() []*types.Message {
	var out []*types.Message
	now := s.clock.Local()
	for s.local.Len() > 0 && s.local[0].due <= now {
		e := heap.Pop(&s.local).(*entry)
		out = append(out, e.msg)
	}
	if g, synced := s.clock.Global(); synced {
		for s.global.Len() > 0 && s.global[0].due <= g {
			e := heap.Pop(&s.global).(*entry)
			out = append(out, e.msg)
		}
	}
	return out
}

// PendingLocal and PendingGlobal report queue depth, used by metrics.
func (s *Scheduler) PendingLocal() int { return s.local.Len() }
func (s *Scheduler) PendingGlobal() int { return s.global.Len() }

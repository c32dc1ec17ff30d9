package runtime

import "time"

// timerEntry is one scheduled callback: a Delay reinjection or a
// ScheduleTimer callback (spec.md §4.14).
type timerEntry struct {
	id       int
	at       time.Time
	fn       func(now time.Time)
	canceled bool
}

// timerHeap is a container/heap min-heap ordered by deadline, and by
// scheduling order (id) among equal deadlines, the multiplex primitive
// spec.md §4.14 calls for alongside epoll.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

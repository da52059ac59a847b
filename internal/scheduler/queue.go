package scheduler

import (
	"sync/atomic"
	"time"
)

// entry is one item in the internal priority heap. seq breaks ties between
// equal priorities so submission order is preserved within a priority band;
// ordering purely by priority (as the original implementation did) starves
// FIFO fairness among same-priority tasks.
type entry struct {
	id        ID
	priority  Priority
	seq       uint64
	work      func()
	status    *atomic.Int32
	cancelled *atomic.Bool
	queuedAt  time.Time
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

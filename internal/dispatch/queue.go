// Package dispatch distributes detection, execution, and monitoring work
// across a pool of heterogeneous worker services.
package dispatch

import (
	"container/heap"
	"sync"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// queueItem wraps a task with the insertion sequence used for FIFO ordering
// within one priority level.
type queueItem struct {
	task domain.WorkerTask
	seq  uint64
}

// taskHeap orders by priority descending, then by submission order.
type taskHeap []queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the pending-task priority queue. Any component may enqueue;
// exactly one dispatcher dequeues.
type Queue struct {
	mu   sync.Mutex
	heap taskHeap
	seq  uint64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Push enqueues a task.
func (q *Queue) Push(task domain.WorkerTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, queueItem{task: task, seq: q.seq})
}

// Pop removes and returns the highest-priority pending task. ok is false
// when the queue is empty.
func (q *Queue) Pop() (domain.WorkerTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return domain.WorkerTask{}, false
	}
	item := heap.Pop(&q.heap).(queueItem)
	return item.task, true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

package scheduler

import (
	"container/heap"
	"sync"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// candidateHeap orders candidates by priority descending, candidate ID
// ascending on ties. The tie-break makes queue order deterministic for
// identical inputs.
type candidateHeap []schemas.ImprovementCandidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	pi, pj := h[i].Priority(), h[j].Priority()
	if pi != pj {
		return pi > pj
	}
	return h[i].ID < h[j].ID
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(schemas.ImprovementCandidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// queue is a concurrency-safe priority queue over candidates.
type queue struct {
	mu sync.Mutex
	h  candidateHeap
}

func newQueue(candidates []schemas.ImprovementCandidate) *queue {
	q := &queue{h: make(candidateHeap, len(candidates))}
	copy(q.h, candidates)
	heap.Init(&q.h)
	return q
}

// pop removes and returns the highest-priority candidate, or false when
// the queue is empty.
func (q *queue) pop() (schemas.ImprovementCandidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return schemas.ImprovementCandidate{}, false
	}
	return heap.Pop(&q.h).(schemas.ImprovementCandidate), true
}

// push re-inserts a candidate, used for requeue after resource
// exhaustion.
func (q *queue) push(c schemas.ImprovementCandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, c)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

package fsm

import "sync"

// node represents an internal linked list node for the ingestion queue.
type node struct {
	seq    uint64
	sample Sample
	next   *node
}

// Queued is a sample together with its arrival order.
type Queued struct {
	Seq    uint64 // Arrival order, starting at 1
	Sample Sample
}

// Queue is an unbounded FIFO hand-off between the context that receives frames and
// the context that consumes them. The lock is held only while linking or unlinking
// nodes, Push never blocks on a consumer and DrainAll never waits for a producer.
type Queue struct {
	mu   sync.Mutex
	head *node
	tail *node
	size int
	seq  uint64
}

// NewQueue creates an empty ingestion queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a sample to the end of the queue and returns its arrival order.
func (q *Queue) Push(sample Sample) uint64 {
	n := &node{sample: sample} // allocate outside of the critical section

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	n.seq = q.seq

	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++

	return n.seq
}

// DrainAll removes and returns all queued samples in push order.
// Returns nil if the queue is empty.
func (q *Queue) DrainAll() []Queued {
	q.mu.Lock()
	head := q.head
	size := q.size
	q.head, q.tail, q.size = nil, nil, 0
	q.mu.Unlock()

	if head == nil {
		return nil
	}

	results := make([]Queued, 0, size) // Preallocate with capacity
	for current := head; current != nil; current = current.next {
		results = append(results, Queued{Seq: current.seq, Sample: current.sample})
	}

	return results
}

// Size returns the current number of queued samples.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Pushed returns the total number of samples pushed since the queue was created.
func (q *Queue) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

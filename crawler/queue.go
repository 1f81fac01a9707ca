package crawler

import (
	"sync"

	"github.com/pevans/repocrawl/scraper"
)

// TaskKind selects the handler for a fetched page.
type TaskKind int

const (
	// ListingTask pages are parsed for repository entries and pagination.
	ListingTask TaskKind = iota
	// DetailTask pages complete the partial record carried by the task.
	DetailTask
)

func (k TaskKind) String() string {
	switch k {
	case ListingTask:
		return "listing"
	case DetailTask:
		return "detail"
	default:
		return "unknown"
	}
}

// Task is a pending fetch together with the handler that consumes it.
type Task struct {
	Kind TaskKind
	URL  string
	// Page is the 1-based listing page number (listing tasks only)
	Page int
	// Partial is the state carried to the detail handler (detail tasks only)
	Partial *scraper.PartialRecord
}

// taskQueue is an unbounded FIFO of tasks. It tracks queued and in-flight
// tasks so that workers can tell when the crawl has run dry.
type taskQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []Task
	pending int
	closed  bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push adds a task. Tasks pushed after close are dropped.
func (q *taskQueue) push(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.pending++
	q.cond.Signal()
	return true
}

// pop blocks until a task is available. It returns false once the queue is
// closed or no tasks are queued or in flight.
func (q *taskQueue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && q.pending > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.tasks) == 0 {
		return Task{}, false
	}

	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	return task, true
}

// done marks a popped task as finished. Follow-up tasks must be pushed
// before calling done.
func (q *taskQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending--
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}

// close wakes every waiting worker and stops accepting tasks.
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

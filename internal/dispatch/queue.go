// Package dispatch hands work from the listener goroutines to the single
// render goroutine that owns all scene, pool and selection state.
package dispatch

import (
	"sync"

	"github.com/banshee-data/vrlink/internal/monitoring"
)

// Queue is a multi-producer, single-consumer task list. Enqueue may be called
// from any goroutine; DrainAndRunAll must only be called by the render loop.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	spare   []func()

	metrics *monitoring.Metrics
	logf    func(format string, v ...interface{})
}

// NewQueue returns an empty queue. metrics may be nil.
func NewQueue(metrics *monitoring.Metrics) *Queue {
	return &Queue{
		metrics: metrics,
		logf:    monitoring.Tagged("render"),
	}
}

// Enqueue appends task. It never blocks beyond the append.
func (q *Queue) Enqueue(task func()) {
	if task == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, task)
	q.setDepthLocked()
}

// setDepthLocked publishes the pending length. Callers hold q.mu so the gauge
// is updated in the same order as the list.
func (q *Queue) setDepthLocked() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.pending)))
	}
}

// Len returns the number of tasks waiting for the next drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainAndRunAll swaps out the pending list and runs every task in enqueue
// order. Tasks enqueued while draining run on the next call. A panicking task
// is logged and skipped. It returns the number of tasks run.
func (q *Queue) DrainAndRunAll() int {
	q.mu.Lock()
	tasks := q.pending
	q.pending = q.spare[:0]
	q.setDepthLocked()
	q.mu.Unlock()

	for i, task := range tasks {
		q.run(task)
		tasks[i] = nil
	}

	q.mu.Lock()
	q.spare = tasks[:0]
	q.mu.Unlock()

	if q.metrics != nil && len(tasks) > 0 {
		q.metrics.TasksExecuted.Add(float64(len(tasks)))
	}
	return len(tasks)
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logf("task panicked: %v", r)
		}
	}()
	task()
}

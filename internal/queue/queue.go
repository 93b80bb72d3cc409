// Package queue provides a strictly ordered task runner. Tasks with side
// effects on shared external state (thread creation in particular) must not
// interleave: two DMs from the same new user arriving together could each
// observe "no thread exists" and each create a channel. Running such tasks
// one at a time in submission order closes that race.
package queue

import (
	"context"
	"sync"
)

// Task is an opaque asynchronous unit of work.
type Task func(ctx context.Context) error

// Queue executes enqueued tasks one at a time, in FIFO submission order,
// system-wide. Serialization is global rather than per-user: correctness
// over parallel throughput, acceptable at human-paced modmail volume.
type Queue struct {
	ctx context.Context

	mu      sync.Mutex
	pending []queued
	running bool
}

type queued struct {
	task Task
	done chan error
}

// New creates a Queue. Tasks run with the given context; the queue itself
// has no shutdown; once enqueued a task always eventually runs.
func New(ctx context.Context) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Queue{ctx: ctx}
}

// Enqueue submits a task and returns a channel that resolves with the task's
// result. Submission never blocks; the next task starts only after the
// previous task's result has resolved, success or failure.
func (q *Queue) Enqueue(task Task) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	q.pending = append(q.pending, queued{task: task, done: done})
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	return done
}

// drain runs pending tasks in order until the queue is empty. Exactly one
// drain goroutine exists while running is true.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		next.done <- next.task(q.ctx)
	}
}

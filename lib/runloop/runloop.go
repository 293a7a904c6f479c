// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package runloop provides the serialized task queue that the resolver
// and the recency list run on. All of their state mutation happens in
// tasks executed by a single goroutine, so those components need no
// locks: asynchronous work (directory callbacks, deferred
// notifications, feed deliveries) is posted here and runs strictly
// after the task that scheduled it.
package runloop

import (
	"context"
	"sync"
)

// Loop is an unbounded FIFO queue of tasks drained by one goroutine.
// Post is safe from any goroutine; Run and RunUntilIdle must not be
// invoked concurrently with each other.
type Loop struct {
	mu    sync.Mutex
	queue []func()

	// wake signals Run that the queue became non-empty. Buffered so a
	// Post never blocks on a busy loop.
	wake chan struct{}
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues a task. Tasks run in posting order. A task may itself
// post further tasks; they run after every task already queued.
func (loop *Loop) Post(task func()) {
	loop.mu.Lock()
	loop.queue = append(loop.queue, task)
	loop.mu.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
}

// next pops the head of the queue, or nil when the queue is empty.
func (loop *Loop) next() func() {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	if len(loop.queue) == 0 {
		return nil
	}
	task := loop.queue[0]
	loop.queue[0] = nil
	loop.queue = loop.queue[1:]
	return task
}

// Run executes tasks until the context is cancelled, sleeping while
// the queue is empty. Returns the context's error.
func (loop *Loop) Run(ctx context.Context) error {
	for {
		task := loop.next()
		if task == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-loop.wake:
				continue
			}
		}

		task()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// RunUntilIdle executes queued tasks on the calling goroutine until
// the queue is empty, including tasks posted by the tasks it runs.
// Returns the number of tasks executed. This is the deterministic
// drive used by tests and by synchronous callers that own the loop.
func (loop *Loop) RunUntilIdle() int {
	count := 0
	for {
		task := loop.next()
		if task == nil {
			return count
		}
		task()
		count++
	}
}

// Pending returns the number of queued tasks.
func (loop *Loop) Pending() int {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return len(loop.queue)
}

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/claudebridge/internal/observability"
	"github.com/user/claudebridge/internal/types"
)

// Queue serializes work per conversation key with a global concurrency
// semaphore. Tasks for one key run one at a time in arrival order; tasks for
// different keys run in parallel up to maxConcurrent.
//
// Each key's lane is a chain of done channels: a task waits for the channel
// of the task queued before it and closes its own when finished. The lane is
// dropped once the finishing task is the last one queued.
type Queue struct {
	mu        sync.Mutex
	lanes     map[types.ConversationKey]chan struct{}
	semaphore *semaphore.Weighted
	active    atomic.Int64
}

// NewQueue creates a Queue that allows up to maxConcurrent tasks to execute
// simultaneously across all keys.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ConversationKey]chan struct{}),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Do runs fn once every task queued earlier for key has finished and a
// concurrency slot is free. A failing or panicking task does not block the
// ones behind it. If ctx ends while waiting, Do returns ctx.Err() without
// running fn.
func (q *Queue) Do(ctx context.Context, key types.ConversationKey, fn func(context.Context) error) error {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.lanes[key]
	q.lanes[key] = done
	q.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact: release our slot only after the
			// predecessor has released its own.
			go func() {
				<-prev
				q.finish(key, done)
			}()
			return ctx.Err()
		}
	}

	if err := q.semaphore.Acquire(ctx, 1); err != nil {
		q.finish(key, done)
		return err
	}
	observability.SetActiveRuns(q.active.Add(1))

	err := q.run(ctx, key, fn)

	observability.SetActiveRuns(q.active.Add(-1))
	q.semaphore.Release(1)
	q.finish(key, done)
	return err
}

func (q *Queue) run(ctx context.Context, key types.ConversationKey, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "conversation", string(key), "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// finish releases a task's place in its lane and drops the lane when nothing
// is queued behind it.
func (q *Queue) finish(key types.ConversationKey, done chan struct{}) {
	close(done)
	q.mu.Lock()
	if q.lanes[key] == done {
		delete(q.lanes, key)
	}
	q.mu.Unlock()
}

// Len returns the number of keys with queued or running tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// ActiveCount returns the number of tasks currently running.
func (q *Queue) ActiveCount() int64 {
	return q.active.Load()
}

// WaitIdle blocks until no tasks are actively running, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type runState int

const (
	stateQueued runState = iota
	stateRunning
	stateDone
	stateDead
)

type memoryEntry struct {
	run         Run
	state       runState
	leasedUntil time.Time
	finishedAt  time.Time
	lastError   string
	seq         int
}

// MemoryQueue is an in-process Queue used when no database is configured.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lease   time.Duration
	now     func() time.Time
	seq     int
	notify  chan struct{}
}

// MemoryOptions configures a MemoryQueue.
type MemoryOptions struct {
	LeaseTimeout time.Duration
	Now          func() time.Time
}

// NewMemoryQueue constructs an empty queue.
func NewMemoryQueue(opts MemoryOptions) *MemoryQueue {
	lease := opts.LeaseTimeout
	if lease <= 0 {
		lease = DefaultLeaseTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		entries: make(map[string]*memoryEntry),
		lease:   lease,
		now:     now,
		notify:  make(chan struct{}, 1),
	}
}

// Ready is signalled after every Enqueue so idle workers can skip the poll wait.
func (q *MemoryQueue) Ready() <-chan struct{} {
	return q.notify
}

func (q *MemoryQueue) Enqueue(ctx context.Context, run Run) error {
	if run.JobID == "" {
		return fmt.Errorf("queue: empty job id")
	}
	q.mu.Lock()
	if _, ok := q.entries[run.JobID]; !ok {
		if run.NotBefore.IsZero() {
			run.NotBefore = q.now()
		}
		run.Attempt = 0
		q.seq++
		q.entries[run.JobID] = &memoryEntry{run: run, state: stateQueued, seq: q.seq}
	}
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var next *memoryEntry
	for _, e := range q.entries {
		due := (e.state == stateQueued && !e.run.NotBefore.After(now)) ||
			(e.state == stateRunning && e.leasedUntil.Before(now))
		if !due {
			continue
		}
		if next == nil || e.run.NotBefore.Before(next.run.NotBefore) ||
			(e.run.NotBefore.Equal(next.run.NotBefore) && e.seq < next.seq) {
			next = e
		}
	}
	if next == nil {
		return nil, ErrEmpty
	}
	next.state = stateRunning
	next.run.Attempt++
	next.leasedUntil = now.Add(q.lease)
	run := next.run
	return &run, nil
}

func (q *MemoryQueue) Retry(ctx context.Context, jobID string, delay time.Duration, reason string) error {
	return q.update(jobID, func(e *memoryEntry) {
		e.state = stateQueued
		e.run.NotBefore = q.now().Add(delay)
		e.leasedUntil = time.Time{}
		e.lastError = reason
	})
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	return q.update(jobID, func(e *memoryEntry) {
		e.state = stateDone
		e.leasedUntil = time.Time{}
		e.finishedAt = q.now()
	})
}

func (q *MemoryQueue) Dead(ctx context.Context, jobID string, reason string) error {
	return q.update(jobID, func(e *memoryEntry) {
		e.state = stateDead
		e.leasedUntil = time.Time{}
		e.finishedAt = q.now()
		e.lastError = reason
	})
}

// Pending reports how many runs are queued or leased.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.state == stateQueued || e.state == stateRunning {
			n++
		}
	}
	return n
}

// Prune forgets done and dead runs that finished before olderThan ago.
// A pruned job id can be enqueued again.
func (q *MemoryQueue) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-olderThan)
	var n int64
	for id, e := range q.entries {
		if (e.state == stateDone || e.state == stateDead) && e.finishedAt.Before(cutoff) {
			delete(q.entries, id)
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) update(jobID string, fn func(*memoryEntry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[jobID]
	if !ok {
		return fmt.Errorf("queue: unknown job %s", jobID)
	}
	fn(e)
	return nil
}

var _ Queue = (*MemoryQueue)(nil)

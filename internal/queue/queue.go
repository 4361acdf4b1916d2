// Package queue holds pending pipeline runs until a worker claims them.
package queue

import (
	"context"
	"errors"
	"time"

	"schoolsite/internal/domain"
)

// DefaultLeaseTimeout is how long a claimed run stays invisible to other
// workers before it is considered abandoned.
const DefaultLeaseTimeout = 10 * time.Minute

// ErrEmpty is returned by Claim when no run is due.
var ErrEmpty = errors.New("queue: no run available")

// Run is one orchestrator event.
type Run struct {
	JobID     string
	Request   domain.GenerationRequest
	Attempt   int
	NotBefore time.Time
}

// Queue is the durable hand-off between the API and the workers.
type Queue interface {
	// Enqueue adds a run; enqueueing an existing job id is a no-op.
	Enqueue(ctx context.Context, run Run) error
	// Claim leases the next due run and increments its Attempt.
	Claim(ctx context.Context) (*Run, error)
	Retry(ctx context.Context, jobID string, delay time.Duration, reason string) error
	Complete(ctx context.Context, jobID string) error
	Dead(ctx context.Context, jobID string, reason string) error
}

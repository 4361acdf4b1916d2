package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
	"schoolsite/internal/sqlinline"
)

// PostgresQueue stores runs in the pipeline_runs table. Claims use
// FOR UPDATE SKIP LOCKED so any number of workers can share the table.
type PostgresQueue struct {
	db     infra.SQLExecutor
	lease  time.Duration
	logger *infra.Logger
}

// PostgresOptions configures a PostgresQueue.
type PostgresOptions struct {
	LeaseTimeout time.Duration
	Logger       *infra.Logger
}

// NewPostgresQueue wraps db.
func NewPostgresQueue(db infra.SQLExecutor, opts PostgresOptions) *PostgresQueue {
	lease := opts.LeaseTimeout
	if lease <= 0 {
		lease = DefaultLeaseTimeout
	}
	return &PostgresQueue{db: db, lease: lease, logger: infra.LoggerOrDiscard(opts.Logger)}
}

// EnsureSchema creates the pipeline_runs table when missing.
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, sqlinline.QEnsurePipelineRuns); err != nil {
		return fmt.Errorf("queue: ensure schema: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, run Run) error {
	if run.JobID == "" {
		return fmt.Errorf("queue: empty job id")
	}
	payload, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("queue: encode request: %w", err)
	}
	notBefore := run.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	if _, err := q.db.Exec(ctx, sqlinline.QEnqueueRun, run.JobID, payload, notBefore); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", run.JobID, err)
	}
	return nil
}

func (q *PostgresQueue) Claim(ctx context.Context) (*Run, error) {
	var (
		run     Run
		payload []byte
	)
	err := q.db.QueryRow(ctx, sqlinline.QClaimRun, q.lease.Seconds()).
		Scan(&run.JobID, &payload, &run.Attempt, &run.NotBefore)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	var req domain.GenerationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		// A row that cannot be decoded would be claimed forever.
		if deadErr := q.Dead(ctx, run.JobID, "undecodable request"); deadErr != nil {
			err = errors.Join(err, deadErr)
		}
		return nil, fmt.Errorf("queue: decode request for %s: %w", run.JobID, err)
	}
	run.Request = req
	return &run, nil
}

func (q *PostgresQueue) Retry(ctx context.Context, jobID string, delay time.Duration, reason string) error {
	if _, err := q.db.Exec(ctx, sqlinline.QRetryRun, jobID, delay.Seconds(), reason); err != nil {
		return fmt.Errorf("queue: retry %s: %w", jobID, err)
	}
	q.logger.Debug().Str("job_id", jobID).Dur("delay", delay).Msg("queue: run rescheduled")
	return nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	if _, err := q.db.Exec(ctx, sqlinline.QCompleteRun, jobID); err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	return nil
}

func (q *PostgresQueue) Dead(ctx context.Context, jobID string, reason string) error {
	if _, err := q.db.Exec(ctx, sqlinline.QDeadRun, jobID, reason); err != nil {
		return fmt.Errorf("queue: dead %s: %w", jobID, err)
	}
	return nil
}

// Prune deletes DONE and DEAD runs last touched before olderThan ago.
func (q *PostgresQueue) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.db.Exec(ctx, sqlinline.QPruneRuns, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("queue: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Queue = (*PostgresQueue)(nil)

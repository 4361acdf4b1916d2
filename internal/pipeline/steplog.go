package pipeline

import (
	"context"
	"fmt"
	"time"

	"schoolsite/internal/infra"
	"schoolsite/internal/sqlinline"
)

// StepLog is the durable checkpoint log of completed steps. *jobstore.Store
// satisfies it for the memory and Redis backends.
type StepLog interface {
	LoadStep(ctx context.Context, jobID, step string) ([]byte, bool, error)
	SaveStep(ctx context.Context, jobID, step string, raw []byte) error
	ClearSteps(ctx context.Context, jobID string) error
}

// PostgresStepLog keeps checkpoints in the pipeline_steps table.
type PostgresStepLog struct {
	db infra.SQLExecutor
}

func NewPostgresStepLog(db infra.SQLExecutor) *PostgresStepLog {
	return &PostgresStepLog{db: db}
}

// EnsureSchema creates the pipeline_steps table when missing.
func (l *PostgresStepLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, sqlinline.QEnsurePipelineSteps); err != nil {
		return fmt.Errorf("steplog: ensure schema: %w", err)
	}
	return nil
}

func (l *PostgresStepLog) LoadStep(ctx context.Context, jobID, step string) ([]byte, bool, error) {
	var raw []byte
	if err := l.db.QueryRow(ctx, sqlinline.QLoadStep, jobID, step).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("steplog: load %s/%s: %w", jobID, step, err)
	}
	return raw, true, nil
}

func (l *PostgresStepLog) SaveStep(ctx context.Context, jobID, step string, raw []byte) error {
	if _, err := l.db.Exec(ctx, sqlinline.QSaveStep, jobID, step, raw); err != nil {
		return fmt.Errorf("steplog: save %s/%s: %w", jobID, step, err)
	}
	return nil
}

func (l *PostgresStepLog) ClearSteps(ctx context.Context, jobID string) error {
	if _, err := l.db.Exec(ctx, sqlinline.QClearSteps, jobID); err != nil {
		return fmt.Errorf("steplog: clear %s: %w", jobID, err)
	}
	return nil
}

// Prune deletes checkpoints older than olderThan unless their run is still
// queued or leased.
func (l *PostgresStepLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := l.db.Exec(ctx, sqlinline.QPruneSteps, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("steplog: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ StepLog = (*PostgresStepLog)(nil)
var _ Pruner = (*PostgresStepLog)(nil)

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schoolsite/internal/infra"
	"schoolsite/internal/queue"
)

const (
	// DefaultPollInterval is the idle wait between empty claims.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxRetries allows three attempts per job.
	DefaultMaxRetries = 2
	// DefaultPruneInterval is the wait between retention sweeps.
	DefaultPruneInterval = 10 * time.Minute

	leaseMargin = time.Minute
)

// leasedSteps is every step a single attempt may run under the step timeout.
var leasedSteps = []string{StepSetRunning, StepText, StepImages, StepAnthemAudio, StepSaveFinal, StepOnFailure}

// LeaseFor returns a queue lease long enough for one attempt in which every
// step runs up to stepTimeout.
func LeaseFor(stepTimeout time.Duration) time.Duration {
	if stepTimeout <= 0 {
		return queue.DefaultLeaseTimeout
	}
	return time.Duration(len(leasedSteps))*stepTimeout + leaseMargin
}

// Pruner deletes finished bookkeeping older than a retention window.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Runner executes and fails jobs; *Orchestrator implements it.
type Runner interface {
	Execute(ctx context.Context, run queue.Run) error
	Fail(ctx context.Context, jobID string, cause error) error
}

// Execute runs one attempt of a queued run.
func (o *Orchestrator) Execute(ctx context.Context, run queue.Run) error {
	return o.Run(ctx, run.JobID, run.Request)
}

var _ Runner = (*Orchestrator)(nil)

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	MaxRetries   int
	// Backoff overrides the retry delay, mainly for tests.
	Backoff func(attempt int) time.Duration
	// Retention enables periodic pruning of finished runs and of Pruners.
	// Zero keeps everything.
	Retention     time.Duration
	PruneInterval time.Duration
	Pruners       []Pruner
	Logger        *infra.Logger
}

// Worker is a pool of goroutines claiming runs from a queue.
type Worker struct {
	queue        queue.Queue
	runner       Runner
	concurrency  int
	pollInterval time.Duration
	maxRetries   int
	backoff      func(int) time.Duration
	retention    time.Duration
	pruneEvery   time.Duration
	pruners      []Pruner
	logger       *infra.Logger
}

// readySignaler is implemented by queues that can wake idle workers early.
type readySignaler interface {
	Ready() <-chan struct{}
}

func NewWorker(q queue.Queue, runner Runner, opts WorkerOptions) *Worker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = DefaultMaxRetries
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = Backoff
	}
	pruneEvery := opts.PruneInterval
	if pruneEvery <= 0 {
		pruneEvery = DefaultPruneInterval
	}
	var pruners []Pruner
	if p, ok := q.(Pruner); ok {
		pruners = append(pruners, p)
	}
	for _, p := range opts.Pruners {
		if p != nil {
			pruners = append(pruners, p)
		}
	}
	return &Worker{
		queue:        q,
		runner:       runner,
		concurrency:  concurrency,
		pollInterval: poll,
		maxRetries:   retries,
		backoff:      backoff,
		retention:    opts.Retention,
		pruneEvery:   pruneEvery,
		pruners:      pruners,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

// Run blocks until ctx is cancelled. In-flight runs finish before it returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	if w.retention > 0 && len(w.pruners) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.pruneLoop(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info().Msg("worker: stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	var ready <-chan struct{}
	if s, ok := w.queue.(readySignaler); ok {
		ready = s.Ready()
	}
	for {
		if ctx.Err() != nil {
			return
		}
		handled, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim run")
		}
		if handled {
			continue
		}
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-ready:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (w *Worker) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pruneEvery)
	defer ticker.Stop()
	for {
		w.Prune(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Prune runs every pruner once and returns the total number of rows removed.
// Failures are logged and do not stop the remaining pruners.
func (w *Worker) Prune(ctx context.Context) int64 {
	if w.retention <= 0 {
		return 0
	}
	var total int64
	for _, p := range w.pruners {
		n, err := p.Prune(ctx, w.retention)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn().Err(err).Msg("worker: prune failed")
			}
			continue
		}
		total += n
	}
	if total > 0 {
		w.logger.Info().Int64("removed", total).Dur("retention", w.retention).Msg("worker: pruned finished runs")
	}
	return total
}

// ProcessNext claims and executes one run. It reports false when nothing was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	run, err := w.queue.Claim(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			return false, nil
		}
		return false, err
	}
	w.handle(ctx, run)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, run *queue.Run) {
	log := w.logger.With().Str("job_id", run.JobID).Int("attempt", run.Attempt).Logger()
	log.Info().Msg("worker: picked run")

	runErr := w.execute(ctx, run)
	// Bookkeeping must survive shutdown of the claim loop.
	bookCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		if err := w.queue.Complete(bookCtx, run.JobID); err != nil {
			log.Error().Err(err).Msg("worker: complete run failed")
		}
		return
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the run; the lease expires and another worker resumes it.
		log.Warn().Err(runErr).Msg("worker: run interrupted by shutdown")
		return
	}
	if run.Attempt <= w.maxRetries {
		delay := w.backoff(run.Attempt)
		log.Warn().Err(runErr).Dur("retry_in", delay).Msg("worker: run failed, retrying")
		if err := w.queue.Retry(bookCtx, run.JobID, delay, SanitizeError(runErr)); err != nil {
			log.Error().Err(err).Msg("worker: reschedule run failed")
		}
		return
	}
	log.Error().Err(runErr).Msg("worker: retries exhausted")
	if err := w.runner.Fail(bookCtx, run.JobID, runErr); err != nil {
		log.Error().Err(err).Msg("worker: failure handler failed")
	}
	if err := w.queue.Dead(bookCtx, run.JobID, SanitizeError(runErr)); err != nil {
		log.Error().Err(err).Msg("worker: mark run dead failed")
	}
}

func (w *Worker) execute(ctx context.Context, run *queue.Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return w.runner.Execute(ctx, *run)
}

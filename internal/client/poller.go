package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultPollTimeout   = 5 * time.Minute
	DefaultPartialWindow = 20 * time.Second
)

var (
	// ErrPollTimeout is returned by Wait when the job did not finish in time.
	// The accompanying status carries the last partial artifact seen.
	ErrPollTimeout = errors.New("client: polling timed out")
	ErrJobFailed   = errors.New("client: job failed")
	ErrJobExpired  = errors.New("client: job expired")
)

// StatusFetcher is the part of Client the poller needs.
type StatusFetcher interface {
	Status(ctx context.Context, id string, partial bool) (*JobStatus, error)
}

type Poller struct {
	Client        StatusFetcher
	Interval      time.Duration
	Timeout       time.Duration
	PartialWindow time.Duration
	Logger        *infra.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(c StatusFetcher) *Poller {
	return &Poller{
		Client:        c,
		Interval:      DefaultPollInterval,
		Timeout:       DefaultPollTimeout,
		PartialWindow: DefaultPartialWindow,
	}
}

// Wait polls on a fixed interval until the job completes or fails. Partial
// snapshots are requested only once the remaining time drops to
// PartialWindow, so a slow job still yields something to show.
func (p *Poller) Wait(ctx context.Context, id string) (*JobStatus, error) {
	now, sleep := p.now, p.sleep
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}
	interval := durationOr(p.Interval, DefaultPollInterval)
	window := durationOr(p.PartialWindow, DefaultPartialWindow)
	logger := infra.LoggerOrDiscard(p.Logger)

	deadline := now().Add(durationOr(p.Timeout, DefaultPollTimeout))
	last := &JobStatus{Status: domain.JobStatusPending}
	var lastPartial *domain.SchoolArtifact
	for {
		remaining := deadline.Sub(now())
		if remaining <= 0 {
			if lastPartial != nil {
				return &JobStatus{Status: domain.JobStatusPartial, Data: lastPartial}, ErrPollTimeout
			}
			return last, ErrPollTimeout
		}

		st, err := p.Client.Status(ctx, id, remaining <= window)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			logger.Warn().Err(err).Str("job_id", id).Msg("client: poll failed")
		case st.Status == domain.JobStatusCompleted:
			return st, nil
		case st.Status == domain.JobStatusFailed:
			return st, fmt.Errorf("%w: %s", ErrJobFailed, st.Error)
		case st.Status == domain.JobStatusExpired:
			return st, ErrJobExpired
		default:
			last = st
			if st.Status == domain.JobStatusPartial && st.Data != nil {
				lastPartial = st.Data
			}
		}

		wait := interval
		if left := deadline.Sub(now()); left < wait {
			wait = left
		}
		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return last, err
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

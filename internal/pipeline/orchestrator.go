// Package pipeline turns a submitted location into a finished school site:
// text, images, anthem audio and the final archived payload. Every step is
// checkpointed so a retried run resumes where the previous attempt stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
	"schoolsite/internal/textgen"
)

const (
	// DefaultStepTimeout stays below the execution ceiling of a worker run.
	DefaultStepTimeout = 4 * time.Minute
	// MaxImageConcurrency caps the image fan-out.
	MaxImageConcurrency = 8
)

// TextGenerator produces the structured artifact.
type TextGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (textgen.Outcome, error)
}

// AssetGenerator produces media URLs; it never fails.
type AssetGenerator interface {
	GenerateImage(ctx context.Context, prompt string, t domain.ImageType) string
	GenerateAudio(ctx context.Context, lyrics, style, title string) string
}

// JobStore is the subset of the job store the pipeline writes to.
type JobStore interface {
	Status(ctx context.Context, id string) (domain.JobStatus, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	SetPartial(ctx context.Context, id string, artifact *domain.SchoolArtifact) error
	SetFinal(ctx context.Context, id string, artifact *domain.SchoolArtifact) error
	SetError(ctx context.Context, id, message string) error
	Created(ctx context.Context, id string) (time.Time, error)
	Archive(ctx context.Context, entry domain.ArchiveEntry) error
}

// Cache is the best-effort shared key-value store for mock assets.
type Cache interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Text        TextGenerator
	Assets      AssetGenerator
	Jobs        JobStore
	Steps       StepLog
	Cache       Cache
	StepTimeout time.Duration
	Logger      *infra.Logger
	Now         func() time.Time
}

// Orchestrator runs single attempts of the generation workflow.
type Orchestrator struct {
	text        TextGenerator
	assets      AssetGenerator
	jobs        JobStore
	steps       StepLog
	cache       Cache
	stepTimeout time.Duration
	logger      *infra.Logger
	now         func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Text == nil || opts.Assets == nil || opts.Jobs == nil || opts.Steps == nil {
		return nil, errors.New("pipeline: text, assets, jobs and steps are required")
	}
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		text:        opts.Text,
		assets:      opts.Assets,
		jobs:        opts.Jobs,
		steps:       opts.Steps,
		cache:       opts.Cache,
		stepTimeout: timeout,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		now:         now,
	}, nil
}

type textResult struct {
	Artifact *domain.SchoolArtifact `json:"artifact"`
	Fallback bool                   `json:"fallback"`
	Reason   string                 `json:"reason,omitempty"`
	Model    string                 `json:"model,omitempty"`
}

// Run executes one attempt for jobID. Steps recorded by earlier attempts are
// replayed from the step log instead of being executed again. A job that is
// already completed or failed is left untouched.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req domain.GenerationRequest) error {
	status, err := o.jobs.Status(ctx, jobID)
	switch {
	case err == nil && status.Terminal():
		o.logger.Info().Str("job_id", jobID).Str("status", string(status)).Msg("pipeline: job already terminal")
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("pipeline: read status: %w", err)
	}
	req = req.Normalize()
	start := o.now()

	if _, err := runStep(ctx, o, jobID, StepSetRunning, func(ctx context.Context) (bool, error) {
		return true, o.transition(ctx, jobID, domain.JobStatusRunning)
	}); err != nil {
		return err
	}

	text, err := runStep(ctx, o, jobID, StepText, func(ctx context.Context) (textResult, error) {
		outcome, err := o.text.Generate(ctx, req)
		if err != nil {
			return textResult{}, err
		}
		if outcome.Artifact() == nil {
			return textResult{}, errors.New("text generator returned no artifact")
		}
		return textResult{
			Artifact: outcome.Artifact(),
			Fallback: outcome.IsFallback(),
			Reason:   outcome.Reason(),
			Model:    outcome.Model(),
		}, nil
	})
	if err != nil {
		return err
	}
	if err := o.snapshot(ctx, jobID, StepText, text.Artifact); err != nil {
		return err
	}

	withImages, err := runStep(ctx, o, jobID, StepImages, func(ctx context.Context) (*domain.SchoolArtifact, error) {
		return o.FillImages(ctx, req, text.Artifact, text.Fallback)
	})
	if err != nil {
		return err
	}
	if err := o.snapshot(ctx, jobID, StepImages, withImages); err != nil {
		return err
	}

	withAudio, err := runStep(ctx, o, jobID, StepAnthemAudio, func(ctx context.Context) (*domain.SchoolArtifact, error) {
		return o.FillAudio(ctx, withImages, text.Fallback)
	})
	if err != nil {
		return err
	}
	if err := o.snapshot(ctx, jobID, StepAnthemAudio, withAudio); err != nil {
		return err
	}

	if _, err := runStep(ctx, o, jobID, StepSaveFinal, func(ctx context.Context) (bool, error) {
		return true, o.finalize(ctx, jobID, withAudio)
	}); err != nil {
		return err
	}

	o.logger.Info().
		Str("job_id", jobID).
		Bool("fallback", text.Fallback).
		Str("model", text.Model).
		Dur("took", o.now().Sub(start)).
		Msg("pipeline: job completed")
	return nil
}

// FillImages generates every placeholder slot of a concurrently and returns
// an updated copy. A fallback artifact reuses the shared mock assets when all
// required kinds are cached.
func (o *Orchestrator) FillImages(ctx context.Context, req domain.GenerationRequest, a *domain.SchoolArtifact, fallback bool) (*domain.SchoolArtifact, error) {
	out, err := a.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone artifact: %w", err)
	}
	if out.Normalize() > 0 {
		textgen.EnsureInvariants(out, req)
	}
	slots := CollectSlots(out)
	if len(slots) == 0 {
		return out, nil
	}

	if fallback {
		kinds := make([]string, len(slots))
		for i, s := range slots {
			kinds[i] = s.Kind
		}
		if cached, ok := o.cachedAssets(ctx, kinds); ok {
			for _, s := range slots {
				s.Set(cached[s.Kind])
			}
			o.logger.Info().Int("slots", len(slots)).Msg("pipeline: reused cached mock images")
			return out, nil
		}
	}

	urls := make([]string, len(slots))
	var g errgroup.Group
	g.SetLimit(MaxImageConcurrency)
	for i, s := range slots {
		g.Go(func() error {
			urls[i] = o.assets.GenerateImage(ctx, s.Prompt(), s.Type)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	generated := make(map[string]string)
	for i, s := range slots {
		s.Set(urls[i])
		if !domain.IsPlaceholder(urls[i]) {
			generated[s.Kind] = urls[i]
		}
	}
	if fallback && len(generated) > 0 {
		o.rememberAssets(ctx, generated)
	}
	return out, nil
}

// FillAudio attaches the sung anthem to a copy of a. A missing track leaves
// AudioURL empty.
func (o *Orchestrator) FillAudio(ctx context.Context, a *domain.SchoolArtifact, fallback bool) (*domain.SchoolArtifact, error) {
	out, err := a.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone artifact: %w", err)
	}
	song := &out.SchoolSong
	if strings.TrimSpace(song.Lyrics) == "" || !domain.IsPlaceholder(song.AudioURL) {
		return out, nil
	}
	if fallback {
		if cached, ok := o.cachedAssets(ctx, []string{audioCacheKind}); ok {
			song.AudioURL = cached[audioCacheKind]
			return out, nil
		}
	}
	url := o.assets.GenerateAudio(ctx, song.Lyrics, song.Style, song.Title)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if domain.IsPlaceholder(url) {
		song.AudioURL = ""
		return out, nil
	}
	song.AudioURL = url
	if fallback {
		o.rememberAssets(ctx, map[string]string{audioCacheKind: url})
	}
	return out, nil
}

// finalize archives every completed job; its final payload outlives JobTTL
// until the archive entry is deleted.
func (o *Orchestrator) finalize(ctx context.Context, jobID string, a *domain.SchoolArtifact) error {
	if err := o.jobs.SetFinal(ctx, jobID, a); err != nil {
		return fmt.Errorf("save final: %w", err)
	}
	createdAt, err := o.jobs.Created(ctx, jobID)
	if err != nil {
		createdAt = o.now()
	}
	entry := domain.ArchiveEntry{
		ID:        jobID,
		Name:      a.DisplayName(),
		CreatedAt: createdAt.UTC(),
	}
	if a.SchoolProfile.Emblem.HasRealAsset() {
		entry.ThumbnailURL = a.SchoolProfile.Emblem.URL
	}
	if err := o.jobs.Archive(ctx, entry); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return o.transition(ctx, jobID, domain.JobStatusCompleted)
}

func (o *Orchestrator) snapshot(ctx context.Context, jobID, step string, a *domain.SchoolArtifact) error {
	if err := o.jobs.SetPartial(ctx, jobID, a); err != nil {
		return &StepError{Step: step, Err: fmt.Errorf("write partial: %w", err)}
	}
	return nil
}

// transition refuses to move a job out of a terminal state.
func (o *Orchestrator) transition(ctx context.Context, jobID string, next domain.JobStatus) error {
	current, err := o.jobs.Status(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err == nil && current.Terminal() && current != next {
		return fmt.Errorf("%w: %s is %s", domain.ErrTerminalJob, jobID, current)
	}
	return o.jobs.SetStatus(ctx, jobID, next)
}

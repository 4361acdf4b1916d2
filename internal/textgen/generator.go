// Package textgen turns a location into the structured text of a school
// site, falling back to deterministic mock content when no model output is
// usable.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
	"schoolsite/internal/providers/llm"
)

const (
	// MaxCandidates bounds how many models one generation may try.
	MaxCandidates = 6
	// PreferenceKey caches the last model that produced usable output.
	PreferenceKey = "textgen:preferred-model"
	PreferenceTTL = 6 * time.Hour

	DefaultTimeout = 45 * time.Second
)

// Fallback reasons recorded on mock artifacts.
const (
	ReasonNoModel     = "no text model configured"
	ReasonTimeout     = "timeout"
	ReasonModelError  = "model request failed"
	ReasonUnparseable = "unparseable model output"
)

// PreferenceStore is the best-effort shared cache for the preferred model.
type PreferenceStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
}

type Options struct {
	Models      []llm.Model
	Preferences PreferenceStore
	Timeout     time.Duration
	Logger      *infra.Logger
}

type Generator struct {
	models  []llm.Model
	prefs   PreferenceStore
	timeout time.Duration
	logger  *infra.Logger
}

func NewGenerator(opts Options) *Generator {
	models := opts.Models
	if len(models) > MaxCandidates {
		models = models[:MaxCandidates]
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{
		models:  models,
		prefs:   opts.Preferences,
		timeout: timeout,
		logger:  infra.LoggerOrDiscard(opts.Logger),
	}
}

// Generate never fails for bad model output; it only returns an error when
// ctx ends or every model was unreachable at the transport level.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (Outcome, error) {
	req = req.Normalize()
	if len(g.models) == 0 {
		return g.useFallback(req, ReasonNoModel, nil), nil
	}

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := BuildPrompt(req)
	var (
		lastErr     error
		reason      = ReasonModelError
		unreachable int
		attempted   int
	)
	for _, model := range g.candidates(ctx) {
		if tctx.Err() != nil {
			break
		}
		attempted++
		text, err := model.Complete(tctx, prompt)
		if err != nil {
			lastErr = err
			reason = ReasonModelError
			if llm.IsUnreachable(err) {
				unreachable++
			}
			g.logger.Warn().Err(err).Str("model", model.Name()).Msg("textgen: model request failed")
			continue
		}
		artifact, stage, err := ParseArtifact(text)
		if err != nil {
			lastErr = err
			reason = ReasonUnparseable
			g.logger.Warn().Err(err).Str("model", model.Name()).Msg("textgen: model output unusable")
			continue
		}
		EnsureInvariants(artifact, req)
		g.remember(ctx, model.Name())
		g.logger.Info().Str("model", model.Name()).Str("parse_stage", string(stage)).Msg("textgen: generated artifact")
		return Ok(artifact, model.Name()), nil
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return g.useFallback(req, ReasonTimeout, lastErr), nil
	}
	if attempted > 0 && unreachable == attempted {
		return Outcome{}, fmt.Errorf("textgen: all %d models unreachable: %w", attempted, lastErr)
	}
	return g.useFallback(req, reason, lastErr), nil
}

// candidates returns the models with the remembered preference first.
func (g *Generator) candidates(ctx context.Context) []llm.Model {
	if g.prefs == nil {
		return g.models
	}
	preferred, ok, err := g.prefs.GetValue(ctx, PreferenceKey)
	if err != nil {
		g.logger.Debug().Err(err).Msg("textgen: read model preference failed")
		return g.models
	}
	if !ok || preferred == "" {
		return g.models
	}
	ordered := make([]llm.Model, 0, len(g.models))
	for _, m := range g.models {
		if m.Name() == preferred {
			ordered = append(ordered, m)
		}
	}
	for _, m := range g.models {
		if m.Name() != preferred {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func (g *Generator) remember(ctx context.Context, model string) {
	if g.prefs == nil {
		return
	}
	if err := g.prefs.SetValue(ctx, PreferenceKey, model, PreferenceTTL); err != nil {
		g.logger.Debug().Err(err).Msg("textgen: store model preference failed")
	}
}

func (g *Generator) useFallback(req domain.GenerationRequest, reason string, cause error) Outcome {
	evt := g.logger.Warn().Str("reason", reason)
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("textgen: using mock artifact")
	return Fallback(Mock(req), reason)
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"schoolsite/internal/domain"
	"schoolsite/internal/providers/llm"
	"schoolsite/internal/textgen"
)

const (
	// MaxErrorLength caps the user-visible failure message, in runes.
	MaxErrorLength = 300

	backoffBase   = 2 * time.Second
	backoffCap    = 30 * time.Second
	backoffJitter = 0.2

	genericFailure = "generation failed"
)

type failureRecord struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Fail marks the job failed with a sanitized message. It runs at most once
// per job and never overwrites a completed job.
func (o *Orchestrator) Fail(ctx context.Context, jobID string, cause error) error {
	_, done, err := o.steps.LoadStep(ctx, jobID, StepOnFailure)
	if err != nil {
		return fmt.Errorf("pipeline: load failure marker: %w", err)
	}
	if done {
		return nil
	}
	message := SanitizeError(cause)

	status, err := o.jobs.Status(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("pipeline: read status: %w", err)
	}
	if err == nil && status == domain.JobStatusCompleted {
		o.logger.Warn().Str("job_id", jobID).Msg("pipeline: failure after completion ignored")
	} else {
		if err := o.jobs.SetError(ctx, jobID, message); err != nil {
			return fmt.Errorf("pipeline: store error: %w", err)
		}
		if err := o.jobs.SetStatus(ctx, jobID, domain.JobStatusFailed); err != nil {
			return fmt.Errorf("pipeline: store failed status: %w", err)
		}
	}

	record, err := json.Marshal(failureRecord{Message: message, At: o.now().UTC()})
	if err != nil {
		return err
	}
	if err := o.steps.SaveStep(ctx, jobID, StepOnFailure, record); err != nil {
		return fmt.Errorf("pipeline: save failure marker: %w", err)
	}
	o.logger.Error().Err(cause).Str("job_id", jobID).Str("message", message).Msg("pipeline: job failed")
	return nil
}

// SanitizeError turns err into a short user-safe message: provider JSON
// bodies are reduced to their message, remaining raw JSON is dropped,
// whitespace is collapsed and the result is truncated to MaxErrorLength runes.
func SanitizeError(err error) string {
	if err == nil {
		return genericFailure
	}
	msg := err.Error()
	for {
		start := strings.IndexByte(msg, '{')
		if start < 0 {
			break
		}
		span := textgen.ExtractJSONSpan(msg[start:])
		replacement := ""
		if json.Valid([]byte(span)) {
			replacement = llm.ExtractErrorMessage([]byte(span))
		}
		msg = msg[:start] + replacement + msg[start+len(span):]
	}
	msg = strings.Join(strings.Fields(msg), " ")
	msg = strings.TrimRight(msg, " :")
	if msg == "" {
		return genericFailure
	}
	if utf8.RuneCountInString(msg) > MaxErrorLength {
		runes := []rune(msg)
		msg = string(runes[:MaxErrorLength-1]) + "…"
	}
	return msg
}

// Backoff returns the delay before retry attempt n (1-based): exponential
// from 2s, capped at 30s, with ±20% jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Step names double as step-log keys.
const (
	StepSetRunning  = "set-running"
	StepText        = "text-and-anthem"
	StepImages      = "images"
	StepAnthemAudio = "anthem-audio"
	StepSaveFinal   = "save-final"
	StepOnFailure   = "on-failure"
)

// StepError wraps the error of a failed step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// runStep returns the checkpointed result of name when one exists. Otherwise
// it runs fn under the step timeout and checkpoints the result.
func runStep[T any](ctx context.Context, o *Orchestrator, jobID, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, ok, err := o.steps.LoadStep(ctx, jobID, name)
	if err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("load checkpoint: %w", err)}
	}
	if ok {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, &StepError{Step: name, Err: fmt.Errorf("decode checkpoint: %w", err)}
		}
		o.logger.Debug().Str("job_id", jobID).Str("step", name).Msg("pipeline: step replayed from checkpoint")
		return out, nil
	}

	sctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	out, err := fn(sctx)
	if err != nil {
		return zero, &StepError{Step: name, Err: err}
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("encode checkpoint: %w", err)}
	}
	if err := o.steps.SaveStep(ctx, jobID, name, encoded); err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("save checkpoint: %w", err)}
	}
	o.logger.Debug().Str("job_id", jobID).Str("step", name).Msg("pipeline: step completed")
	return out, nil
}

package textgen

import "schoolsite/internal/domain"

// Outcome is the result of a generation: either a model produced the
// artifact or the deterministic mock stood in for it.
type Outcome struct {
	artifact *domain.SchoolArtifact
	model    string
	reason   string
	fallback bool
}

// Ok wraps an artifact produced by model.
func Ok(artifact *domain.SchoolArtifact, model string) Outcome {
	artifact.FallbackUsed = false
	artifact.FallbackReason = ""
	return Outcome{artifact: artifact, model: model}
}

// Fallback wraps a mock artifact and the reason no model output was used.
func Fallback(artifact *domain.SchoolArtifact, reason string) Outcome {
	artifact.FallbackUsed = true
	artifact.FallbackReason = reason
	return Outcome{artifact: artifact, reason: reason, fallback: true}
}

func (o Outcome) Artifact() *domain.SchoolArtifact { return o.artifact }
func (o Outcome) IsFallback() bool                 { return o.fallback }
func (o Outcome) Reason() string                   { return o.reason }
func (o Outcome) Model() string                    { return o.model }

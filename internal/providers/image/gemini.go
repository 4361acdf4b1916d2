package image

import (
	"context"
	"strings"

	"schoolsite/internal/providers/genai"
)

type geminiImageClient interface {
	GenerateImage(context.Context, genai.ImageRequest) (*genai.ImageAsset, error)
	HasCredentials() bool
}

// GeminiGenerator adapts the Gemini image model to the Generator contract.
type GeminiGenerator struct {
	client geminiImageClient
}

// NewGeminiGenerator wraps a Gemini client.
func NewGeminiGenerator(client geminiImageClient) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

// Generate fulfils the Generator interface.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g == nil || g.client == nil || !g.client.HasCredentials() {
		return nil, ErrNotConfigured
	}
	prompt := strings.TrimSpace(req.Prompt)
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		prompt += "\nAvoid: " + neg
	}
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      prompt,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	return &Result{URL: asset.URL, Data: asset.Data, MIME: normalizeFormat(asset.Format)}, nil
}

var _ Generator = (*GeminiGenerator)(nil)

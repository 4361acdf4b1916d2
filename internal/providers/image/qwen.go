package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"schoolsite/internal/providers/qwen"
)

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenGenerator calls DashScope's Qwen image model. A transient failure is
// retried once with a simplified payload.
type QwenGenerator struct {
	client qwenImageClient
}

// NewQwenGenerator wires a Qwen client.
func NewQwenGenerator(client qwenImageClient) *QwenGenerator {
	return &QwenGenerator{client: client}
}

// Generate fulfils the Generator interface.
func (g *QwenGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g == nil || g.client == nil {
		return nil, ErrNotConfigured
	}
	if !g.client.HasCredentials() {
		return nil, fmt.Errorf("%w: qwen missing credentials", ErrNotConfigured)
	}
	prompt := strings.TrimSpace(req.Prompt)
	imageReq := qwen.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Type:           req.Type,
		Seed:           deterministicSeed(g.client.Model(), req.Type, prompt),
	}
	asset, err := g.invokeQwen(ctx, imageReq)
	if err != nil {
		return nil, err
	}
	return &Result{URL: asset.URL, Data: asset.Data, MIME: normalizeFormat(asset.Format)}, nil
}

func (g *QwenGenerator) String() string {
	if g == nil || g.client == nil {
		return "qwen"
	}
	return g.client.Model()
}

var _ Generator = (*QwenGenerator)(nil)

func (g *QwenGenerator) invokeQwen(ctx context.Context, req qwen.ImageRequest) (*qwen.ImageAsset, error) {
	asset, err := g.client.GenerateImage(ctx, req)
	if err == nil {
		return asset, nil
	}
	if !isTransientQwenError(err) || ctx.Err() != nil {
		return nil, err
	}
	return g.client.GenerateImage(ctx, simplifyQwenRequest(req))
}

func deterministicSeed(values ...any) int {
	if len(values) == 0 {
		return 0
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4])
	value := int(n % 2147483647)
	if value <= 0 {
		fallback := binary.BigEndian.Uint32(sum[4:8]) % 2147483647
		if fallback == 0 {
			fallback = 1
		}
		value = int(fallback)
	}
	return value
}

// simplifyQwenRequest drops the optional knobs DashScope most often rejects.
func simplifyQwenRequest(req qwen.ImageRequest) qwen.ImageRequest {
	simplified := req
	simplified.NegativePrompt = ""
	simplified.Seed = 0
	return simplified
}

func isTransientQwenError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *qwen.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 500 {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		return false
	}
	if strings.Contains(msg, "internalerror") || strings.Contains(msg, "internal error") {
		return true
	}
	if strings.Contains(msg, "service unavailable") || strings.Contains(msg, "server unavailable") {
		return true
	}
	if strings.Contains(msg, "timeout") {
		return true
	}
	return false
}

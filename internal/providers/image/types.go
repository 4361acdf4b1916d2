package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schoolsite/internal/domain"
)

// ErrNotConfigured is returned by generators that have no usable credentials.
var ErrNotConfigured = errors.New("image: generator not configured")

// Request describes a normalized request passed to any image provider.
// Providers that size by ratio read AspectRatio; Qwen sizes by Type.
type Request struct {
	Prompt         string
	NegativePrompt string
	Type           domain.ImageType
	AspectRatio    string
}

// Result is a single generated image. Data is set when the provider returned
// the bytes inline; URL is set when the provider hosts the file.
type Result struct {
	URL  string
	Data []byte
	MIME string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Chain tries each generator in order and returns the first success.
type Chain []Generator

// Generate fulfils the Generator interface.
func (c Chain) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(c) == 0 {
		return nil, ErrNotConfigured
	}
	var errs []error
	for i, gen := range c {
		if gen == nil {
			continue
		}
		res, err := gen.Generate(ctx, req)
		if err == nil && res != nil && (res.URL != "" || len(res.Data) > 0) {
			return res, nil
		}
		if err == nil {
			err = errors.New("empty result")
		}
		errs = append(errs, fmt.Errorf("generator %d: %w", i, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrNotConfigured
	}
	return nil, errors.Join(errs...)
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}

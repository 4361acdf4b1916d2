package assets

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
	"schoolsite/internal/providers/audio"
	"schoolsite/internal/providers/image"
	"schoolsite/internal/storage"
)

const (
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 90 * time.Second

	// NoTextSuffix is appended to every image prompt.
	NoTextSuffix = "Do not render any text, letters, numbers, captions, signage, logos made of text or watermarks anywhere in the image."

	negativePrompt = "text, letters, words, captions, watermark, signature, logo text, blurry, deformed"

	imagePrefix = "generated/images"
	audioPrefix = "generated/audio"
)

// AudioProvider produces one track for the anthem.
type AudioProvider interface {
	Generate(ctx context.Context, req audio.Request) (*audio.Result, error)
}

// Options wires providers and storage into a Generator.
type Options struct {
	Images  image.Generator
	Audio   AudioProvider
	Store   storage.ObjectStore
	Timeout time.Duration
	Logger  *infra.Logger
}

// Generator produces media URLs and never fails: any problem yields a
// placeholder URL.
type Generator struct {
	images  image.Generator
	audio   AudioProvider
	store   storage.ObjectStore
	timeout time.Duration
	logger  *infra.Logger
}

// NewGenerator constructs a Generator. Nil providers are allowed and always
// produce placeholders.
func NewGenerator(opts Options) *Generator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{
		images:  opts.Images,
		audio:   opts.Audio,
		store:   opts.Store,
		timeout: timeout,
		logger:  infra.LoggerOrDiscard(opts.Logger),
	}
}

// WithPromptSuffix returns prompt with NoTextSuffix appended once.
func WithPromptSuffix(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if strings.HasSuffix(prompt, NoTextSuffix) {
		return prompt
	}
	if prompt == "" {
		return NoTextSuffix
	}
	return prompt + "\n\n" + NoTextSuffix
}

// GenerateImage returns a public URL for a new image, or the placeholder for t.
func (g *Generator) GenerateImage(ctx context.Context, prompt string, t domain.ImageType) string {
	placeholder := domain.PlaceholderImageURL(t)
	if g.images == nil {
		return placeholder
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.images.Generate(ctx, image.Request{
		Prompt:         WithPromptSuffix(prompt),
		NegativePrompt: negativePrompt,
		Type:           t,
		AspectRatio:    t.Spec().AspectRatio,
	})
	if err != nil {
		g.warn(err, "image", string(t))
		return placeholder
	}
	if res == nil {
		g.warn(errors.New("empty result"), "image", string(t))
		return placeholder
	}
	url, err := g.publish(ctx, imagePrefix, res.URL, res.Data, res.MIME)
	if err != nil {
		g.warn(err, "image", string(t))
		return placeholder
	}
	return url
}

// GenerateAudio returns a public URL for the sung anthem, or an audio placeholder.
func (g *Generator) GenerateAudio(ctx context.Context, lyrics, style, title string) string {
	placeholder := domain.PlaceholderAudioURL(title)
	if g.audio == nil || strings.TrimSpace(lyrics) == "" {
		return placeholder
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.audio.Generate(ctx, audio.Request{Lyrics: lyrics, Style: style, Title: title})
	if err != nil {
		g.warn(err, "audio", title)
		return placeholder
	}
	if res == nil {
		g.warn(errors.New("empty result"), "audio", title)
		return placeholder
	}
	url, err := g.publish(ctx, audioPrefix, res.URL, res.Data, res.MIME)
	if err != nil {
		g.warn(err, "audio", title)
		return placeholder
	}
	return url
}

// publish uploads inline bytes and returns their public URL; hosted URLs
// pass through untouched.
func (g *Generator) publish(ctx context.Context, prefix, hosted string, data []byte, mime string) (string, error) {
	if len(data) > 0 {
		if g.store == nil {
			return "", errors.New("no object store for inline payload")
		}
		key := storage.ContentKey(prefix, mime, data)
		return g.store.Put(ctx, key, mime, data)
	}
	hosted = strings.TrimSpace(hosted)
	if hosted == "" || domain.IsPlaceholder(hosted) {
		return "", errors.New("provider returned no asset")
	}
	return hosted, nil
}

func (g *Generator) warn(err error, kind, label string) {
	g.logger.Warn().Err(err).Str("kind", kind).Str("label", label).Msg("assets: using placeholder")
}

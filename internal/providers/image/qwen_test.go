package image

import (
	"context"
	"errors"
	"testing"

	"schoolsite/internal/domain"
	"schoolsite/internal/providers/genai"
	"schoolsite/internal/providers/qwen"
)

type stubQwenClient struct {
	asset          *qwen.ImageAsset
	err            error
	hasCredentials bool
	calls          int
	requests       []qwen.ImageRequest
	queue          []stubQwenResponse
}

type stubQwenResponse struct {
	asset *qwen.ImageAsset
	err   error
}

func (s *stubQwenClient) GenerateImage(ctx context.Context, req qwen.ImageRequest) (*qwen.ImageAsset, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next.asset, next.err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

func (s *stubQwenClient) HasCredentials() bool { return s.hasCredentials }

func (s *stubQwenClient) Model() string { return "qwen-image-plus" }

type stubGenerator struct {
	result *Result
	err    error
	calls  int
}

func (s *stubGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	s.calls++
	return s.result, s.err
}

type stubGeminiClient struct {
	asset   *genai.ImageAsset
	err     error
	lastReq genai.ImageRequest
}

func (s *stubGeminiClient) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error) {
	s.lastReq = req
	return s.asset, s.err
}

func (s *stubGeminiClient) HasCredentials() bool { return true }

func TestQwenGeneratorWithoutCredentials(t *testing.T) {
	client := &stubQwenClient{}
	_, err := NewQwenGenerator(client).Generate(context.Background(), Request{Prompt: "hello"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("qwen client should not be invoked without credentials")
	}
}

func TestQwenGeneratorSuccess(t *testing.T) {
	generated := &qwen.ImageAsset{URL: "https://example.com/image.png", Format: "image/png", Data: []byte("img")}
	client := &stubQwenClient{hasCredentials: true, asset: generated}
	res, err := NewQwenGenerator(client).Generate(context.Background(), Request{Prompt: "hello", Type: domain.ImageTypeLandscape, AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.URL != generated.URL || string(res.Data) != "img" || res.MIME != "image/png" {
		t.Fatalf("unexpected result: %#v", res)
	}
	if client.calls != 1 {
		t.Fatalf("qwen client calls = %d, want 1", client.calls)
	}
	if client.requests[0].Type != domain.ImageTypeLandscape || client.requests[0].Size != "" {
		t.Fatalf("request should size by type, got %#v", client.requests[0])
	}
	if client.requests[0].Seed <= 0 {
		t.Fatalf("expected deterministic seed")
	}
}

func TestQwenGeneratorRetriesWithSimplifiedPayload(t *testing.T) {
	generated := &qwen.ImageAsset{URL: "https://example.com/image.png", Format: "image/png"}
	client := &stubQwenClient{
		hasCredentials: true,
		queue: []stubQwenResponse{
			{err: &qwen.APIError{Status: 500, Code: "InternalError", Message: "internal error"}},
			{asset: generated},
		},
	}
	res, err := NewQwenGenerator(client).Generate(context.Background(), Request{Prompt: "hello", NegativePrompt: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.requests) != 2 {
		t.Fatalf("expected 2 qwen calls, got %d", len(client.requests))
	}
	if client.requests[0].NegativePrompt == "" {
		t.Fatalf("first request should include negative prompt")
	}
	second := client.requests[1]
	if second.NegativePrompt != "" || second.Seed != 0 {
		t.Fatalf("second request should be simplified, got %#v", second)
	}
	if res.URL != generated.URL {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestQwenGeneratorDoesNotRetryClientErrors(t *testing.T) {
	client := &stubQwenClient{
		hasCredentials: true,
		err:            &qwen.APIError{Status: 429, Message: "rate limited"},
	}
	_, err := NewQwenGenerator(client).Generate(context.Background(), Request{Prompt: "sample"})
	var apiErr *qwen.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single call, got %d", client.calls)
	}
}

func TestGeminiGeneratorForwardsAspectRatio(t *testing.T) {
	client := &stubGeminiClient{asset: &genai.ImageAsset{Data: []byte("x"), Format: "image/jpg"}}
	res, err := NewGeminiGenerator(client).Generate(context.Background(), Request{Prompt: "crest", AspectRatio: "1:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastReq.AspectRatio != "1:1" {
		t.Fatalf("aspect ratio = %q", client.lastReq.AspectRatio)
	}
	if res.MIME != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", res.MIME)
	}
}

func TestChainFirstSuccessWins(t *testing.T) {
	failing := &stubGenerator{err: errors.New("boom")}
	empty := &stubGenerator{result: &Result{}}
	ok := &stubGenerator{result: &Result{URL: "https://cdn.test/a.png"}}
	unused := &stubGenerator{result: &Result{URL: "unused"}}

	res, err := Chain{failing, empty, ok, unused}.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.URL != "https://cdn.test/a.png" {
		t.Fatalf("unexpected result %#v", res)
	}
	if failing.calls != 1 || empty.calls != 1 || ok.calls != 1 || unused.calls != 0 {
		t.Fatalf("unexpected call counts %d %d %d %d", failing.calls, empty.calls, ok.calls, unused.calls)
	}
}

func TestChainAllFail(t *testing.T) {
	boom := errors.New("boom")
	_, err := Chain{&stubGenerator{err: boom}, &stubGenerator{err: ErrNotConfigured}}.Generate(context.Background(), Request{})
	if !errors.Is(err, boom) || !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if _, err := (Chain{}).Generate(context.Background(), Request{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("empty chain should be unconfigured, got %v", err)
	}
}

func TestQwenGeneratorSeedDependsOnImageType(t *testing.T) {
	client := &stubQwenClient{hasCredentials: true, asset: &qwen.ImageAsset{URL: "https://example.com/a.png"}}
	gen := NewQwenGenerator(client)
	for _, typ := range []domain.ImageType{domain.ImageTypeEmblem, domain.ImageTypeEmblem, domain.ImageTypePortrait} {
		if _, err := gen.Generate(context.Background(), Request{Prompt: "crest", Type: typ}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if client.requests[0].Seed != client.requests[1].Seed {
		t.Fatalf("same type and prompt should reuse the seed")
	}
	if client.requests[0].Seed == client.requests[2].Seed {
		t.Fatalf("different types should not share a seed")
	}
}

package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"schoolsite/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func response(code int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGenerateImageDownloadsResult(t *testing.T) {
	var payload synthesisRequest
	client, err := NewClient(Options{
		APIKey: "test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/services/aigc/multimodal-generation/generation"):
				if r.Header.Get("Authorization") != "Bearer test" {
					t.Fatalf("missing bearer token")
				}
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Fatalf("decode payload: %v", err)
				}
				return response(200, "application/json", `{"output":{"choices":[{"message":{"content":[{"image":"https://example.com/out.png"}]}}]},"request_id":"req-1"}`), nil
			case r.URL.String() == "https://example.com/out.png":
				return response(200, "image/png", "\x89PNG"), nil
			}
			t.Fatalf("unexpected request %s", r.URL)
			return nil, nil
		})},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "a school", Size: "1664*928", Seed: 7})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if asset.URL != "https://example.com/out.png" || string(asset.Data) != "\x89PNG" || asset.Format != "image/png" {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if payload.Parameters.Size != "1664*928" || payload.Parameters.Seed == nil || *payload.Parameters.Seed != 7 {
		t.Fatalf("unexpected parameters: %+v", payload.Parameters)
	}
	if payload.Parameters.Watermark == nil || *payload.Parameters.Watermark {
		t.Fatalf("watermark should be explicitly disabled")
	}
}

func TestGenerateImageAPIError(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(500, "application/json", `{"code":"InternalError","message":"internal error"}`), nil
		})},
	})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "InternalError" {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestGenerateImageRequiresCredentials(t *testing.T) {
	client, _ := NewClient(Options{})
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateImageSizesByImageType(t *testing.T) {
	tests := []struct {
		name string
		req  ImageRequest
		want string
	}{
		{name: "landscape", req: ImageRequest{Prompt: "campus", Type: domain.ImageTypeLandscape}, want: "1664*928"},
		{name: "fullbody", req: ImageRequest{Prompt: "uniform", Type: domain.ImageTypeFullBody}, want: "928*1664"},
		{name: "emblem", req: ImageRequest{Prompt: "crest", Type: domain.ImageTypeEmblem}, want: "1328*1328"},
		{name: "portrait", req: ImageRequest{Prompt: "principal", Type: domain.ImageTypePortrait}, want: "1328*1328"},
		{name: "explicit size wins", req: ImageRequest{Prompt: "campus", Type: domain.ImageTypeLandscape, Size: "1472*1104"}, want: "1472*1104"},
		{name: "untyped uses default", req: ImageRequest{Prompt: "campus"}, want: "1140*1472"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var payload synthesisRequest
			client, _ := NewClient(Options{
				APIKey:      "test",
				DefaultSize: "1140*1472",
				HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
					if r.Method == http.MethodGet {
						return response(200, "", "\x89PNG\r\n\x1a\n"), nil
					}
					if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
						t.Fatalf("decode payload: %v", err)
					}
					return response(200, "application/json", `{"output":{"choices":[{"message":{"content":[{"image":"https://example.com/out.png"}]}}]}}`), nil
				})},
			})
			asset, err := client.GenerateImage(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("GenerateImage: %v", err)
			}
			if payload.Parameters.Size != tc.want {
				t.Fatalf("size = %q, want %q", payload.Parameters.Size, tc.want)
			}
			if asset.Format != "image/png" {
				t.Fatalf("sniffed format = %q, want image/png", asset.Format)
			}
		})
	}
}

func TestSizeForCoversEveryImageType(t *testing.T) {
	for _, typ := range []domain.ImageType{domain.ImageTypePortrait, domain.ImageTypeEmblem, domain.ImageTypeLandscape, domain.ImageTypeFullBody} {
		if SizeFor(typ) == "" {
			t.Errorf("no size for %q", typ)
		}
	}
	if got := SizeFor("banner"); got != "" {
		t.Fatalf("unknown type size = %q, want empty", got)
	}
}

func TestGenerateImageRejectsBadResults(t *testing.T) {
	tests := []struct {
		name     string
		imageURL string
		body     string
	}{
		{name: "non-http url", imageURL: "file:///etc/passwd", body: "x"},
		{name: "empty body", imageURL: "https://example.com/out.png", body: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := NewClient(Options{
				APIKey: "test",
				HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
					if r.Method == http.MethodGet {
						return response(200, "image/png", tc.body), nil
					}
					return response(200, "application/json", `{"output":{"choices":[{"message":{"content":[{"image":"`+tc.imageURL+`"}]}}]}}`), nil
				})},
			})
			if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestGenerateImageStatusWithoutBody(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(503, "text/plain", "upstream"), nil
		})},
	})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 503 || apiErr.Message != "Service Unavailable" {
		t.Fatalf("expected status-only APIError, got %v", err)
	}
}

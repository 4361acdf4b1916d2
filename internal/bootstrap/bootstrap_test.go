package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"schoolsite/internal/infra"
	"schoolsite/internal/infra/credentials"
	"schoolsite/internal/queue"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		AppEnv:             "test",
		DefaultLocale:      "ja",
		JobIDPrefix:        "school",
		StoragePath:        t.TempDir(),
		StorageBaseURL:     "http://localhost:8080/static",
		OpenAIModels:       []string{"gpt-4o-mini", "gpt-4.1-mini"},
		GeminiTextModels:   []string{"gemini-2.5-flash"},
		TextTimeout:        time.Second,
		AssetTimeout:       time.Second,
		StepTimeout:        5 * time.Second,
		JobTTL:             time.Hour,
		PipelineMaxRetries: 1,
		WorkerConcurrency:  1,
		WorkerPollInterval: 10 * time.Millisecond,
	}
}

func TestNewFallsBackToInProcessServices(t *testing.T) {
	s, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	if s.Shared {
		t.Fatal("memory queue reported as shared")
	}
	if _, ok := s.Queue.(*queue.MemoryQueue); !ok {
		t.Fatalf("queue = %T", s.Queue)
	}
	if s.Files == nil || s.Geo != nil {
		t.Fatalf("files = %v, geo = %v", s.Files, s.Geo)
	}
	if s.Worker() == nil {
		t.Fatal("Worker() returned nil")
	}
}

func TestHandlerServesHealthAndStatic(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	if err := os.WriteFile(filepath.Join(s.Files.BasePath(), "hello.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := s.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	for _, path := range []string{"/v1/healthz", "/static/hello.txt"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestTextModelsFollowResolvedKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeminiAPIKey = "gem-env"

	stored := map[string]string{credentials.ProviderOpenAI: "sk-stored"}
	key := func(provider, configured string) string {
		if configured != "" {
			return configured
		}
		return stored[provider]
	}

	models := TextModels(cfg, key)
	var names []string
	for _, m := range models {
		names = append(names, m.Name())
	}
	got := strings.Join(names, ",")
	want := "openai:gpt-4o-mini,openai:gpt-4.1-mini,gemini:gemini-2.5-flash"
	if got != want {
		t.Fatalf("models = %s, want %s", got, want)
	}

	delete(stored, credentials.ProviderOpenAI)
	cfg.GeminiAPIKey = ""
	if models := TextModels(cfg, key); len(models) != 0 {
		t.Fatalf("expected no models without keys, got %d", len(models))
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

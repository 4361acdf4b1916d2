package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/providers/llm"
)

type stubModel struct {
	name  string
	reply string
	err   error
	block bool
	calls int
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.reply, m.err
}

type memoryPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func (p *memoryPrefs) GetValue(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memoryPrefs) SetValue(_ context.Context, key, value string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		p.values = map[string]string{}
	}
	p.values[key] = value
	return nil
}

var tokyo = domain.GenerationRequest{Lat: 35.6586, Lng: 139.7454, Landmarks: []string{"東京タワー"}}

func modelReply(t *testing.T, lyrics string) string {
	t.Helper()
	a := Mock(tokyo)
	a.SchoolProfile.Name = "東京タワー学園"
	a.SchoolSong.Lyrics = lyrics
	a.PrincipalMessage.Name = "山田 花子"
	a.PrincipalMessage.Gender = "male"
	a.PrincipalMessage.Face = domain.ImageSlot{Prompt: "Portrait of a smiling man in a suit"}
	a.SchoolProfile.Emblem.URL = ""
	a.News = a.News[:2]
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return "Here is the JSON:\n" + string(data)
}

func TestGenerateWithoutModelsFallsBack(t *testing.T) {
	gen := NewGenerator(Options{})
	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.IsFallback() || out.Reason() != ReasonNoModel {
		t.Fatalf("expected no-model fallback, got %+v", out)
	}
	a := out.Artifact()
	if !a.FallbackUsed || a.FallbackReason != ReasonNoModel {
		t.Fatalf("fallback fields not mirrored: %v %q", a.FallbackUsed, a.FallbackReason)
	}
}

func TestGenerateParsesAndEnforcesInvariants(t *testing.T) {
	model := &stubModel{name: "openai:test", reply: modelReply(t, "only one verse")}
	prefs := &memoryPrefs{}
	gen := NewGenerator(Options{Models: []llm.Model{model}, Preferences: prefs})

	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.IsFallback() {
		t.Fatalf("unexpected fallback: %s", out.Reason())
	}
	a := out.Artifact()
	if a.SchoolProfile.Name != "東京タワー学園" {
		t.Fatalf("model content not used: %q", a.SchoolProfile.Name)
	}
	if got := len(a.SchoolSong.Verses()); got != domain.VerseCount {
		t.Fatalf("verses = %d, want %d", got, domain.VerseCount)
	}
	if a.PrincipalMessage.Gender != GenderFemale {
		t.Fatalf("gender = %q, want female from name", a.PrincipalMessage.Gender)
	}
	if !strings.Contains(a.PrincipalMessage.Face.Prompt, "woman") || strings.Contains(a.PrincipalMessage.Face.Prompt, " man ") {
		t.Fatalf("face prompt not aligned: %q", a.PrincipalMessage.Face.Prompt)
	}
	if !domain.IsPlaceholder(a.SchoolProfile.Emblem.URL) || a.SchoolProfile.Emblem.URL == "" {
		t.Fatalf("empty emblem url not replaced by placeholder: %q", a.SchoolProfile.Emblem.URL)
	}
	if len(a.News) != domain.NewsCount {
		t.Fatalf("news = %d, want %d", len(a.News), domain.NewsCount)
	}
	if prefs.values[PreferenceKey] != "openai:test" {
		t.Fatalf("preference not stored: %v", prefs.values)
	}
}

func TestGenerateTriesPreferredModelFirst(t *testing.T) {
	first := &stubModel{name: "a", reply: modelReply(t, "x\n\ny\n\nz")}
	second := &stubModel{name: "b", reply: modelReply(t, "x\n\ny\n\nz")}
	prefs := &memoryPrefs{values: map[string]string{PreferenceKey: "b"}}
	gen := NewGenerator(Options{Models: []llm.Model{first, second}, Preferences: prefs})

	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Model() != "b" || first.calls != 0 || second.calls != 1 {
		t.Fatalf("model=%s first=%d second=%d", out.Model(), first.calls, second.calls)
	}
}

func TestGenerateFallsThroughBadCandidates(t *testing.T) {
	broken := &stubModel{name: "broken", reply: "I am sorry, I cannot do that."}
	failing := &stubModel{name: "failing", err: &llm.StatusError{Provider: "openai", Code: 500, Message: "oops"}}
	good := &stubModel{name: "good", reply: modelReply(t, "x\n\ny\n\nz")}
	gen := NewGenerator(Options{Models: []llm.Model{broken, failing, good}})

	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.IsFallback() || out.Model() != "good" {
		t.Fatalf("expected good model, got %+v", out)
	}
}

func TestGenerateAllCandidatesFailFallsBack(t *testing.T) {
	gen := NewGenerator(Options{Models: []llm.Model{
		&stubModel{name: "a", reply: "not json"},
		&stubModel{name: "b", err: &llm.StatusError{Provider: "gemini", Code: 503}},
	}})
	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.IsFallback() {
		t.Fatalf("expected fallback")
	}
	if got := len(out.Artifact().SchoolSong.Verses()); got != domain.VerseCount {
		t.Fatalf("mock verses = %d", got)
	}
}

func TestGenerateTimeoutFallsBack(t *testing.T) {
	gen := NewGenerator(Options{Models: []llm.Model{&stubModel{name: "slow", block: true}}, Timeout: 20 * time.Millisecond})
	out, err := gen.Generate(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.IsFallback() || out.Reason() != ReasonTimeout {
		t.Fatalf("expected timeout fallback, got %q", out.Reason())
	}
}

func TestGenerateUnreachableProvidersReturnError(t *testing.T) {
	unreachable := fmt.Errorf("openai request: %w: %w", domain.ErrProviderUnreachable, syscall.ECONNREFUSED)
	gen := NewGenerator(Options{Models: []llm.Model{
		&stubModel{name: "a", err: unreachable},
		&stubModel{name: "b", err: unreachable},
	}})
	_, err := gen.Generate(context.Background(), tokyo)
	if !errors.Is(err, domain.ErrProviderUnreachable) {
		t.Fatalf("expected ErrProviderUnreachable, got %v", err)
	}
}

func TestGenerateCanceledContextReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := NewGenerator(Options{Models: []llm.Model{&stubModel{name: "slow", block: true}}})
	if _, err := gen.Generate(ctx, tokyo); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateCapsCandidates(t *testing.T) {
	var models []llm.Model
	var stubs []*stubModel
	for i := 0; i < MaxCandidates+2; i++ {
		m := &stubModel{name: fmt.Sprintf("m%d", i), reply: "nope"}
		stubs = append(stubs, m)
		models = append(models, m)
	}
	gen := NewGenerator(Options{Models: models})
	if _, err := gen.Generate(context.Background(), tokyo); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, m := range stubs {
		want := 1
		if i >= MaxCandidates {
			want = 0
		}
		if m.calls != want {
			t.Fatalf("model %d calls = %d, want %d", i, m.calls, want)
		}
	}
}

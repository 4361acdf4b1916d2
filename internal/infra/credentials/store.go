// Package credentials keeps provider API keys in Postgres so they can be
// rotated without redeploying.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"schoolsite/internal/infra"
	"schoolsite/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderQwen   = "qwen"
	ProviderAudio  = "audio"
)

// Providers lists every provider a key can be stored for.
var Providers = []string{ProviderOpenAI, ProviderGemini, ProviderQwen, ProviderAudio}

var ErrUnknownProvider = errors.New("credentials: unknown provider")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QEnsureProviderKeys); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// Key returns the stored key for provider, or "" when none is stored.
func (s *Store) Key(ctx context.Context, provider string) (string, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return "", err
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider)
	var key string
	if err := row.Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func (s *Store) SetKey(ctx context.Context, provider, key string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credentials: %s api key is required", provider)
	}
	raw, err := json.Marshal(map[string]any{"source": "providerkey"})
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, key, raw)
	return err
}

func (s *Store) DeleteKey(ctx context.Context, provider string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QDeleteProviderKey, provider)
	return err
}

// Resolve prefers an explicitly configured key and falls back to the stored
// one. Lookup failures resolve to the configured value.
func (s *Store) Resolve(ctx context.Context, provider, configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" || s == nil {
		return configured
	}
	key, err := s.Key(ctx, provider)
	if err != nil {
		return ""
	}
	return key
}

func normalizeProvider(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range Providers {
		if p == provider {
			return provider, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

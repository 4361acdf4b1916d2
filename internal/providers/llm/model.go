// Package llm holds the chat-completion clients used for structured text
// generation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"schoolsite/internal/domain"
)

// Model completes a prompt and returns the raw model text.
type Model interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// StatusError is a non-2xx provider response. Message is the provider's
// human readable error, never the raw body.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return domain.ErrProviderFailure }

// ErrEmptyResponse is returned when the provider answered without content.
var ErrEmptyResponse = errors.New("empty model response")

const maxErrorBody = 64 << 10

func readStatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Message: ExtractErrorMessage(body)}
}

// ExtractErrorMessage pulls error.message or message out of a JSON error
// body. Non-JSON bodies are returned trimmed.
func ExtractErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		text := strings.TrimSpace(string(body))
		if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
			return ""
		}
		return text
	}
	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return strings.TrimSpace(nested.Message)
		}
		var plain string
		if err := json.Unmarshal(payload.Error, &plain); err == nil && plain != "" {
			return strings.TrimSpace(plain)
		}
	}
	return strings.TrimSpace(payload.Message)
}

// wrapTransport marks connection level failures as unreachable so the
// caller can retry the whole run. Timeouts and cancellations pass through.
func wrapTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	return fmt.Errorf("%s request: %w: %w", provider, domain.ErrProviderUnreachable, err)
}

// IsUnreachable reports whether err came from a transport level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, domain.ErrProviderUnreachable)
}

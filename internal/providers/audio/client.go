package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"schoolsite/internal/infra"
)

var (
	// ErrNotConfigured is returned when no endpoint is configured.
	ErrNotConfigured = errors.New("audio: endpoint not configured")
	// ErrNoAudio is returned when a 2xx response carries no usable payload.
	ErrNoAudio = errors.New("audio: response contained no audio")
)

// Options configures the music-generation client.
type Options struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Request carries the anthem to be sung.
type Request struct {
	Lyrics string
	Style  string
	Title  string
}

// Result is either a hosted URL or inline bytes.
type Result struct {
	URL  string
	Data []byte
	MIME string
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("audio: status %d: %s", e.Code, e.Body)
}

// Client talks to a generic music-generation HTTP API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	Lyrics       string `json:"lyrics"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Instrumental bool   `json:"instrumental"`
}

// NewClient constructs a client. An empty endpoint yields a client whose
// Generate always returns ErrNotConfigured.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSpace(opts.Endpoint),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.endpoint != ""
}

// Generate requests one track and normalises the provider's response shape.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.HasCredentials() {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(generateRequest{
		Prompt: strings.TrimSpace(req.Style),
		Lyrics: strings.TrimSpace(req.Lyrics),
		Style:  strings.TrimSpace(req.Style),
		Title:  strings.TrimSpace(req.Title),
	})
	if err != nil {
		return nil, fmt.Errorf("audio: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("audio: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("audio: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("audio: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("audio: decode response: %w", err)
	}
	res, err := ParseResponse(decoded)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("title", req.Title).Bool("inline", len(res.Data) > 0).Msg("audio: generated track")
	return res, nil
}

// ParseResponse extracts the track from the shapes music APIs commonly use:
// {audio_url}, {url}, {data:[{audio_url}]}, {data:{audio_url}},
// {output:{audio}} holding a URL or base64, and {audio_base64}.
func ParseResponse(body map[string]any) (*Result, error) {
	if u := stringField(body, "audio_url", "audioUrl", "url"); u != "" {
		return &Result{URL: u}, nil
	}
	switch data := body["data"].(type) {
	case []any:
		for _, item := range data {
			if m, ok := item.(map[string]any); ok {
				if u := stringField(m, "audio_url", "audioUrl", "url"); u != "" {
					return &Result{URL: u}, nil
				}
			}
		}
	case map[string]any:
		if u := stringField(data, "audio_url", "audioUrl", "url"); u != "" {
			return &Result{URL: u}, nil
		}
	}
	if output, ok := body["output"].(map[string]any); ok {
		if v := stringField(output, "audio", "audio_url", "url"); v != "" {
			return fromValue(v, stringField(output, "mime_type", "format"))
		}
	}
	if v := stringField(body, "audio_base64", "audio"); v != "" {
		return fromValue(v, stringField(body, "mime_type", "format"))
	}
	return nil, ErrNoAudio
}

func fromValue(v, mime string) (*Result, error) {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return &Result{URL: v}, nil
	}
	if strings.HasPrefix(v, "data:") {
		if i := strings.Index(v, ","); i > 0 {
			header := v[len("data:"):i]
			mime = strings.TrimSuffix(header, ";base64")
			v = v[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("audio: decode inline payload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoAudio
	}
	return &Result{Data: data, MIME: normalizeMIME(mime)}, nil
}

func normalizeMIME(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "mp3", "audio/mp3", "audio/mpeg":
		return "audio/mpeg"
	case "wav", "audio/wav", "audio/x-wav":
		return "audio/wav"
	}
	if strings.HasPrefix(v, "audio/") {
		return v
	}
	return "audio/" + v
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

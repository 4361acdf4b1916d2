package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"schoolsite/internal/domain"
	"schoolsite/internal/infra"
)

const (
	defaultBaseURL   = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel     = "qwen-image-plus"
	squareSize       = "1328*1328"
	synthesisPath    = "/services/aigc/multimodal-generation/generation"
	maxResponseBytes = 1 << 20
	maxImageBytes    = 20 << 20
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// sizes maps each school image type to a DashScope size token. The model
// only accepts a fixed set of resolutions, so square types use 1328*1328
// rather than the 1024 px edge the site renders at.
var sizes = map[domain.ImageType]string{
	domain.ImageTypePortrait:  squareSize,
	domain.ImageTypeEmblem:    squareSize,
	domain.ImageTypeLandscape: "1664*928",
	domain.ImageTypeFullBody:  "928*1664",
}

// SizeFor returns the DashScope size token for t, or "" for an unknown type.
func SizeFor(t domain.ImageType) string {
	return sizes[t]
}

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	DefaultSize    string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client renders school images through the DashScope Qwen image model.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	defaultSize  string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       *infra.Logger
}

// ImageRequest is one image to render. Size overrides the size derived
// from Type; both empty means DefaultSize.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Type           domain.ImageType
	Size           string
	Seed           int
}

// ImageAsset is a rendered image. Data holds the downloaded bytes because
// DashScope result URLs expire within a day.
type ImageAsset struct {
	URL    string
	Data   []byte
	Format string
}

// APIError is a DashScope error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("qwen: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("qwen: status %d: %s", e.Status, e.Message)
}

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Messages []synthesisMessage `json:"messages"`
}

type synthesisMessage struct {
	Role    string        `json:"role"`
	Content []messagePart `json:"content"`
}

type messagePart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type synthesisParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Seed           *int   `json:"seed,omitempty"`
}

type synthesisResponse struct {
	Output struct {
		Choices []struct {
			Message synthesisMessage `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		model:        strings.TrimSpace(opts.Model),
		defaultSize:  strings.TrimSpace(opts.DefaultSize),
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.defaultSize == "" {
		c.defaultSize = squareSize
	}
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImage renders one image and downloads it.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}
	decoded, err := c.submit(ctx, payload)
	if err != nil {
		return nil, err
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, errors.New("qwen: empty image url")
	}
	data, format, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("type", string(req.Type)).
		Str("size", payload.Parameters.Size).
		Str("request_id", decoded.RequestID).
		Int("bytes", len(data)).
		Msg("qwen: image rendered")
	return &ImageAsset{URL: imageURL, Data: data, Format: format}, nil
}

func (c *Client) sizeFor(req ImageRequest) string {
	if size := strings.TrimSpace(req.Size); size != "" {
		return size
	}
	if size := SizeFor(req.Type); size != "" {
		return size
	}
	return c.defaultSize
}

func (c *Client) buildPayload(req ImageRequest) (synthesisRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return synthesisRequest{}, errors.New("qwen: prompt is required")
	}
	watermark := c.watermark
	payload := synthesisRequest{
		Model: c.model,
		Input: synthesisInput{Messages: []synthesisMessage{{
			Role:    "user",
			Content: []messagePart{{Text: prompt}},
		}}},
		Parameters: synthesisParams{
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
			Size:           c.sizeFor(req),
			Watermark:      &watermark,
		},
	}
	if c.promptExtend {
		extend := true
		payload.Parameters.PromptExtend = &extend
	}
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}
	return payload, nil
}

func (c *Client) submit(ctx context.Context, payload synthesisRequest) (synthesisResponse, error) {
	var decoded synthesisResponse
	body, err := json.Marshal(payload)
	if err != nil {
		return decoded, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+synthesisPath, bytes.NewReader(body))
	if err != nil {
		return decoded, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decoded, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decoded, fmt.Errorf("qwen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decoded, decodeAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, fmt.Errorf("qwen: decode response: %w", err)
	}
	if decoded.Code != "" {
		return decoded, &APIError{Status: resp.StatusCode, Code: decoded.Code, Message: decoded.Message}
	}
	return decoded, nil
}

func decodeAPIError(status int, raw []byte) error {
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
		return &APIError{Status: status, Code: detail.Code, Message: detail.Message}
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("qwen: image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("qwen: empty image body")
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = http.DetectContentType(data)
	}
	return data, format, nil
}

func firstImageURL(resp synthesisResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, part := range choice.Message.Content {
			if u := strings.TrimSpace(part.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

// Package client talks to the job API over HTTP.
package client

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
)

const defaultHTTPTimeout = 30 * time.Second

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// JobStatus is the polling response.
type JobStatus struct {
	Status domain.JobStatus       `json:"status"`
	Data   *domain.SchoolArtifact `json:"data,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: httpClient}
}

type submitRequest struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Address   string   `json:"address,omitempty"`
	Landmarks []string `json:"landmarks,omitempty"`
}

// Submit creates a job and returns its id.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	body := submitRequest{Lat: req.Lat, Lng: req.Lng, Address: req.Address, Landmarks: req.Landmarks}
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("api: response without jobId")
	}
	return out.JobID, nil
}

func (c *Client) Status(ctx context.Context, id string, partial bool) (*JobStatus, error) {
	path := "/jobs/" + url.PathEscape(id)
	if partial {
		path += "?partial=1"
	}
	var out JobStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Archive(ctx context.Context) ([]domain.ArchiveEntry, error) {
	var out struct {
		Items []domain.ArchiveEntry `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/archive", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Star(ctx context.Context, id string) (int64, error) {
	var out struct {
		Stars int64 `json:"stars"`
	}
	if err := c.do(ctx, http.MethodPost, "/archive/"+url.PathEscape(id)+"/star", nil, &out); err != nil {
		return 0, err
	}
	return out.Stars, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/archive/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &payload)
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

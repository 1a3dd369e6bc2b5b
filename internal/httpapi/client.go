// Package httpapi is a typed client for the relay server's endpoints.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"papertalk.app/relay/internal/http/dto"
	"papertalk.app/relay/internal/model"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the relay server at baseURL. The underlying
// http.Client carries no overall timeout: streaming responses are open-ended,
// and per-request deadlines come from the caller's context.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// FetchSource retrieves the LaTeX source for a paper id. Any failure —
// network or non-2xx — is an error; callers treat it as "no context
// available" rather than fatal.
func (c *Client) FetchSource(ctx context.Context, arxivID string) (string, error) {
	u := fmt.Sprintf("%s/api/source?arxivId=%s", c.baseURL, url.QueryEscape(arxivID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building source request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching source: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading source response: %w", err)
	}
	return string(body), nil
}

// Chat issues a non-streaming completion for the given API log.
func (c *Client) Chat(ctx context.Context, turns []model.Turn) (*model.Message, error) {
	resp, err := c.postChat(ctx, turns, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, chatError(resp)
	}

	var payload dto.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	return &model.Message{
		ID:     payload.ID,
		Sender: payload.Sender,
		Text:   payload.Text,
	}, nil
}

// ChatStream opens a streaming completion and returns the raw framed event
// stream. The caller owns the body and must close it; cancelling ctx closes
// the connection, which is the protocol's only cancellation primitive.
func (c *Client) ChatStream(ctx context.Context, turns []model.Turn) (io.ReadCloser, error) {
	resp, err := c.postChat(ctx, turns, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, chatError(resp)
	}

	return resp.Body, nil
}

func (c *Client) postChat(ctx context.Context, turns []model.Turn, stream bool) (*http.Response, error) {
	body, err := json.Marshal(dto.ChatRequest{
		Messages: dto.ToTurnPayloads(turns),
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling chat endpoint: %w", err)
	}
	return resp, nil
}

func chatError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("chat failed: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("chat failed: status %d", resp.StatusCode)
}

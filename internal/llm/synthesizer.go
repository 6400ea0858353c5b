// Package llm provides the optional LLM synthesis collaborator. A nil
// Synthesizer means synthesis is disabled; any synthesis failure is absorbed
// by the caller, never propagated.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const httpTimeout = 90 * time.Second

// Synthesis is one LLM completion plus the provider that produced it.
type Synthesis struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// Synthesizer generates narrative text from a prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt, system string, temperature float64) (Synthesis, error)
}

// Client is an OpenAI-compatible chat completions implementation of
// Synthesizer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates a synthesis client for an OpenAI-compatible endpoint.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Synthesize runs one chat completion.
func (c *Client) Synthesize(ctx context.Context, prompt, system string, temperature float64) (Synthesis, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return Synthesis{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Synthesis{}, fmt.Errorf("create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Synthesis{}, fmt.Errorf("send synthesis request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Synthesis{}, fmt.Errorf("synthesis API error (model=%s, status=%d): %s",
			c.model, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Synthesis{}, fmt.Errorf("decode synthesis response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Synthesis{}, fmt.Errorf("synthesis API returned no choices (model=%s)", c.model)
	}

	provider := cr.Model
	if provider == "" {
		provider = c.model
	}
	return Synthesis{Text: cr.Choices[0].Message.Content, Provider: provider}, nil
}

// Package summarize provides the client for the external per-document
// summarizer. The aggregation pipeline consumes it through the Summarizer
// interface so tests and alternate backends can be injected.
package summarize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"crossdoc/pkg/models"
)

const httpTimeout = 60 * time.Second

// Summary is one summarization result as reported by the collaborator.
// ChunksUsed == 0 marks an empty or missing document.
type Summary struct {
	Text       string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	ModeUsed   string  `json:"mode_used"`
	ChunksUsed int     `json:"chunks_used"`
}

// Summarizer produces a summary for one document.
type Summarizer interface {
	Summarize(ctx context.Context, documentID string, mode models.SummaryMode, maxChunks int) (Summary, error)
}

// Client is the HTTP implementation of Summarizer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	group      singleflight.Group
}

// NewClient creates a summarizer client for the given base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type summarizeRequest struct {
	DocumentID string `json:"document_id"`
	Mode       string `json:"mode"`
	MaxChunks  int    `json:"max_chunks"`
}

type summarizeResponse struct {
	Summary   string `json:"summary"`
	Telemetry struct {
		ConfidenceTop float64 `json:"confidence_top"`
		ModeUsed      string  `json:"mode_used"`
		ChunksUsed    int     `json:"chunks_used"`
	} `json:"telemetry"`
}

// Summarize fetches a summary for one document. Concurrent calls for the
// same (document, mode, chunks) tuple are collapsed into a single request.
func (c *Client) Summarize(ctx context.Context, documentID string, mode models.SummaryMode, maxChunks int) (Summary, error) {
	key := fmt.Sprintf("%s|%s|%d", documentID, mode, maxChunks)

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, documentID, mode, maxChunks)
	})
	if shared {
		log.Debug().Str("document_id", documentID).Msg("Summarize request deduplicated")
	}
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (c *Client) fetch(ctx context.Context, documentID string, mode models.SummaryMode, maxChunks int) (Summary, error) {
	body, err := json.Marshal(summarizeRequest{
		DocumentID: documentID,
		Mode:       string(mode),
		MaxChunks:  maxChunks,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(body))
	if err != nil {
		return Summary{}, fmt.Errorf("create summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("send summarize request for %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Summary{}, fmt.Errorf("summarizer error (document=%s, status=%d): %s",
			documentID, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var sr summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Summary{}, fmt.Errorf("decode summarize response for %s: %w", documentID, err)
	}

	return Summary{
		Text:       sr.Summary,
		Confidence: sr.Telemetry.ConfidenceTop,
		ModeUsed:   sr.Telemetry.ModeUsed,
		ChunksUsed: sr.Telemetry.ChunksUsed,
	}, nil
}

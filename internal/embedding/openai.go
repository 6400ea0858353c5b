package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"crossdoc/internal/config"
)

const (
	// OpenAIModelVersion is the registry key for the REST provider.
	OpenAIModelVersion     = "openai"
	OpenAIDefaultBaseURL   = "https://api.openai.com/v1"
	OpenAIDefaultModel     = "text-embedding-3-small"
	OpenAIDefaultDimension = 1536
	openAIHTTPTimeout      = 30 * time.Second
)

// openAIModel talks to any OpenAI-compatible embeddings endpoint, including
// LiteLLM-style proxies.
type openAIModel struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
}

type openAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func init() {
	RegisterModel(ModelMetadata{
		Name:        "OpenAI Compatible",
		Version:     OpenAIModelVersion,
		Dimensions:  OpenAIDefaultDimension,
		Description: "OpenAI-compatible embedding via REST API (supports LiteLLM proxy)",
		Default:     true,
	}, newOpenAIModel)
}

func newOpenAIModel() (Model, error) {
	cfg := config.Get()

	apiKey := cfg.EmbeddingAPIKey
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required for the openai provider")
	}

	baseURL := cfg.EmbeddingBaseURL
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}
	modelName := cfg.EmbeddingModelName
	if modelName == "" {
		modelName = OpenAIDefaultModel
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = OpenAIDefaultDimension
	}

	return &openAIModel{
		client:     &http.Client{Timeout: openAIHTTPTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelName:  modelName,
		dimensions: dimensions,
	}, nil
}

func (m *openAIModel) Name() string    { return "OpenAI Compatible" }
func (m *openAIModel) Version() string { return OpenAIModelVersion }
func (m *openAIModel) Dimensions() int { return m.dimensions }
func (m *openAIModel) Close() error    { return nil }

// EmbedBatch generates one embedding per text. Empty inputs yield zero
// vectors so callers never receive a short batch.
func (m *openAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// The API rejects empty strings; substitute placeholders and zero the
	// corresponding vectors afterwards.
	input := make([]string, len(texts))
	empty := make([]bool, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			input[i] = " "
			empty[i] = true
		} else {
			input[i] = t
		}
	}

	results, err := m.embedRequest(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d results for %d inputs (model=%s)",
			len(results), len(texts), m.modelName)
	}

	for i := range results {
		if empty[i] {
			results[i] = make([]float32, m.dimensions)
		}
	}
	return results, nil
}

func (m *openAIModel) embedRequest(ctx context.Context, input []string) ([][]float32, error) {
	reqBody := openAIEmbedRequest{
		Input:          input,
		Model:          m.modelName,
		EncodingFormat: "float",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", m.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API error (model=%s, status=%d): %s",
			m.modelName, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embedding response from %s: %w", m.baseURL, err)
	}

	// Sort by index to preserve input order.
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	results := make([][]float32, len(embedResp.Data))
	for i, d := range embedResp.Data {
		results[i] = d.Embedding
	}
	return results, nil
}

package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossdoc/pkg/models"
)

func TestSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/summarize", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req summarizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "doc-1", req.DocumentID)
		assert.Equal(t, "auto", req.Mode)
		assert.Equal(t, 5, req.MaxChunks)

		resp := summarizeResponse{Summary: "A short summary."}
		resp.Telemetry.ConfidenceTop = 0.87
		resp.Telemetry.ModeUsed = "extractive"
		resp.Telemetry.ChunksUsed = 4
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	summary, err := client.Summarize(context.Background(), "doc-1", models.ModeAuto, 5)

	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summary.Text)
	assert.Equal(t, 0.87, summary.Confidence)
	assert.Equal(t, "extractive", summary.ModeUsed)
	assert.Equal(t, 4, summary.ChunksUsed)
}

func TestSummarizeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "document not indexed", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Summarize(context.Background(), "missing", models.ModeAuto, 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
	assert.Contains(t, err.Error(), "missing")
}

func TestSummarizeUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	_, err := client.Summarize(context.Background(), "doc-1", models.ModeAuto, 5)
	require.Error(t, err)
}

package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossdoc/internal/aggregator"
	"crossdoc/internal/config"
	"crossdoc/internal/db/gorm"
	"crossdoc/internal/semantic"
	"crossdoc/internal/summarize"
	"crossdoc/pkg/models"
)

type stubSummarizer struct {
	summaries map[string]summarize.Summary
}

func (s *stubSummarizer) Summarize(ctx context.Context, documentID string, mode models.SummaryMode, maxChunks int) (summarize.Summary, error) {
	if summary, ok := s.summaries[documentID]; ok {
		return summary, nil
	}
	return summarize.Summary{}, fmt.Errorf("document %s not found", documentID)
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := gorm.NewStore(gorm.Config{Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	summarizer := &stubSummarizer{summaries: map[string]summarize.Summary{
		"doc-1": {Text: "Release Notes cover the new features.", Confidence: 0.9, ModeUsed: "extractive", ChunksUsed: 2},
		"doc-2": {Text: "Release Notes mention several fixes.", Confidence: 0.8, ModeUsed: "extractive", ChunksUsed: 3},
	}}
	engine := semantic.NewEngine(stubEmbedder{}, semantic.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &Service{
		version:    "test",
		config:     config.Default(),
		aggregator: aggregator.NewService(summarizer, engine, nil),
		runStore:   store,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	svc.setupMiddleware()
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

func postJSON(t *testing.T, svc *Service, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func get(svc *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	svc := newTestService(t)

	rec := get(svc, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, true, body["ready"])
}

func TestHandleReadyBeforeInit(t *testing.T) {
	svc := newTestService(t)
	svc.ready.Store(false)

	rec := get(svc, "/api/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.ready.Store(true)
	rec = get(svc, "/api/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireReadyBlocksAPIRoutes(t *testing.T) {
	svc := newTestService(t)
	svc.ready.Store(false)

	rec := postJSON(t, svc, "/api/insights/aggregate", aggregateRequest{DocumentIDs: []string{"a", "b"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAggregate(t *testing.T) {
	svc := newTestService(t)

	rec := postJSON(t, svc, "/api/insights/aggregate", aggregateRequest{
		DocumentIDs: []string{"doc-1", "doc-2"},
		Mode:        "auto",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.AggregatedInsights)
	assert.Len(t, resp.Result.PerDocument, 2)
	require.NotNil(t, resp.Telemetry)
	assert.Equal(t, 2, resp.Telemetry.FilesProcessed)
	assert.Equal(t, models.DegradationNone, resp.Telemetry.DegradationLevel)
	assert.True(t, resp.Telemetry.SemanticClusteringUsed)
}

func TestHandleAggregateTooFewDocuments(t *testing.T) {
	svc := newTestService(t)

	rec := postJSON(t, svc, "/api/insights/aggregate", aggregateRequest{
		DocumentIDs: []string{"doc-1"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Contains(t, resp.Error, "need at least 2 documents")
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Telemetry)
	assert.Equal(t, "insufficient_documents", resp.Telemetry.ErrorClass)
	assert.Equal(t, models.DegradationFailed, resp.Telemetry.DegradationLevel)
	// Even the terminal failure is recorded as a run.
	assert.NotEmpty(t, resp.RunID)
}

func TestHandleAggregateInvalidBody(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/insights/aggregate", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAggregateRejectsWrongContentType(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/insights/aggregate", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRunHistoryEndpoints(t *testing.T) {
	svc := newTestService(t)

	rec := postJSON(t, svc, "/api/insights/aggregate", aggregateRequest{
		DocumentIDs: []string{"doc-1", "doc-2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	rec = get(svc, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs  []gorm.AggregationRun `json:"runs"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, resp.RunID, list.Runs[0].ID)

	rec = get(svc, "/api/runs/"+resp.RunID)
	require.Equal(t, http.StatusOK, rec.Code)
	var run gorm.AggregationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 2, run.FilesProcessed)
	assert.Equal(t, string(models.DegradationNone), run.DegradationLevel)

	rec = get(svc, "/api/runs/missing-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsBadLimit(t *testing.T) {
	svc := newTestService(t)

	rec := get(svc, "/api/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"crossdoc/internal/aggregator"
	"crossdoc/internal/db/gorm"
	"crossdoc/pkg/models"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns basic liveness info. Available before init completes.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"ready":          s.ready.Load(),
	})
}

// handleReady returns 200 only once async initialization has finished.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	if err := s.GetInitError(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
}

// aggregateRequest is the POST /api/insights/aggregate body.
type aggregateRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Mode        string   `json:"mode"`
	MaxChunks   int      `json:"max_chunks"`
}

// aggregateResponse wraps the pipeline output with the persisted run ID.
type aggregateResponse struct {
	RunID     string                       `json:"run_id,omitempty"`
	Result    *models.AggregationResult    `json:"result,omitempty"`
	Telemetry *models.AggregationTelemetry `json:"telemetry"`
	Error     string                       `json:"error,omitempty"`
}

// handleAggregate runs the aggregation pipeline over the requested documents.
func (s *Service) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.initMu.RLock()
	agg := s.aggregator
	runStore := s.runStore
	s.initMu.RUnlock()

	result, telemetry, err := agg.Aggregate(r.Context(), req.DocumentIDs, models.SummaryMode(req.Mode), req.MaxChunks)

	runID := s.recordRun(r, runStore, req, telemetry)

	var insufficientErr *aggregator.InsufficientDocumentsError
	if errors.As(err, &insufficientErr) {
		writeJSON(w, http.StatusUnprocessableEntity, aggregateResponse{
			RunID:     runID,
			Telemetry: telemetry,
			Error:     insufficientErr.Error(),
		})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Aggregation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, aggregateResponse{
		RunID:     runID,
		Result:    result,
		Telemetry: telemetry,
	})
}

// recordRun persists the run for observability. Failures never block the
// response.
func (s *Service) recordRun(r *http.Request, runStore *gorm.Store, req aggregateRequest, telemetry *models.AggregationTelemetry) string {
	if runStore == nil || telemetry == nil {
		return ""
	}
	runID, err := runStore.RecordRun(r.Context(), req.DocumentIDs, req.Mode, telemetry)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record aggregation run")
		return ""
	}
	return runID
}

// handleListRuns returns recent aggregation runs, newest first.
func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	s.initMu.RLock()
	runStore := s.runStore
	s.initMu.RUnlock()

	runs, err := runStore.ListRuns(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list aggregation runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns one aggregation run by ID.
func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.initMu.RLock()
	runStore := s.runStore
	s.initMu.RUnlock()

	run, err := runStore.GetRun(r.Context(), id)
	if errors.Is(err, gorm.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to get aggregation run")
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

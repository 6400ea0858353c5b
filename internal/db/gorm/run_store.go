package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"crossdoc/pkg/models"
)

// ErrRunNotFound is returned when a run ID has no matching record.
var ErrRunNotFound = errors.New("aggregation run not found")

// DefaultRunListLimit caps how many runs a listing returns by default.
const DefaultRunListLimit = 50

// RecordRun persists one aggregation call and returns the run ID. A failed
// write is logged and reported but never blocks the aggregation response.
func (s *Store) RecordRun(ctx context.Context, documentIDs []string, mode string, telemetry *models.AggregationTelemetry) (string, error) {
	ids, err := json.Marshal(documentIDs)
	if err != nil {
		return "", fmt.Errorf("marshal document ids: %w", err)
	}
	snapshot, err := json.Marshal(telemetry)
	if err != nil {
		return "", fmt.Errorf("marshal telemetry: %w", err)
	}

	run := AggregationRun{
		ID:               uuid.NewString(),
		RequestedAt:      time.Now().UTC(),
		DocumentIDs:      string(ids),
		Mode:             mode,
		FilesRequested:   telemetry.FilesRequested,
		FilesProcessed:   telemetry.FilesProcessed,
		FilesFailed:      telemetry.FilesFailed,
		DegradationLevel: string(telemetry.DegradationLevel),
		ErrorClass:       telemetry.ErrorClass,
		FallbackReason:   telemetry.FallbackReason,
		ClusterCount:     telemetry.ClusterCount,
		LatencyMsTotal:   telemetry.LatencyMsTotal,
		Telemetry:        string(snapshot),
	}

	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("insert aggregation run: %w", err)
	}

	log.Debug().Str("run_id", run.ID).Str("degradation", run.DegradationLevel).Msg("Aggregation run recorded")
	return run.ID, nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*AggregationRun, error) {
	var run AggregationRun
	err := s.DB.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregation run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns recent runs, newest first. limit <= 0 uses the default.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]AggregationRun, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	var runs []AggregationRun
	err := s.DB.WithContext(ctx).
		Order("requested_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list aggregation runs: %w", err)
	}
	return runs, nil
}

// CountRuns returns the total number of recorded runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&AggregationRun{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count aggregation runs: %w", err)
	}
	return count, nil
}

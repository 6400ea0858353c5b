package gorm

import "time"

// AggregationRun records one aggregation call: the request shape, the outcome,
// and the full telemetry snapshot as JSON. Result payloads are not stored; the
// engine is stateless and runs are kept for observability only.
type AggregationRun struct {
	ID               string    `gorm:"primaryKey;type:text"      json:"id"`
	RequestedAt      time.Time `gorm:"index;not null"            json:"requested_at"`
	DocumentIDs      string    `gorm:"type:text;not null"        json:"document_ids"` // JSON array
	Mode             string    `gorm:"type:text;not null"        json:"mode"`
	FilesRequested   int       `gorm:"not null"                  json:"files_requested"`
	FilesProcessed   int       `gorm:"not null"                  json:"files_processed"`
	FilesFailed      int       `gorm:"not null"                  json:"files_failed"`
	DegradationLevel string    `gorm:"index;type:text;not null"  json:"degradation_level"`
	ErrorClass       string    `gorm:"type:text"                 json:"error_class"`
	FallbackReason   string    `gorm:"type:text"                 json:"fallback_reason"`
	ClusterCount     int       `gorm:"not null"                  json:"cluster_count"`
	LatencyMsTotal   int64     `gorm:"not null"                  json:"latency_ms_total"`
	Telemetry        string    `gorm:"type:text;not null"        json:"telemetry"` // full JSON snapshot
}

// TableName overrides the default table name.
func (AggregationRun) TableName() string {
	return "aggregation_runs"
}

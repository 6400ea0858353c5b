package models

// DegradationLevel is an ordered severity marker describing how far a result
// diverges from the fully-successful path.
type DegradationLevel string

const (
	DegradationNone     DegradationLevel = "none"
	DegradationMild     DegradationLevel = "mild"
	DegradationFallback DegradationLevel = "fallback"
	DegradationDegraded DegradationLevel = "degraded"
	DegradationFailed   DegradationLevel = "failed"
)

// severity maps each level to its rank on the ladder: none < mild < fallback
// < degraded < failed.
var severity = map[DegradationLevel]int{
	DegradationNone:     0,
	DegradationMild:     1,
	DegradationFallback: 2,
	DegradationDegraded: 3,
	DegradationFailed:   4,
}

// Severity returns the level's rank. Unknown levels rank as none.
func (d DegradationLevel) Severity() int {
	return severity[d]
}

// AtLeast returns the more severe of d and other. Levels only ever escalate
// during a call; a later, milder phase outcome never overwrites an earlier,
// more severe one.
func (d DegradationLevel) AtLeast(other DegradationLevel) DegradationLevel {
	if other.Severity() > d.Severity() {
		return other
	}
	return d
}

// Fallback reasons for the semantic clustering engine. Exactly one is set
// when clustering returns no clusters.
const (
	FallbackTooFewDocuments       = "too_few_documents"
	FallbackEmbeddingsUnavailable = "embeddings_unavailable"
	FallbackNoClustersFormed      = "no_clusters_formed"
	FallbackWeakSignals           = "weak_signals"
)

// AggregationTelemetry is the flat per-call observability record. Exactly one
// instance exists per aggregation call. Every field is declared up front so a
// returned record is always complete regardless of which phases ran.
type AggregationTelemetry struct {
	FilesRequested         int              `json:"files_requested"`
	FilesProcessed         int              `json:"files_processed"`
	FilesFailed            int              `json:"files_failed"`
	LatencyMsSummarization int64            `json:"latency_ms_summarization"`
	LatencyMsAggregation   int64            `json:"latency_ms_aggregation"`
	LatencyMsClustering    int64            `json:"latency_ms_clustering"`
	LatencyMsTotal         int64            `json:"latency_ms_total"`
	HybridUsed             bool             `json:"hybrid_used"`
	Provider               string           `json:"provider"`
	ErrorClass             string           `json:"error_class"`
	SemanticClusteringUsed bool             `json:"semantic_clustering_used"`
	ClusterCount           int              `json:"cluster_count"`
	AvgClusterConfidence   float64          `json:"avg_cluster_confidence"`
	FallbackReason         string           `json:"fallback_reason"`
	DegradationLevel       DegradationLevel `json:"degradation_level"`
	GracefulMessage        string           `json:"graceful_message"`
	UserActionHint         string           `json:"user_action_hint"`
	EvidenceLinksAvailable bool             `json:"evidence_links_available"`
}

// NewAggregationTelemetry returns a telemetry record for a call requesting
// the given number of documents, initialized to the no-degradation baseline.
func NewAggregationTelemetry(filesRequested int) *AggregationTelemetry {
	return &AggregationTelemetry{
		FilesRequested:   filesRequested,
		DegradationLevel: DegradationNone,
	}
}

// Escalate raises the degradation level if the new level is more severe.
func (t *AggregationTelemetry) Escalate(level DegradationLevel) {
	t.DegradationLevel = t.DegradationLevel.AtLeast(level)
}

// GracefulNote is a user-facing explanation of a degraded outcome. Messages
// never blame the user, never expose internals, and always pair with a
// constructive next action.
type GracefulNote struct {
	Message string
	Hint    string
}

// Graceful message catalogue for the aggregation contexts.
var gracefulNotes = map[string]GracefulNote{
	"insights_too_few_docs": {
		Message: "At least 2 documents are needed for cross-document insights.",
		Hint:    "Upload at least 2 documents to enable cross-document analysis.",
	},
	"insights_no_clustering": {
		Message: "Insights were generated without semantic grouping due to low signal.",
		Hint:    "This doesn't affect the core insights — themes and overlaps are still available.",
	},
	"insights_partial_failure": {
		Message: "Some documents couldn't be processed, but insights were generated from available documents.",
		Hint:    "Review the insights from successfully processed documents.",
	},
	"insights_all_failed": {
		Message: "None of the documents could be processed successfully.",
		Hint:    "Check document IDs and try again with valid documents.",
	},
	"generic_fallback": {
		Message: "The operation completed with limitations.",
		Hint:    "Results may be limited — consider refining your input.",
	},
}

// NoteFor returns the graceful note for a context, falling back to the
// generic note for unknown contexts.
func NoteFor(context string) GracefulNote {
	if note, ok := gracefulNotes[context]; ok {
		return note
	}
	return gracefulNotes["generic_fallback"]
}

// ApplyNote sets the graceful message, hint, and degradation level on the
// telemetry record, escalating rather than overwriting the level.
func (t *AggregationTelemetry) ApplyNote(context string, level DegradationLevel) {
	note := NoteFor(context)
	t.GracefulMessage = note.Message
	t.UserActionHint = note.Hint
	t.Escalate(level)
}

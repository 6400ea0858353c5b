// Package models contains domain models for crossdoc.
package models

// SummaryMode selects how per-document summaries are produced.
type SummaryMode string

const (
	ModeAuto       SummaryMode = "auto"
	ModeExtractive SummaryMode = "extractive"
	ModeHybrid     SummaryMode = "hybrid"
)

// ValidMode reports whether m is a recognized summary mode.
func ValidMode(m SummaryMode) bool {
	switch m {
	case ModeAuto, ModeExtractive, ModeHybrid:
		return true
	}
	return false
}

// ClusterTypeCrossFile marks clusters produced by document-level semantic grouping.
const ClusterTypeCrossFile = "cross_file_semantic"

// DocumentSummary is one document's summary as returned by the external
// summarizer. Immutable once fetched; identified by the caller-supplied ID.
type DocumentSummary struct {
	DocumentID string  `json:"document_id"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	ModeUsed   string  `json:"mode_used"`
	ChunksUsed int     `json:"chunks_used"`
}

// FailedDocument records a document that could not be summarized.
type FailedDocument struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// LexicalTheme is a phrase with its total occurrence count across all
// summaries combined and the documents it appears in.
type LexicalTheme struct {
	Phrase      string   `json:"phrase"`
	Frequency   int      `json:"frequency"`
	DocumentIDs []string `json:"document_ids"`
}

// Overlap is a theme appearing in at least two distinct documents with
// total frequency >= 2, ranked by frequency descending.
type Overlap struct {
	Theme       string   `json:"theme"`
	Frequency   int      `json:"frequency"`
	DocumentIDs []string `json:"document_ids"`
}

// UniqueAspect lists phrases present in exactly one document's phrase set.
type UniqueAspect struct {
	DocumentID   string   `json:"document_id"`
	UniqueThemes []string `json:"unique_themes"`
}

// Entity is a capitalized multi-word phrase ranked by the number of
// distinct documents containing it.
type Entity struct {
	Entity      string   `json:"entity"`
	Frequency   int      `json:"frequency"`
	DocumentIDs []string `json:"document_ids"`
}

// RiskContext pairs a matched risk term with the first sentence containing it.
type RiskContext struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

// RiskSignal collects the risk lexicon matches for one document.
type RiskSignal struct {
	DocumentID string        `json:"document_id"`
	RiskTerms  []string      `json:"risk_terms"`
	Contexts   []RiskContext `json:"contexts"`
}

// Evidence is a bounded excerpt from a member document's summary used to
// justify a cluster.
type Evidence struct {
	DocumentID string `json:"document_id"`
	Snippet    string `json:"snippet"`
	ChunksUsed int    `json:"chunks_used"`
}

// SemanticCluster is a group of documents whose summaries are semantically
// similar. Created only during the clustering phase and never mutated after.
type SemanticCluster struct {
	ThemeLabel       string     `json:"theme_label"`
	MemberDocuments  []string   `json:"member_documents"`
	MemberCount      int        `json:"member_count"`
	ConfidenceScore  float64    `json:"confidence_score"`
	EvidenceSnippets []Evidence `json:"evidence_snippets"`
	ClusterType      string     `json:"cluster_type"`
}

// SharedTheme is the per-cluster theme digest emitted on clustering success.
type SharedTheme struct {
	Theme         string  `json:"theme"`
	DocumentCount int     `json:"document_count"`
	Confidence    float64 `json:"confidence"`
}

// OverlappingConcept is a cluster theme appearing in two or more documents,
// sorted by frequency then confidence.
type OverlappingConcept struct {
	Concept    string   `json:"concept"`
	AppearsIn  []string `json:"appears_in"`
	Frequency  int      `json:"frequency"`
	Confidence float64  `json:"confidence"`
}

// AggregatedInsights is the merged output of the lexical extractor, the
// semantic clustering engine, and optional LLM synthesis.
type AggregatedInsights struct {
	Themes                   []string             `json:"themes"`
	Overlaps                 []Overlap            `json:"overlaps"`
	Differences              []UniqueAspect       `json:"differences"`
	Entities                 []Entity             `json:"entities"`
	RiskSignals              []RiskSignal         `json:"risk_signals"`
	SemanticClusters         []SemanticCluster    `json:"semantic_clusters"`
	ClusterConfidence        float64              `json:"cluster_confidence"`
	CrossFileOverlapDetected bool                 `json:"cross_file_overlap_detected"`
	SharedThemes             []SharedTheme        `json:"shared_themes"`
	OverlappingConcepts      []OverlappingConcept `json:"overlapping_concepts"`
	LLMSynthesis             string               `json:"llm_synthesis,omitempty"`
	SynthesisProvider        string               `json:"synthesis_provider,omitempty"`
	SynthesisLatencyMs       int64                `json:"synthesis_latency_ms,omitempty"`
}

// AggregationResult is the caller-facing result of one aggregation call.
// AggregatedInsights is nil only when too few documents survived
// summarization to aggregate at all.
type AggregationResult struct {
	PerDocument        []DocumentSummary   `json:"per_document"`
	FailedDocuments    []FailedDocument    `json:"failed_documents,omitempty"`
	AggregatedInsights *AggregatedInsights `json:"aggregated_insights"`
	Message            string              `json:"message,omitempty"`
}

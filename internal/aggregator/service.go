// Package aggregator sequences the cross-document insight pipeline:
// per-document summarization, lexical extraction, semantic clustering, and
// optional LLM synthesis, merged into one explainable result with complete
// telemetry. Only the insufficiency gate short-circuits; every other failure
// degrades the result and the pipeline continues.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"crossdoc/internal/lexical"
	"crossdoc/internal/llm"
	"crossdoc/internal/semantic"
	"crossdoc/internal/summarize"
	"crossdoc/pkg/models"
)

// synthesisSystemPrompt instructs the LLM to stay grounded in the provided
// summaries.
const synthesisSystemPrompt = "You are a document analyst. Synthesize insights from provided summaries without adding external information."

// synthesisTemperature keeps narrative synthesis near-deterministic.
const synthesisTemperature = 0.3

// Service orchestrates one aggregation call. Stateless per call: all
// per-call data is owned by the call and never cached. Safe for concurrent
// use when the collaborators are.
type Service struct {
	summarizer  summarize.Summarizer
	engine      *semantic.Engine
	synthesizer llm.Synthesizer // nil disables synthesis
}

// NewService creates an aggregation service. The synthesizer may be nil.
func NewService(summarizer summarize.Summarizer, engine *semantic.Engine, synthesizer llm.Synthesizer) *Service {
	return &Service{
		summarizer:  summarizer,
		engine:      engine,
		synthesizer: synthesizer,
	}
}

// Aggregate runs the full pipeline over the requested documents. The
// returned telemetry record is complete for every outcome, including the
// insufficiency error.
func (s *Service) Aggregate(ctx context.Context, documentIDs []string, mode models.SummaryMode, maxChunks int) (*models.AggregationResult, *models.AggregationTelemetry, error) {
	start := time.Now()
	telemetry := models.NewAggregationTelemetry(len(documentIDs))

	if !models.ValidMode(mode) {
		mode = models.ModeAuto
	}
	if maxChunks <= 0 {
		maxChunks = 5
	}

	// The one terminal failure: too few documents requested. Summarization
	// is never attempted.
	if len(documentIDs) < MinDocumentsForAggregation {
		telemetry.ErrorClass = "insufficient_documents"
		telemetry.ApplyNote("insights_too_few_docs", models.DegradationFailed)
		telemetry.LatencyMsTotal = time.Since(start).Milliseconds()
		return nil, telemetry, &InsufficientDocumentsError{Requested: len(documentIDs)}
	}

	log.Info().
		Int("documents", len(documentIDs)).
		Str("mode", string(mode)).
		Msg("Starting multi-document aggregation")

	// Phase 1: per-document summarization.
	summaries, failed := s.summarizeAll(ctx, documentIDs, mode, maxChunks)
	telemetry.FilesProcessed = len(summaries)
	telemetry.FilesFailed = len(failed)
	telemetry.LatencyMsSummarization = time.Since(start).Milliseconds()

	log.Info().
		Int("processed", len(summaries)).
		Int("failed", len(failed)).
		Int64("latency_ms", telemetry.LatencyMsSummarization).
		Msg("Summarization phase complete")

	// Gate: aggregation needs at least two successful summaries. This is
	// terminal but still returns a structured result with what succeeded.
	if len(summaries) < MinDocumentsForAggregation {
		telemetry.ErrorClass = "insufficient_documents"
		telemetry.ApplyNote("insights_all_failed", models.DegradationFailed)
		telemetry.LatencyMsTotal = time.Since(start).Milliseconds()

		log.Warn().
			Int("processed", len(summaries)).
			Int("required", MinDocumentsForAggregation).
			Msg("Aggregation aborted: too few successful summaries")

		return &models.AggregationResult{
			PerDocument:     summaries,
			FailedDocuments: failed,
			Message: fmt.Sprintf("Too few successful summaries (%d) to perform aggregation. Need at least %d.",
				len(summaries), MinDocumentsForAggregation),
		}, telemetry, nil
	}

	// Phase 2: lexical extraction. Pure text heuristics, never fails.
	lexicalStart := time.Now()
	extracted := lexical.Extract(summaries)
	telemetry.LatencyMsAggregation = time.Since(lexicalStart).Milliseconds()

	log.Info().
		Int("themes", len(extracted.Themes)).
		Int("overlaps", len(extracted.Overlaps)).
		Int("entities", len(extracted.Entities)).
		Int("risks", len(extracted.RiskSignals)).
		Int64("latency_ms", telemetry.LatencyMsAggregation).
		Msg("Lexical extraction complete")

	insights := &models.AggregatedInsights{
		Themes:           extracted.Themes,
		Overlaps:         extracted.Overlaps,
		Differences:      extracted.Differences,
		Entities:         extracted.Entities,
		RiskSignals:      extracted.RiskSignals,
		SemanticClusters: []models.SemanticCluster{},
	}

	// Phase 2.5: semantic clustering. Independent of the lexical phase; a
	// fallback here leaves the lexical insights untouched.
	clusteringStart := time.Now()
	clustering := s.engine.Cluster(ctx, summaries)
	telemetry.LatencyMsClustering = time.Since(clusteringStart).Milliseconds()

	telemetry.SemanticClusteringUsed = clustering.Used()
	telemetry.ClusterCount = len(clustering.Clusters)
	telemetry.AvgClusterConfidence = clustering.ClusterConfidence
	telemetry.FallbackReason = clustering.FallbackReason

	if clustering.Used() {
		insights.SemanticClusters = clustering.Clusters
		insights.ClusterConfidence = clustering.ClusterConfidence
		insights.CrossFileOverlapDetected = len(clustering.Clusters) > 0
		insights.SharedThemes = clustering.SharedThemes
		insights.OverlappingConcepts = clustering.OverlappingConcepts

		for _, c := range clustering.Clusters {
			if len(c.EvidenceSnippets) > 0 {
				telemetry.EvidenceLinksAvailable = true
				break
			}
		}
	}

	// Phase 3: optional LLM synthesis.
	if (mode == models.ModeAuto || mode == models.ModeHybrid) && s.synthesizer != nil {
		s.synthesize(ctx, summaries, insights, telemetry)
	} else {
		log.Info().Str("mode", string(mode)).Msg("Skipping LLM synthesis")
	}

	// Phase 4: finalize result, degradation, and telemetry.
	result := &models.AggregationResult{
		PerDocument:        summaries,
		AggregatedInsights: insights,
	}

	if len(failed) > 0 {
		result.FailedDocuments = failed
		result.Message = fmt.Sprintf("Processed %d documents successfully, %d failed",
			len(summaries), len(failed))
		telemetry.ApplyNote("insights_partial_failure", models.DegradationMild)
	}

	if !clustering.Used() {
		telemetry.Escalate(models.DegradationFallback)
		if telemetry.GracefulMessage == "" {
			note := models.NoteFor("insights_no_clustering")
			telemetry.GracefulMessage = note.Message
			telemetry.UserActionHint = note.Hint
		}
	}

	telemetry.LatencyMsTotal = time.Since(start).Milliseconds()

	log.Info().
		Int("processed", telemetry.FilesProcessed).
		Int("failed", telemetry.FilesFailed).
		Bool("hybrid", telemetry.HybridUsed).
		Bool("clustering", telemetry.SemanticClusteringUsed).
		Str("degradation", string(telemetry.DegradationLevel)).
		Int64("latency_ms", telemetry.LatencyMsTotal).
		Msg("Aggregation complete")

	return result, telemetry, nil
}

// summarizeAll fetches summaries for every requested document, partitioning
// the set into usable summaries and failures. A summary with no content or
// zero chunks counts as a failure.
func (s *Service) summarizeAll(ctx context.Context, documentIDs []string, mode models.SummaryMode, maxChunks int) ([]models.DocumentSummary, []models.FailedDocument) {
	var summaries []models.DocumentSummary
	var failed []models.FailedDocument

	for _, docID := range documentIDs {
		summary, err := s.summarizer.Summarize(ctx, docID, mode, maxChunks)
		if err != nil {
			log.Error().Err(err).Str("document_id", docID).Msg("Summarization failed")
			failed = append(failed, models.FailedDocument{
				DocumentID: docID,
				Error:      err.Error(),
			})
			continue
		}

		if strings.TrimSpace(summary.Text) == "" || summary.ChunksUsed == 0 {
			log.Warn().
				Str("document_id", docID).
				Int("chunks_used", summary.ChunksUsed).
				Msg("Document produced no usable content")
			failed = append(failed, models.FailedDocument{
				DocumentID: docID,
				Error:      "No content found for document",
			})
			continue
		}

		summaries = append(summaries, models.DocumentSummary{
			DocumentID: docID,
			Summary:    summary.Text,
			Confidence: summary.Confidence,
			ModeUsed:   summary.ModeUsed,
			ChunksUsed: summary.ChunksUsed,
		})
	}
	return summaries, failed
}

// synthesize runs the optional LLM pass. Failures are logged and absorbed;
// the result keeps its extractive insights either way.
func (s *Service) synthesize(ctx context.Context, summaries []models.DocumentSummary, insights *models.AggregatedInsights, telemetry *models.AggregationTelemetry) {
	synthesisStart := time.Now()

	synthesis, err := s.synthesizer.Synthesize(ctx, buildSynthesisPrompt(summaries, insights.Overlaps), synthesisSystemPrompt, synthesisTemperature)
	if err != nil {
		log.Warn().Err(err).Msg("LLM synthesis failed, keeping extractive insights")
		return
	}

	latency := time.Since(synthesisStart).Milliseconds()
	insights.LLMSynthesis = synthesis.Text
	insights.SynthesisProvider = synthesis.Provider
	insights.SynthesisLatencyMs = latency
	telemetry.HybridUsed = true
	telemetry.Provider = synthesis.Provider

	log.Info().
		Str("provider", synthesis.Provider).
		Int64("latency_ms", latency).
		Msg("LLM synthesis complete")
}

// buildSynthesisPrompt lays out the numbered summaries and the top
// overlapping themes, constraining the model to the provided material.
func buildSynthesisPrompt(summaries []models.DocumentSummary, overlaps []models.Overlap) string {
	var b strings.Builder

	b.WriteString("Analyze the following document summaries and extracted themes to provide cross-document insights.\n\n")
	b.WriteString("DOCUMENT SUMMARIES:\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "Document %d (%s):\n%s\n\n", i+1, s.DocumentID, s.Summary)
	}

	b.WriteString("EXTRACTED OVERLAPPING THEMES:\n")
	topOverlaps := overlaps
	if len(topOverlaps) > 5 {
		topOverlaps = topOverlaps[:5]
	}
	for _, o := range topOverlaps {
		fmt.Fprintf(&b, "- %s (appears in %d documents)\n", o.Theme, len(o.DocumentIDs))
	}

	b.WriteString("\nBased ONLY on the information above, provide:\n")
	b.WriteString("1. A brief synthesis of the main cross-document themes (2-3 sentences)\n")
	b.WriteString("2. Key relationships or patterns you notice\n")
	b.WriteString("3. Any notable contrasts between documents\n\n")
	b.WriteString("Keep your response concise and grounded in the provided summaries. Do not add external information.")

	return b.String()
}

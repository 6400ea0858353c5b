// Package semantic groups documents by the similarity of their summary
// embeddings and explains each group with a label, a confidence score, and
// evidence snippets.
package semantic

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"crossdoc/pkg/models"
)

// Embedder maps a batch of texts to one vector per input, in input order.
// A failing or count-mismatched embedder degrades clustering to a fallback,
// never an error.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds the clustering tuning parameters. The defaults reproduce the
// shipped behavior; all values are overridable through the config layer.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a document
	// to join a cluster.
	SimilarityThreshold float64
	// WeakSignalThreshold is the minimum mean cluster confidence for the
	// run to count as a success.
	WeakSignalThreshold float64
	// MinClusterSize discards clusters with fewer members. Singletons are
	// never reported.
	MinClusterSize int
	// LabelDominance is the member share a phrase needs to label a cluster
	// on its own.
	LabelDominance float64
	// MaxEvidence is the number of members contributing evidence snippets.
	MaxEvidence int
	// SnippetMaxLen bounds one evidence snippet.
	SnippetMaxLen int
}

// DefaultConfig returns the standard clustering parameters.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.45,
		WeakSignalThreshold: 0.30,
		MinClusterSize:      2,
		LabelDominance:      0.5,
		MaxEvidence:         3,
		SnippetMaxLen:       150,
	}
}

// Result is the outcome of one clustering run. On any fallback, Clusters is
// empty and FallbackReason names exactly one reason; on success,
// FallbackReason is empty.
type Result struct {
	Clusters            []models.SemanticCluster
	ClusterConfidence   float64
	SharedThemes        []models.SharedTheme
	OverlappingConcepts []models.OverlappingConcept
	FallbackReason      string
}

// Used reports whether clustering succeeded.
func (r Result) Used() bool {
	return r.FallbackReason == ""
}

// Engine clusters documents by summary embedding similarity.
type Engine struct {
	embedder Embedder
	cfg      Config
}

// NewEngine creates a clustering engine. A nil embedder is valid and always
// degrades to the embeddings-unavailable fallback.
func NewEngine(embedder Embedder, cfg Config) *Engine {
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = 2
	}
	return &Engine{embedder: embedder, cfg: cfg}
}

// fallback builds the empty-cluster result shape shared by every failure path.
func fallback(reason string) Result {
	log.Info().Str("reason", reason).Msg("Semantic clustering fell back")
	return Result{FallbackReason: reason}
}

// Cluster groups the documents by cosine similarity of their summary
// embeddings. Deterministic given stable embeddings and input order. Never
// returns an error: every failure path degrades to an empty cluster list
// with a single fallback reason.
func (e *Engine) Cluster(ctx context.Context, summaries []models.DocumentSummary) Result {
	if len(summaries) < e.cfg.MinClusterSize {
		return fallback(models.FallbackTooFewDocuments)
	}

	allEmpty := true
	for _, s := range summaries {
		if strings.TrimSpace(s.Summary) != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return fallback(models.FallbackNoClustersFormed)
	}

	embeddings, ok := e.embed(ctx, summaries)
	if !ok {
		return fallback(models.FallbackEmbeddingsUnavailable)
	}

	clusters := e.agglomerate(summaries, embeddings)
	if len(clusters) == 0 {
		return fallback(models.FallbackNoClustersFormed)
	}

	var confidenceSum float64
	for _, c := range clusters {
		confidenceSum += c.ConfidenceScore
	}
	avgConfidence := confidenceSum / float64(len(clusters))

	if avgConfidence < e.cfg.WeakSignalThreshold {
		log.Warn().
			Float64("avg_confidence", avgConfidence).
			Float64("threshold", e.cfg.WeakSignalThreshold).
			Msg("Cluster confidence below weak-signal threshold")
		return fallback(models.FallbackWeakSignals)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].ConfidenceScore != clusters[j].ConfidenceScore {
			return clusters[i].ConfidenceScore > clusters[j].ConfidenceScore
		}
		return clusters[i].MemberCount > clusters[j].MemberCount
	})

	log.Info().
		Int("clusters", len(clusters)).
		Float64("avg_confidence", avgConfidence).
		Int("documents", len(summaries)).
		Msg("Semantic clustering complete")

	return Result{
		Clusters:            clusters,
		ClusterConfidence:   round3(avgConfidence),
		SharedThemes:        sharedThemes(clusters),
		OverlappingConcepts: overlappingConcepts(clusters),
	}
}

// embed fetches one embedding per summary. Any error, nil batch, or count
// mismatch reports the embedder as unavailable.
func (e *Engine) embed(ctx context.Context, summaries []models.DocumentSummary) ([][]float32, bool) {
	if e.embedder == nil {
		return nil, false
	}

	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Summary
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Msg("Embedding batch failed")
		return nil, false
	}
	if len(embeddings) != len(texts) {
		log.Warn().
			Int("expected", len(texts)).
			Int("got", len(embeddings)).
			Msg("Embedding batch returned wrong vector count")
		return nil, false
	}
	return embeddings, true
}

// agglomerate runs the greedy single-pass clustering: each unassigned
// document seeds a cluster and absorbs every later unassigned document whose
// similarity to the seed meets the threshold. O(n²) pairwise comparisons,
// fine for per-request document counts.
func (e *Engine) agglomerate(summaries []models.DocumentSummary, embeddings [][]float32) []models.SemanticCluster {
	assigned := make([]bool, len(summaries))
	var clusters []models.SemanticCluster

	for i := range summaries {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		members := []models.DocumentSummary{summaries[i]}
		var similarities []float64

		for j := i + 1; j < len(summaries); j++ {
			if assigned[j] {
				continue
			}
			sim := CosineSimilarity(embeddings[i], embeddings[j])
			if sim >= e.cfg.SimilarityThreshold {
				members = append(members, summaries[j])
				similarities = append(similarities, sim)
				assigned[j] = true
			}
		}

		// Singletons have no internal similarity and are discarded, not scored.
		if len(members) < e.cfg.MinClusterSize {
			continue
		}

		var sum float64
		for _, s := range similarities {
			sum += s
		}
		confidence := sum / float64(len(similarities))

		memberIDs := make([]string, len(members))
		for k, m := range members {
			memberIDs[k] = m.DocumentID
		}

		clusters = append(clusters, models.SemanticCluster{
			ThemeLabel:       e.themeLabel(members),
			MemberDocuments:  memberIDs,
			MemberCount:      len(members),
			ConfidenceScore:  round3(confidence),
			EvidenceSnippets: e.evidence(members),
			ClusterType:      models.ClusterTypeCrossFile,
		})
	}
	return clusters
}

// sharedThemes digests each cluster into a theme entry.
func sharedThemes(clusters []models.SemanticCluster) []models.SharedTheme {
	themes := make([]models.SharedTheme, len(clusters))
	for i, c := range clusters {
		themes[i] = models.SharedTheme{
			Theme:         c.ThemeLabel,
			DocumentCount: c.MemberCount,
			Confidence:    c.ConfidenceScore,
		}
	}
	return themes
}

// overlappingConcepts lists cluster themes spanning two or more documents,
// sorted by frequency then confidence.
func overlappingConcepts(clusters []models.SemanticCluster) []models.OverlappingConcept {
	var concepts []models.OverlappingConcept
	for _, c := range clusters {
		if len(c.MemberDocuments) >= 2 {
			concepts = append(concepts, models.OverlappingConcept{
				Concept:    c.ThemeLabel,
				AppearsIn:  c.MemberDocuments,
				Frequency:  len(c.MemberDocuments),
				Confidence: c.ConfidenceScore,
			})
		}
	}
	sort.SliceStable(concepts, func(i, j int) bool {
		if concepts[i].Frequency != concepts[j].Frequency {
			return concepts[i].Frequency > concepts[j].Frequency
		}
		return concepts[i].Confidence > concepts[j].Confidence
	})
	return concepts
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

var (
	reLabelHeader  = regexp.MustCompile(`(?i)Document Summary[^\n]*\n?`)
	reLabelPoints  = regexp.MustCompile(`(?i)Key Points:?\n?`)
	reLabelMarker  = regexp.MustCompile(`(?m)^\d+\.\s*`)
	reLabelPhrases = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3}\b`)
)

// labelMaxWords bounds a theme label's word count.
const labelMaxWords = 4

// representativePhrase extracts a short representative phrase from one
// summary using the capitalized-phrase heuristic.
func representativePhrase(summary string) string {
	text := reLabelHeader.ReplaceAllString(summary, "")
	text = reLabelPoints.ReplaceAllString(text, "")
	text = reLabelMarker.ReplaceAllString(text, "")

	phrases := reLabelPhrases.FindAllString(text, -1)
	if len(phrases) > 0 {
		best, bestCount := phrases[0], 0
		counts := make(map[string]int, len(phrases))
		for _, p := range phrases {
			counts[p]++
			if counts[p] > bestCount {
				best, bestCount = p, counts[p]
			}
		}
		words := strings.Fields(best)
		if len(words) > labelMaxWords {
			words = words[:labelMaxWords]
		}
		return strings.Join(words, " ")
	}

	// Fall back to the first few capitalized words of any casing pattern.
	var capWords []string
	for _, w := range strings.Fields(text) {
		if len(w) > 3 && w[0] >= 'A' && w[0] <= 'Z' {
			capWords = append(capWords, w)
			if len(capWords) == labelMaxWords {
				break
			}
		}
	}
	if len(capWords) > 0 {
		return strings.Join(capWords, " ")
	}
	return "General Topic"
}

// themeLabel names a cluster from its members' representative phrases: the
// phrase shared by enough members wins outright; a single distinct phrase is
// used unmodified; otherwise the two most frequent phrases are joined.
func (e *Engine) themeLabel(members []models.DocumentSummary) string {
	phrases := make([]string, len(members))
	for i, m := range members {
		phrases[i] = representativePhrase(m.Summary)
	}

	counts := countOrdered(phrases)
	if float64(counts[0].count) >= float64(len(members))*e.cfg.LabelDominance {
		return counts[0].phrase
	}
	if len(counts) == 1 {
		return counts[0].phrase
	}
	return counts[0].phrase + " & " + counts[1].phrase
}

type labelCount struct {
	phrase string
	count  int
}

// countOrdered counts phrases, ordered by count descending then first-seen.
func countOrdered(phrases []string) []labelCount {
	index := make(map[string]int, len(phrases))
	var counts []labelCount
	for _, p := range phrases {
		if i, ok := index[p]; ok {
			counts[i].count++
			continue
		}
		index[p] = len(counts)
		counts = append(counts, labelCount{phrase: p, count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})
	return counts
}

// evidence selects up to MaxEvidence snippets: the first sentence of each
// member's summary longer than 20 characters, truncated with an ellipsis,
// falling back to the truncated summary itself.
func (e *Engine) evidence(members []models.DocumentSummary) []models.Evidence {
	limit := e.cfg.MaxEvidence
	if limit > len(members) {
		limit = len(members)
	}

	evidence := make([]models.Evidence, 0, limit)
	for _, m := range members[:limit] {
		snippet := firstSentence(m.Summary)
		if snippet == "" {
			snippet = m.Summary
		}
		if len(snippet) > e.cfg.SnippetMaxLen {
			snippet = snippet[:e.cfg.SnippetMaxLen] + "..."
		}
		evidence = append(evidence, models.Evidence{
			DocumentID: m.DocumentID,
			Snippet:    snippet,
			ChunksUsed: m.ChunksUsed,
		})
	}
	return evidence
}

// firstSentence returns the first '.'-delimited sentence longer than 20
// characters, or empty when none qualifies.
func firstSentence(text string) string {
	for _, part := range strings.Split(text, ".") {
		if s := strings.TrimSpace(part); len(s) > 20 {
			return s
		}
	}
	return ""
}

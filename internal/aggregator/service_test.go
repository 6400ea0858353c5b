package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"crossdoc/internal/llm"
	"crossdoc/internal/semantic"
	"crossdoc/internal/summarize"
	"crossdoc/pkg/models"
)

// fakeSummarizer serves canned summaries keyed by document ID. Unknown IDs
// fail with a not-found error.
type fakeSummarizer struct {
	summaries map[string]summarize.Summary
	calls     int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, documentID string, mode models.SummaryMode, maxChunks int) (summarize.Summary, error) {
	f.calls++
	s, ok := f.summaries[documentID]
	if !ok {
		return summarize.Summary{}, fmt.Errorf("document %s not found", documentID)
	}
	return s, nil
}

// uniformEmbedder maps every text to the same vector, so every document pair
// clusters together.
type uniformEmbedder struct{}

func (uniformEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

// fakeSynthesizer returns a canned synthesis or a canned error.
type fakeSynthesizer struct {
	synthesis llm.Synthesis
	err       error
	called    bool
	prompt    string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, prompt, system string, temperature float64) (llm.Synthesis, error) {
	f.called = true
	f.prompt = prompt
	if f.err != nil {
		return llm.Synthesis{}, f.err
	}
	return f.synthesis, nil
}

func goodSummary(text string) summarize.Summary {
	return summarize.Summary{Text: text, Confidence: 0.8, ModeUsed: "extractive", ChunksUsed: 3}
}

type ServiceSuite struct {
	suite.Suite
	summarizer *fakeSummarizer
}

func (s *ServiceSuite) SetupTest() {
	s.summarizer = &fakeSummarizer{summaries: map[string]summarize.Summary{
		"doc-1": goodSummary("OAuth Implementation uses refresh tokens. Token rotation is automatic."),
		"doc-2": goodSummary("OAuth Implementation relies on short-lived tokens for security."),
		"doc-3": goodSummary("OAuth Implementation rollout finished without a single error report."),
	}}
}

func (s *ServiceSuite) newService(embedder semantic.Embedder, synthesizer llm.Synthesizer) *Service {
	return NewService(s.summarizer, semantic.NewEngine(embedder, semantic.DefaultConfig()), synthesizer)
}

func (s *ServiceSuite) TestTooFewDocumentsIsTerminal() {
	svc := s.newService(uniformEmbedder{}, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1"}, models.ModeAuto, 5)

	var insufficientErr *InsufficientDocumentsError
	require.ErrorAs(s.T(), err, &insufficientErr)
	assert.Equal(s.T(), 1, insufficientErr.Requested)
	assert.Nil(s.T(), result)
	assert.Zero(s.T(), s.summarizer.calls, "summarizer must not be called below the minimum")

	require.NotNil(s.T(), telemetry)
	assert.Equal(s.T(), 1, telemetry.FilesRequested)
	assert.Equal(s.T(), 0, telemetry.FilesProcessed)
	assert.Equal(s.T(), "insufficient_documents", telemetry.ErrorClass)
	assert.Equal(s.T(), models.DegradationFailed, telemetry.DegradationLevel)
	assert.NotEmpty(s.T(), telemetry.GracefulMessage)
	assert.NotEmpty(s.T(), telemetry.UserActionHint)
}

func (s *ServiceSuite) TestFullSuccess() {
	svc := s.newService(uniformEmbedder{}, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2", "doc-3"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	require.NotNil(s.T(), result)
	require.NotNil(s.T(), result.AggregatedInsights)
	assert.Len(s.T(), result.PerDocument, 3)
	assert.Empty(s.T(), result.FailedDocuments)

	assert.Equal(s.T(), 3, telemetry.FilesProcessed)
	assert.Equal(s.T(), 0, telemetry.FilesFailed)
	assert.Equal(s.T(), models.DegradationNone, telemetry.DegradationLevel)
	assert.Empty(s.T(), telemetry.ErrorClass)
	assert.True(s.T(), telemetry.SemanticClusteringUsed)
	assert.Equal(s.T(), 1, telemetry.ClusterCount)
	assert.True(s.T(), telemetry.EvidenceLinksAvailable)
	assert.Empty(s.T(), telemetry.FallbackReason)

	insights := result.AggregatedInsights
	require.Len(s.T(), insights.SemanticClusters, 1)
	assert.Equal(s.T(), 3, insights.SemanticClusters[0].MemberCount)
	assert.True(s.T(), insights.CrossFileOverlapDetected)
	assert.NotEmpty(s.T(), insights.Themes)
}

func (s *ServiceSuite) TestPartialFailure() {
	svc := s.newService(uniformEmbedder{}, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2", "doc-3", "missing"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	require.NotNil(s.T(), result)
	require.NotNil(s.T(), result.AggregatedInsights)

	assert.Equal(s.T(), 4, telemetry.FilesRequested)
	assert.Equal(s.T(), 3, telemetry.FilesProcessed)
	assert.Equal(s.T(), 1, telemetry.FilesFailed)
	assert.Equal(s.T(), models.DegradationMild, telemetry.DegradationLevel)

	require.Len(s.T(), result.FailedDocuments, 1)
	assert.Equal(s.T(), "missing", result.FailedDocuments[0].DocumentID)
	assert.Contains(s.T(), result.Message, "3 documents successfully")
	assert.Contains(s.T(), telemetry.GracefulMessage, "couldn't be processed")
}

func (s *ServiceSuite) TestAllSummariesFailedGate() {
	svc := s.newService(uniformEmbedder{}, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"missing-1", "missing-2"}, models.ModeAuto, 5)

	// Post-gate insufficiency is terminal but not a Go error.
	require.NoError(s.T(), err)
	require.NotNil(s.T(), result)
	assert.Nil(s.T(), result.AggregatedInsights)
	assert.Len(s.T(), result.FailedDocuments, 2)
	assert.NotEmpty(s.T(), result.Message)

	assert.Equal(s.T(), "insufficient_documents", telemetry.ErrorClass)
	assert.Equal(s.T(), models.DegradationFailed, telemetry.DegradationLevel)
	assert.Contains(s.T(), telemetry.GracefulMessage, "None of the documents")
}

func (s *ServiceSuite) TestEmptySummaryCountsAsFailure() {
	s.summarizer.summaries["empty"] = summarize.Summary{Text: "Some text", ChunksUsed: 0}
	svc := s.newService(uniformEmbedder{}, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2", "empty"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, telemetry.FilesProcessed)
	assert.Equal(s.T(), 1, telemetry.FilesFailed)
	require.Len(s.T(), result.FailedDocuments, 1)
	assert.Equal(s.T(), "No content found for document", result.FailedDocuments[0].Error)
}

func (s *ServiceSuite) TestClusteringFallbackDegrades() {
	// Nil embedder: clustering degrades, lexical insights survive.
	svc := s.newService(nil, nil)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	require.NotNil(s.T(), result.AggregatedInsights)

	assert.False(s.T(), telemetry.SemanticClusteringUsed)
	assert.Equal(s.T(), models.FallbackEmbeddingsUnavailable, telemetry.FallbackReason)
	assert.Equal(s.T(), models.DegradationFallback, telemetry.DegradationLevel)
	assert.Contains(s.T(), telemetry.GracefulMessage, "without semantic grouping")

	insights := result.AggregatedInsights
	assert.NotNil(s.T(), insights.SemanticClusters)
	assert.Empty(s.T(), insights.SemanticClusters)
	assert.False(s.T(), insights.CrossFileOverlapDetected)
	assert.NotEmpty(s.T(), insights.Themes, "lexical insights survive clustering fallback")
}

func (s *ServiceSuite) TestPartialFailureMessageSurvivesClusteringFallback() {
	svc := s.newService(nil, nil)

	_, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2", "missing"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	// Level escalates to the worse outcome, message keeps the first note.
	assert.Equal(s.T(), models.DegradationFallback, telemetry.DegradationLevel)
	assert.Contains(s.T(), telemetry.GracefulMessage, "couldn't be processed")
}

func (s *ServiceSuite) TestSynthesisSuccess() {
	synthesizer := &fakeSynthesizer{synthesis: llm.Synthesis{Text: "Cross-document narrative.", Provider: "gpt-4o-mini"}}
	svc := s.newService(uniformEmbedder{}, synthesizer)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	assert.True(s.T(), synthesizer.called)
	assert.Contains(s.T(), synthesizer.prompt, "DOCUMENT SUMMARIES:")
	assert.Contains(s.T(), synthesizer.prompt, "doc-1")

	assert.True(s.T(), telemetry.HybridUsed)
	assert.Equal(s.T(), "gpt-4o-mini", telemetry.Provider)
	assert.Equal(s.T(), "Cross-document narrative.", result.AggregatedInsights.LLMSynthesis)
	assert.Equal(s.T(), "gpt-4o-mini", result.AggregatedInsights.SynthesisProvider)
}

func (s *ServiceSuite) TestSynthesisFailureAbsorbed() {
	synthesizer := &fakeSynthesizer{err: errors.New("provider down")}
	svc := s.newService(uniformEmbedder{}, synthesizer)

	result, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2"}, models.ModeAuto, 5)

	require.NoError(s.T(), err)
	assert.True(s.T(), synthesizer.called)
	assert.False(s.T(), telemetry.HybridUsed)
	assert.Equal(s.T(), models.DegradationNone, telemetry.DegradationLevel)
	assert.Empty(s.T(), result.AggregatedInsights.LLMSynthesis)
	assert.NotEmpty(s.T(), result.AggregatedInsights.Themes)
}

func (s *ServiceSuite) TestExtractiveModeSkipsSynthesis() {
	synthesizer := &fakeSynthesizer{synthesis: llm.Synthesis{Text: "unused"}}
	svc := s.newService(uniformEmbedder{}, synthesizer)

	_, _, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2"}, models.ModeExtractive, 5)

	require.NoError(s.T(), err)
	assert.False(s.T(), synthesizer.called)
}

func (s *ServiceSuite) TestInvalidModeTreatedAsAuto() {
	synthesizer := &fakeSynthesizer{synthesis: llm.Synthesis{Text: "narrative", Provider: "p"}}
	svc := s.newService(uniformEmbedder{}, synthesizer)

	_, telemetry, err := svc.Aggregate(context.Background(), []string{"doc-1", "doc-2"}, models.SummaryMode("bogus"), 5)

	require.NoError(s.T(), err)
	assert.True(s.T(), synthesizer.called)
	assert.True(s.T(), telemetry.HybridUsed)
}

func (s *ServiceSuite) TestIdempotent() {
	svc := s.newService(uniformEmbedder{}, nil)
	ids := []string{"doc-1", "doc-2", "doc-3"}

	first, _, err := svc.Aggregate(context.Background(), ids, models.ModeAuto, 5)
	require.NoError(s.T(), err)
	second, _, err := svc.Aggregate(context.Background(), ids, models.ModeAuto, 5)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), first.AggregatedInsights, second.AggregatedInsights)
	assert.Equal(s.T(), first.PerDocument, second.PerDocument)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestInsufficientDocumentsErrorMessage(t *testing.T) {
	err := &InsufficientDocumentsError{Requested: 1}
	assert.Equal(t, "need at least 2 documents for aggregation, received 1", err.Error())
}

// Package lexical extracts themes, overlaps, entities, and risk signals from
// document summaries using pure text heuristics. No embeddings, no I/O, and
// no failure modes beyond an empty result.
package lexical

import (
	"regexp"
	"sort"
	"strings"

	"crossdoc/pkg/models"
)

// Extraction caps. Tunable in principle but stable enough to live here.
const (
	// TopThemes is the number of pooled themes reported for the whole set.
	TopThemes = 15
	// PhrasesPerDocument is the candidate phrase budget per document.
	PhrasesPerDocument = 15
	// TopOverlaps caps the overlap list.
	TopOverlaps = 10
	// UniquePerDocument caps unique aspects reported per document.
	UniquePerDocument = 5
	// TopEntities caps the entity list.
	TopEntities = 20
	// RiskContextsPerDocument caps risk contexts attached per document.
	RiskContextsPerDocument = 3
	// ContextMaxLen bounds a risk context excerpt.
	ContextMaxLen = 150
)

var (
	// Boilerplate produced by the summarizer that should not feed phrase
	// extraction.
	reSummaryHeader = regexp.MustCompile(`(?i)Document Summary[^\n]*\n?`)
	reKeyPoints     = regexp.MustCompile(`(?i)Key Points:?\n?`)
	reListMarker    = regexp.MustCompile(`(?m)^\d+\.\s*`)
	reBasedOn       = regexp.MustCompile(`(?i)\(Based on[^)]*\)`)

	reSentenceSplit = regexp.MustCompile(`[.!?]\s+`)

	// Capitalized multi-word sequences ("API Security Review") and single
	// capitalized words of five or more characters ("Authentication").
	reMultiWordCaps  = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	reSingleWordCaps = regexp.MustCompile(`\b[A-Z][a-z]{4,}\b`)

	// Risk lexicon, matched case-insensitively per summary.
	riskPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(fail(?:ure|ed)?|error|problem|issue|bug|crash)\b`),
		regexp.MustCompile(`(?i)\b(risk|threat|vulnerability|concern|warning)\b`),
		regexp.MustCompile(`(?i)\b(deprecat(?:ed|ion)?|obsolete|legacy|unsupported)\b`),
		regexp.MustCompile(`(?i)\b(critical|urgent|immediate|emergency)\b`),
		regexp.MustCompile(`(?i)\b(loss|damage|corrupt(?:ed|ion)?|breach)\b`),
	}
)

// Insights is the full lexical extraction output for one summary set.
type Insights struct {
	Themes      []string
	Overlaps    []models.Overlap
	Differences []models.UniqueAspect
	Entities    []models.Entity
	RiskSignals []models.RiskSignal
}

// Extract runs all lexical heuristics over the summaries. Pure function of
// the input text; deterministic for a given input order.
func Extract(summaries []models.DocumentSummary) Insights {
	return Insights{
		Themes:      PooledThemes(summaries, TopThemes),
		Overlaps:    OverlappingThemes(summaries),
		Differences: UniqueAspects(summaries),
		Entities:    Entities(summaries),
		RiskSignals: RiskSignals(summaries),
	}
}

// stripBoilerplate removes summary headers, key-point markers, ordinal list
// markers, and provenance parentheticals before phrase extraction.
func stripBoilerplate(text string) string {
	text = reSummaryHeader.ReplaceAllString(text, "")
	text = reKeyPoints.ReplaceAllString(text, "")
	text = reListMarker.ReplaceAllString(text, "")
	text = reBasedOn.ReplaceAllString(text, "")
	return text
}

// phraseCount tracks a phrase's total occurrences and first-seen rank so
// frequency ties break deterministically by first appearance.
type phraseCount struct {
	phrase string
	count  int
	rank   int
}

// candidatePhrases returns every candidate phrase occurrence in the text, in
// scan order. Multi-word capitalized sequences are collected first per
// sentence, then long single capitalized words.
func candidatePhrases(text string) []string {
	text = stripBoilerplate(text)

	var phrases []string
	for _, sentence := range reSentenceSplit.Split(text, -1) {
		phrases = append(phrases, reMultiWordCaps.FindAllString(sentence, -1)...)
		phrases = append(phrases, reSingleWordCaps.FindAllString(sentence, -1)...)
	}
	return phrases
}

// topPhrases counts candidate phrases and returns the topN by frequency,
// ties broken by first-seen order.
func topPhrases(text string, topN int) []string {
	counts := countPhrases(candidatePhrases(text))
	if len(counts) > topN {
		counts = counts[:topN]
	}
	result := make([]string, len(counts))
	for i, pc := range counts {
		result[i] = pc.phrase
	}
	return result
}

// countPhrases builds a frequency table ordered by count descending then
// first-seen ascending.
func countPhrases(phrases []string) []phraseCount {
	index := make(map[string]int, len(phrases))
	var counts []phraseCount
	for _, p := range phrases {
		if i, ok := index[p]; ok {
			counts[i].count++
			continue
		}
		index[p] = len(counts)
		counts = append(counts, phraseCount{phrase: p, count: 1, rank: len(counts)})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].rank < counts[j].rank
	})
	return counts
}

// PooledThemes extracts the top themes from all summaries pooled together.
func PooledThemes(summaries []models.DocumentSummary, topN int) []string {
	var combined strings.Builder
	for i, s := range summaries {
		if i > 0 {
			combined.WriteString(" ")
		}
		combined.WriteString(s.Summary)
	}
	return topPhrases(combined.String(), topN)
}

// documentPhrases returns, per document in input order, the candidate phrase
// list (with multiplicity, capped at PhrasesPerDocument distinct phrases) and
// the distinct phrase set.
func documentPhrases(summaries []models.DocumentSummary) (ordered [][]string, sets []map[string]bool) {
	ordered = make([][]string, len(summaries))
	sets = make([]map[string]bool, len(summaries))
	for i, s := range summaries {
		top := topPhrases(s.Summary, PhrasesPerDocument)
		ordered[i] = top
		set := make(map[string]bool, len(top))
		for _, p := range top {
			set[p] = true
		}
		sets[i] = set
	}
	return ordered, sets
}

// OverlappingThemes finds phrases appearing in at least two distinct
// documents, with frequency counted as total occurrences across all
// summaries combined. Reports the top overlaps by frequency, ties broken by
// first-seen order.
func OverlappingThemes(summaries []models.DocumentSummary) []models.Overlap {
	_, sets := documentPhrases(summaries)

	// Total occurrence counts across every summary, in pooled scan order.
	var pooled []string
	for _, s := range summaries {
		pooled = append(pooled, candidatePhrases(s.Summary)...)
	}
	counts := countPhrases(pooled)

	var overlaps []models.Overlap
	for _, pc := range counts {
		var docIDs []string
		for i, set := range sets {
			if set[pc.phrase] {
				docIDs = append(docIDs, summaries[i].DocumentID)
			}
		}
		if len(docIDs) >= 2 && pc.count >= 2 {
			overlaps = append(overlaps, models.Overlap{
				Theme:       pc.phrase,
				Frequency:   pc.count,
				DocumentIDs: docIDs,
			})
		}
		if len(overlaps) == TopOverlaps {
			break
		}
	}
	return overlaps
}

// UniqueAspects computes, for each document, the phrases in its own set that
// appear in no other document's set. At most UniquePerDocument per document,
// in the document's own frequency order.
func UniqueAspects(summaries []models.DocumentSummary) []models.UniqueAspect {
	ordered, sets := documentPhrases(summaries)

	var aspects []models.UniqueAspect
	for i := range summaries {
		var unique []string
		for _, phrase := range ordered[i] {
			shared := false
			for j, other := range sets {
				if j != i && other[phrase] {
					shared = true
					break
				}
			}
			if !shared {
				unique = append(unique, phrase)
			}
			if len(unique) == UniquePerDocument {
				break
			}
		}
		if len(unique) > 0 {
			aspects = append(aspects, models.UniqueAspect{
				DocumentID:   summaries[i].DocumentID,
				UniqueThemes: unique,
			})
		}
	}
	return aspects
}

// Entities extracts capitalized multi-word entities, deduplicated per
// document and ranked by the number of distinct documents containing them.
func Entities(summaries []models.DocumentSummary) []models.Entity {
	index := make(map[string]int)
	var entities []models.Entity

	for _, s := range summaries {
		seen := make(map[string]bool)
		for _, entity := range reMultiWordCaps.FindAllString(s.Summary, -1) {
			if seen[entity] {
				continue
			}
			seen[entity] = true
			if i, ok := index[entity]; ok {
				entities[i].DocumentIDs = append(entities[i].DocumentIDs, s.DocumentID)
				entities[i].Frequency++
			} else {
				index[entity] = len(entities)
				entities = append(entities, models.Entity{
					Entity:      entity,
					Frequency:   1,
					DocumentIDs: []string{s.DocumentID},
				})
			}
		}
	}

	// Stable sort keeps first-seen order for equal frequencies.
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Frequency > entities[j].Frequency
	})

	if len(entities) > TopEntities {
		entities = entities[:TopEntities]
	}
	return entities
}

// RiskSignals matches the risk lexicon against each summary. Each matched
// term carries the first sentence containing it, bounded to ContextMaxLen
// characters, one context per distinct term and at most
// RiskContextsPerDocument contexts per document.
func RiskSignals(summaries []models.DocumentSummary) []models.RiskSignal {
	var signals []models.RiskSignal

	for _, s := range summaries {
		var terms []string
		seen := make(map[string]bool)
		for _, pattern := range riskPatterns {
			for _, match := range pattern.FindAllString(s.Summary, -1) {
				term := strings.ToLower(match)
				if !seen[term] {
					seen[term] = true
					terms = append(terms, term)
				}
			}
		}
		if len(terms) == 0 {
			continue
		}

		sentences := reSentenceSplit.Split(s.Summary, -1)
		var contexts []models.RiskContext
		for _, term := range terms {
			if len(contexts) == RiskContextsPerDocument {
				break
			}
			for _, sentence := range sentences {
				if strings.Contains(strings.ToLower(sentence), term) {
					context := strings.TrimSpace(sentence)
					if len(context) > ContextMaxLen {
						context = context[:ContextMaxLen]
					}
					contexts = append(contexts, models.RiskContext{Term: term, Context: context})
					break
				}
			}
		}

		signals = append(signals, models.RiskSignal{
			DocumentID: s.DocumentID,
			RiskTerms:  terms,
			Contexts:   contexts,
		})
	}
	return signals
}

package clean

import (
	"context"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/statline/statline/internal/embed"
)

// FragmentMatcher decides whether a preamble fragment is present in a
// section's text. Matchers form an explicit fallback chain injected at
// engine construction: substring always, fuzzy when a scorer is available,
// embedding when enabled.
type FragmentMatcher interface {
	// Matches reports whether fragment occurs in the section text.
	// Both inputs are whitespace-normalized.
	Matches(ctx context.Context, fragment, sectionText string) bool
}

// FuzzyScorer provides 0–100 string similarity scores. Satisfied by the
// go-fuzzywuzzy adapter below and by test fakes.
type FuzzyScorer interface {
	PartialRatio(a, b string) int
	TokenSortRatio(a, b string) int
}

// substringMatcher is the always-available first link in the chain: exact
// case-insensitive containment.
type substringMatcher struct{}

func (substringMatcher) Matches(_ context.Context, fragment, sectionText string) bool {
	return strings.Contains(strings.ToLower(sectionText), strings.ToLower(fragment))
}

// fuzzyMatcher compares the fragment against sentence-level fragments of
// the section, accepting partial-ratio >= 85 or token-sort-ratio >= 80.
type fuzzyMatcher struct {
	scorer FuzzyScorer
}

func (m *fuzzyMatcher) Matches(_ context.Context, fragment, sectionText string) bool {
	for _, sentence := range splitFragments(sectionText) {
		if m.scorer.PartialRatio(fragment, sentence) >= partialRatioThreshold {
			return true
		}
		if m.scorer.TokenSortRatio(fragment, sentence) >= tokenSortThreshold {
			return true
		}
	}
	return false
}

// WuzzyScorer adapts go-fuzzywuzzy to the FuzzyScorer interface.
type WuzzyScorer struct{}

func (WuzzyScorer) PartialRatio(a, b string) int   { return fuzzy.PartialRatio(a, b) }
func (WuzzyScorer) TokenSortRatio(a, b string) int { return fuzzy.TokenSortRatio(a, b) }

// EmbedMatcher matches fragments by cosine similarity of embeddings.
// Disabled by default; constructed only when the operator opts in.
type EmbedMatcher struct {
	embedder  embed.Embedder
	threshold float64
}

// NewEmbedMatcher wraps an embedder as a fragment matcher. A threshold
// <= 0 uses the default 0.78.
func NewEmbedMatcher(e embed.Embedder, threshold float64) *EmbedMatcher {
	if e == nil {
		return nil
	}
	if threshold <= 0 {
		threshold = defaultEmbedThreshold
	}
	return &EmbedMatcher{embedder: e, threshold: threshold}
}

func (m *EmbedMatcher) Matches(ctx context.Context, fragment, sectionText string) bool {
	sentences := splitFragments(sectionText)
	if len(sentences) == 0 {
		return false
	}

	fragVec, err := m.embedder.Embed(ctx, fragment)
	if err != nil {
		// Embedding unavailability degrades the chain, never fails cleaning.
		return false
	}

	sentVecs, err := m.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return false
	}

	for _, vec := range sentVecs {
		if embed.CosineSimilarity(fragVec, vec) >= m.threshold {
			return true
		}
	}
	return false
}

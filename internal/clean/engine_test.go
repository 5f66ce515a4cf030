package clean

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testEngine(opts ...Option) *Engine {
	opts = append(opts, WithClock(fixedClock))
	return NewEngine(opts...)
}

func sectionsOf(doc map[string]any) []map[string]any {
	items, _ := doc["sections"].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestCleanDropsDeniedFields(t *testing.T) {
	doc := map[string]any{
		"name":     "Stamp Act 1899",
		"raw_html": "<html>...</html>",
		"category": "revenue",
		"sections": []any{
			map[string]any{"number": "1", "text": "Short title.", "source_url": "http://x"},
		},
	}

	cleaned, _ := testEngine().Clean(doc)
	if _, ok := cleaned["raw_html"]; ok {
		t.Error("raw_html should be dropped at document level")
	}
	if _, ok := cleaned["category"]; ok {
		t.Error("category should be dropped at document level")
	}
	if _, ok := sectionsOf(cleaned)[0]["source_url"]; ok {
		t.Error("source_url should be dropped at section level")
	}
	// Input must not be mutated.
	if _, ok := doc["raw_html"]; !ok {
		t.Error("Clean mutated its input")
	}
}

func TestCleanPromotesCommonSectionFields(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "1", "text": "a", "volume": "III"},
			map[string]any{"number": "2", "text": "b", "volume": "III"},
		},
	}

	cleaned, report := testEngine().Clean(doc)
	if cleaned["volume"] != "III" {
		t.Error("common field should be promoted to document level")
	}
	for _, sec := range sectionsOf(cleaned) {
		if _, ok := sec["volume"]; ok {
			t.Error("promoted field should be deleted from sections")
		}
	}
	if len(report.PromotedFields) != 1 || report.PromotedFields[0] != "volume" {
		t.Errorf("report.PromotedFields = %v", report.PromotedFields)
	}
}

func TestCleanDoesNotPromoteDivergentFields(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "1", "volume": "III"},
			map[string]any{"number": "2", "volume": "IV"},
		},
	}
	cleaned, _ := testEngine().Clean(doc)
	if _, ok := cleaned["volume"]; ok {
		t.Error("divergent field must not be promoted")
	}
}

func TestCleanSingleEmptySectionSynthesis(t *testing.T) {
	doc := map[string]any{
		"Act_Ordinance": "An Act to consolidate the law of stamps.",
		"Citation":      "Act II of 1899",
		"sections": []any{
			map[string]any{"number": "", "text": ""},
		},
	}

	cleaned, report := testEngine().Clean(doc)
	if !report.Synthesized {
		t.Fatal("expected synthesis for single empty section")
	}

	secs := sectionsOf(cleaned)
	if len(secs) != 1 {
		t.Fatalf("expected 1 section, got %d", len(secs))
	}
	if secs[0]["number"] != "Preamble" {
		t.Errorf("number = %v, want Preamble", secs[0]["number"])
	}
	text, _ := secs[0]["text"].(string)
	if !strings.Contains(text, "consolidate the law of stamps") || !strings.Contains(text, "Act II of 1899") {
		t.Errorf("synthesized text missing source fields: %q", text)
	}
	if _, ok := cleaned["Act_Ordinance"]; ok {
		t.Error("consumed synthesis fields should be removed from the document")
	}
}

func TestCleanPreambleDedupSubstring(t *testing.T) {
	preamble := "This Act extends to the whole Province and comes into force at once. It repeals prior law."
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "PREAMBLE", "text": preamble},
			map[string]any{
				"number": "2",
				"text":   "This Act extends to the whole Province and comes into force at once. The levy applies to all instruments.",
			},
		},
	}

	cleaned, report := testEngine().Clean(doc)
	secs := sectionsOf(cleaned)

	if secs[0]["text"] != preamble {
		t.Error("canonical preamble must never be altered")
	}

	body, _ := secs[1]["text"].(string)
	if strings.Contains(body, "extends to the whole Province") {
		t.Errorf("duplicated preamble fragment not removed: %q", body)
	}
	if !strings.Contains(body, "levy applies to all instruments") {
		t.Errorf("unrelated text must survive: %q", body)
	}
	if len(report.Removals) == 0 {
		t.Error("expected a removal audit entry")
	}
}

func TestCleanDropsSectionEmptiedByDedup(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "Preamble", "text": "Whereas it is expedient to consolidate the law relating to stamps in the Province."},
			map[string]any{"number": "5", "text": "Whereas it is expedient to consolidate the law relating to stamps in the Province."},
			map[string]any{"number": "1", "text": "Short title and commencement of this Act."},
		},
	}

	cleaned, report := testEngine().Clean(doc)
	secs := sectionsOf(cleaned)
	if len(secs) != 2 {
		t.Fatalf("section that was pure repeated preamble should be dropped, got %d sections", len(secs))
	}
	if len(report.DroppedSections) != 1 {
		t.Errorf("report.DroppedSections = %v", report.DroppedSections)
	}
}

func TestCleanKeepsEmptiedSectionWithTitle(t *testing.T) {
	preamble := "Whereas it is expedient to consolidate the law relating to stamps in the Province."
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "Preamble", "text": preamble},
			map[string]any{"number": "2", "title": "Extent", "text": preamble},
			map[string]any{"number": "1", "text": "Short title and commencement of this Act."},
		},
	}

	cleaned, report := testEngine().Clean(doc)
	secs := sectionsOf(cleaned)
	if len(secs) != 3 {
		t.Fatalf("titled section must survive dedup, got %d sections", len(secs))
	}
	if len(report.DroppedSections) != 0 {
		t.Errorf("report.DroppedSections = %v", report.DroppedSections)
	}
	for _, sec := range secs {
		if sec["title"] == "Extent" {
			if text, _ := sec["text"].(string); strings.TrimSpace(text) != "" {
				t.Errorf("deduped section text should be empty, got %q", text)
			}
			return
		}
	}
	t.Fatal("titled section missing from output")
}

func TestCleanShortFragmentsIgnored(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "Preamble", "text": "Short bit. Tiny."},
			map[string]any{"number": "1", "text": "Short bit. Tiny. But this section has real content."},
		},
	}
	cleaned, report := testEngine().Clean(doc)
	body, _ := sectionsOf(cleaned)[1]["text"].(string)
	if !strings.Contains(body, "Short bit") {
		t.Error("fragments under the minimum length must not be removed")
	}
	if len(report.Removals) != 0 {
		t.Errorf("unexpected removals: %v", report.Removals)
	}
}

func TestCleanSortsSectionsNumerically(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "10", "text": "ten"},
			map[string]any{"number": "2", "text": "two"},
			map[string]any{"number": "PREAMBLE", "text": "whereas"},
			map[string]any{"number": "1", "text": "one"},
		},
	}
	cleaned, _ := testEngine().Clean(doc)
	secs := sectionsOf(cleaned)

	want := []string{"PREAMBLE", "1", "2", "10"}
	for i, w := range want {
		if secs[i]["number"] != w {
			t.Fatalf("position %d: got %v, want %s", i, secs[i]["number"], w)
		}
	}
}

func TestCleanMalformedSectionsPassThrough(t *testing.T) {
	doc := map[string]any{
		"sections": []any{
			map[string]any{"number": "1", "text": "one"},
			"just a string",
			42,
		},
	}
	cleaned, _ := testEngine().Clean(doc)
	items, _ := cleaned["sections"].([]any)
	if len(items) != 3 {
		t.Fatalf("malformed entries must pass through, got %d items", len(items))
	}
	if items[1] != "just a string" || items[2] != 42 {
		t.Errorf("malformed entries reordered incorrectly: %v", items)
	}
}

func TestCleanIdempotent(t *testing.T) {
	doc := map[string]any{
		"name":     "Stamp Act 1899",
		"raw_html": "<b>x</b>",
		"sections": []any{
			map[string]any{"number": "2", "text": "This Act extends to the whole of the Province of the Punjab.", "volume": "I"},
			map[string]any{"number": "PREAMBLE", "text": "This Act extends to the whole of the Province of the Punjab. Whereas it is expedient to amend the law."},
			map[string]any{"number": "1", "text": "Short title: the Stamp Act 1899.", "volume": "I"},
		},
	}

	engine := testEngine()
	once, _ := engine.Clean(doc)
	twice, _ := engine.Clean(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("clean(clean(d)) != clean(d):\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

type alwaysScorer struct{ partial, tokenSort int }

func (s alwaysScorer) PartialRatio(a, b string) int   { return s.partial }
func (s alwaysScorer) TokenSortRatio(a, b string) int { return s.tokenSort }

func TestFuzzyMatcherThresholds(t *testing.T) {
	frag := "whereas it is expedient to consolidate the law"
	text := "Whereas it is expedient to consolidate and amend the law of stamps generally."

	m := &fuzzyMatcher{scorer: alwaysScorer{partial: 90, tokenSort: 10}}
	if !m.Matches(nil, frag, text) {
		t.Error("partial ratio above threshold should match")
	}

	m = &fuzzyMatcher{scorer: alwaysScorer{partial: 10, tokenSort: 85}}
	if !m.Matches(nil, frag, text) {
		t.Error("token-sort ratio above threshold should match")
	}

	m = &fuzzyMatcher{scorer: alwaysScorer{partial: 50, tokenSort: 50}}
	if m.Matches(nil, frag, text) {
		t.Error("scores below both thresholds must not match")
	}
}

package dates

import (
	"testing"
	"time"

	"github.com/statline/statline/internal/statute"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
}

func enrichDoc(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	e := NewEnricher().WithClock(fixedClock)
	return e.Enrich(doc)
}

func metadataOf(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	md, ok := doc[MetadataKey].(map[string]any)
	if !ok {
		t.Fatalf("missing %s in %v", MetadataKey, doc)
	}
	return md
}

func TestEnrichPrefersPrimaryField(t *testing.T) {
	out := enrichDoc(t, map[string]any{
		statute.FieldDate:         "14-Aug-1947",
		statute.FieldPromulgation: "15-Aug-1947",
	})

	if got := out[statute.FieldDate]; got != "14-Aug-1947" {
		t.Fatalf("Date = %v, want 14-Aug-1947", got)
	}
	if _, present := out[statute.FieldPromulgation]; present {
		t.Fatalf("Promulgation_Date should be removed after merge")
	}
	md := metadataOf(t, out)
	if md["source_field"] != statute.FieldDate || md["method"] != MethodPrimary {
		t.Fatalf("metadata = %v", md)
	}
	if md["confidence"] != ConfidencePrimary {
		t.Fatalf("confidence = %v, want %d", md["confidence"], ConfidencePrimary)
	}
}

func TestEnrichFallsBackToPromulgation(t *testing.T) {
	out := enrichDoc(t, map[string]any{
		statute.FieldDate:         "not available",
		statute.FieldPromulgation: "1st March, 1984",
	})

	if got := out[statute.FieldDate]; got != "01-Mar-1984" {
		t.Fatalf("Date = %v, want 01-Mar-1984", got)
	}
	md := metadataOf(t, out)
	if md["method"] != MethodPromulgation || md["confidence"] != ConfidencePromulgation {
		t.Fatalf("metadata = %v", md)
	}
}

func TestEnrichNormalizesAssortedFormats(t *testing.T) {
	cases := map[string]string{
		"1984-03-01":     "01-Mar-1984",
		"March 1, 1984":  "01-Mar-1984",
		"1 March 1984":   "01-Mar-1984",
		"01-03-1984":     "01-Mar-1984",
		"14/08/1947":     "14-Aug-1947",
		" 14-Aug-1947 ":  "14-Aug-1947",
	}
	for input, want := range cases {
		out := enrichDoc(t, map[string]any{statute.FieldDate: input})
		if got := out[statute.FieldDate]; got != want {
			t.Errorf("Enrich(%q) = %v, want %q", input, got, want)
		}
	}
}

func TestEnrichParseFailure(t *testing.T) {
	out := enrichDoc(t, map[string]any{statute.FieldDate: "the olden days"})

	if got := out[statute.FieldDate]; got != "" {
		t.Fatalf("Date = %v, want empty", got)
	}
	md := metadataOf(t, out)
	if md["method"] != MethodParseFailed || md["confidence"] != ConfidenceParseFailed {
		t.Fatalf("metadata = %v", md)
	}
}

func TestEnrichNoDateFields(t *testing.T) {
	out := enrichDoc(t, map[string]any{"name": "Some Act"})

	if got := out[statute.FieldDate]; got != "" {
		t.Fatalf("Date = %v, want empty", got)
	}
	md := metadataOf(t, out)
	if md["method"] != MethodNone || md["confidence"] != 0 {
		t.Fatalf("metadata = %v", md)
	}
}

func TestEnrichSkipsPlaceholders(t *testing.T) {
	for _, placeholder := range []string{"null", "None", "N/A", "-", "  "} {
		out := enrichDoc(t, map[string]any{
			statute.FieldDate:         placeholder,
			statute.FieldPromulgation: "14-Aug-1947",
		})
		if got := out[statute.FieldDate]; got != "14-Aug-1947" {
			t.Errorf("placeholder %q: Date = %v, want promulgation value", placeholder, got)
		}
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		statute.FieldDate:         "14-Aug-1947",
		statute.FieldPromulgation: "15-Aug-1947",
	}
	enrichDoc(t, in)

	if in[statute.FieldPromulgation] != "15-Aug-1947" {
		t.Fatalf("input mutated: %v", in)
	}
	if _, present := in[MetadataKey]; present {
		t.Fatalf("input gained %s", MetadataKey)
	}
}

func TestNormalize(t *testing.T) {
	if _, ok := Normalize("garbage"); ok {
		t.Fatalf("Normalize accepted garbage")
	}
	got, ok := Normalize("1947-08-14")
	if !ok || got != "14-Aug-1947" {
		t.Fatalf("Normalize = %q, %v", got, ok)
	}
}

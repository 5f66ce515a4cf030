// Package dates merges and normalizes the date-bearing fields of a statute
// document into one canonical date string, with regex and oracle recovery
// passes for documents whose fields are absent.
package dates

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/statline/statline/internal/statute"
)

// Merge methods recorded in date_metadata.
const (
	MethodPrimary      = "primary_field"
	MethodPromulgation = "promulgation_field"
	MethodParseFailed  = "parse_failed"
	MethodNone         = "none"
	MethodRegex        = "regex"
	MethodLLM          = "llm"
)

// Confidence scores for the merge path. The promulgation field scores
// higher than the generic date field because its presence implies a more
// specific date in the source corpus.
const (
	ConfidencePrimary      = 90
	ConfidencePromulgation = 95
	ConfidenceParseFailed  = 10
)

// MetadataKey is the document field holding merge provenance.
const MetadataKey = "date_metadata"

// placeholders are raw field values treated as empty.
var placeholders = map[string]struct{}{
	"not available": {},
	"null":          {},
	"none":          {},
	"n/a":           {},
	"-":             {},
}

// Enricher merges raw date fields into the canonical form.
type Enricher struct {
	now func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher() *Enricher {
	return &Enricher{now: time.Now}
}

// WithClock overrides the timestamp source (tests).
func (e *Enricher) WithClock(now func() time.Time) *Enricher {
	e.now = now
	return e
}

// Enrich is a pure function over one raw document: it returns a new
// document whose Date field holds the canonical form and whose
// date_metadata records provenance. No pattern or oracle recovery runs
// here — that is a separate opt-in pass (see recover.go).
func (e *Enricher) Enrich(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	primary := usableValue(out[statute.FieldDate])
	secondary := usableValue(out[statute.FieldPromulgation])

	meta := map[string]any{
		"merged_at": e.now().UTC().Format(time.RFC3339),
	}

	candidate, sourceField, method, confidence := pick(primary, secondary)
	if candidate == "" {
		out[statute.FieldDate] = ""
		meta["method"] = MethodNone
		meta["confidence"] = 0
	} else if canonical, ok := Normalize(candidate); ok {
		out[statute.FieldDate] = canonical
		meta["source_field"] = sourceField
		meta["method"] = method
		meta["confidence"] = confidence
	} else {
		out[statute.FieldDate] = ""
		meta["source_field"] = sourceField
		meta["method"] = MethodParseFailed
		meta["confidence"] = ConfidenceParseFailed
	}

	// The consumed secondary field is removed after the merge; this is the
	// documented exception to append-only metadata.
	delete(out, statute.FieldPromulgation)
	out[MetadataKey] = meta
	return out
}

func pick(primary, secondary string) (candidate, sourceField, method string, confidence int) {
	if primary != "" {
		return primary, statute.FieldDate, MethodPrimary, ConfidencePrimary
	}
	if secondary != "" {
		return secondary, statute.FieldPromulgation, MethodPromulgation, ConfidencePromulgation
	}
	return "", "", MethodNone, 0
}

// Normalize parses a raw date string with a fuzzy natural-language parser
// and formats it to the canonical layout (e.g. "04-Mar-2016").
func Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	// Statute texts write ambiguous numeric dates day-first (14-08-1947).
	t, err := dateparse.ParseAny(raw, dateparse.PreferMonthFirst(false))
	if err != nil {
		return "", false
	}
	return t.Format(statute.DateLayout), true
}

// usableValue returns the trimmed string value, treating placeholders as
// empty.
func usableValue(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, bad := placeholders[strings.ToLower(s)]; bad {
		return ""
	}
	return s
}

// Package clean implements the per-document structural cleaner: the stage
// that turns a messy, heterogeneously-shaped legal document into a
// canonical sectioned record.
//
// Cleaning is non-destructive at the document level — documents are never
// dropped here. The only destructive edit is removing a section whose
// entire content turned out to be repeated preamble text.
package clean

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

// CleanerVersion tags cleaned documents so reprocessing runs can tell which
// rule set produced them.
const CleanerVersion = "clean/1"

const (
	// minFragmentLen discards preamble fragments too short to be meaningful
	// duplicates; removing them would mangle unrelated section text.
	minFragmentLen = 30

	// maxPatternLen caps the compiled alternation pattern to avoid
	// pathological regex compilation on huge preambles.
	maxPatternLen = 20000

	partialRatioThreshold  = 85
	tokenSortThreshold     = 80
	defaultEmbedThreshold  = 0.78
)

// deniedFields is the fixed deny-list dropped at both document and section
// level: content-duplicating blobs, source/category metadata, and
// binary/URL pointers.
var deniedFields = []string{
	"raw_html", "html", "source_url", "url", "category",
	"source", "scraped_at", "pdf_link", "blob", "attachment",
}

// synthesisFields are the document-level fields a single empty section is
// synthesized from, in order.
var synthesisFields = []string{"Act_Ordinance", "Definition", "Citation", "Statute_RAW"}

// Removal records one deduplicated fragment for the audit trail.
type Removal struct {
	SectionIndex int
	Field        string
	Fragment     string
}

// Report is the transient audit record for one cleaning run. It is returned
// to the caller and never persisted into the document, so cleaning stays
// idempotent modulo timestamps.
type Report struct {
	Removals        []Removal
	DroppedSections []int
	PromotedFields  []string
	Synthesized     bool
}

// Engine cleans raw map-shaped documents. Matching capabilities are
// injected at construction: substring matching is always available, fuzzy
// matching requires a scorer, and embedding matching requires an embedder
// (disabled by default to avoid heavy model loads).
type Engine struct {
	matchers []FragmentMatcher
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFuzzyScorer enables the fuzzy fragment-matching fallback.
func WithFuzzyScorer(s FuzzyScorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.matchers = append(e.matchers, &fuzzyMatcher{scorer: s})
		}
	}
}

// WithEmbedMatcher enables the semantic fragment-matching fallback.
// A threshold <= 0 uses the default (0.78).
func WithEmbedMatcher(m *EmbedMatcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.matchers = append(e.matchers, m)
		}
	}
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a cleaning engine. The substring matcher is always
// first in the chain; options append fuzzy and embedding fallbacks in the
// order given.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		matchers: []FragmentMatcher{substringMatcher{}},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clean applies the full cleaning sequence to a raw document and returns a
// new document plus the audit report. The input map is not mutated.
func (e *Engine) Clean(doc map[string]any) (map[string]any, *Report) {
	out, _ := deepCopy(doc).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	report := &Report{}

	e.dropDeniedFields(out)
	e.promoteCommonFields(out, report)
	e.normalizeSingleSection(out, report)
	e.dedupPreambleFragments(out, report)
	e.sortSections(out)
	e.stamp(out)

	return out, report
}

// dropDeniedFields removes deny-listed keys at the document level and in
// every well-formed section. Absence of a key is not an error.
func (e *Engine) dropDeniedFields(doc map[string]any) {
	for _, key := range deniedFields {
		delete(doc, key)
	}
	for _, sec := range mapSections(doc) {
		for _, key := range deniedFields {
			delete(sec, key)
		}
	}
}

// promoteCommonFields moves any non-core field that appears in every
// section with an identical value up to the document level. Applies only
// with two or more sections; single-section documents are handled by
// normalizeSingleSection instead.
func (e *Engine) promoteCommonFields(doc map[string]any, report *Report) {
	sections := mapSections(doc)
	if len(sections) < 2 {
		return
	}

	first := sections[0]
	for key, value := range first {
		if isCoreSectionField(key) {
			continue
		}

		common := true
		for _, sec := range sections[1:] {
			other, ok := sec[key]
			if !ok || !reflect.DeepEqual(other, value) {
				common = false
				break
			}
		}
		if !common {
			continue
		}

		if existing, ok := doc[key]; ok && !reflect.DeepEqual(existing, value) {
			continue
		}

		doc[key] = value
		for _, sec := range sections {
			delete(sec, key)
		}
		report.PromotedFields = append(report.PromotedFields, key)
	}
}

// normalizeSingleSection synthesizes content for a document whose only
// section is entirely empty, from the raw document-level statute fields,
// and removes those fields afterward.
func (e *Engine) normalizeSingleSection(doc map[string]any, report *Report) {
	sections := mapSections(doc)
	if len(sections) != 1 || rawSectionCount(doc) != 1 {
		return
	}

	sec := sections[0]
	if !sectionEmpty(sec) {
		return
	}

	var parts []string
	for _, field := range synthesisFields {
		if text := strings.TrimSpace(stringValue(doc[field])); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return
	}

	sec[statute.FieldSectionText] = strings.Join(parts, "\n\n")
	if strings.TrimSpace(stringValue(sec[statute.FieldSectionNumber])) == "" {
		sec[statute.FieldSectionNumber] = "Preamble"
	}
	for _, field := range synthesisFields {
		delete(doc, field)
	}
	report.Synthesized = true
}

// sortSections re-sorts the raw section array using the section sort
// policy. Malformed entries keep their relative order after all
// well-formed ones.
func (e *Engine) sortSections(doc map[string]any) {
	items, ok := doc[statute.FieldSections].([]any)
	if !ok || len(items) < 2 {
		return
	}

	type keyed struct {
		item      any
		key       statute.SortKey
		malformed bool
	}
	keys := make([]keyed, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			keys[i] = keyed{item: item, key: statute.SectionSortKey(stringValue(m[statute.FieldSectionNumber]))}
		} else {
			// Malformed entries sort after all well-formed ones, in their
			// original relative order.
			keys[i] = keyed{item: item, malformed: true}
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].malformed != keys[j].malformed {
			return !keys[i].malformed
		}
		if keys[i].malformed {
			return false
		}
		return keys[i].key.Less(keys[j].key)
	})

	sorted := make([]any, len(keys))
	for i, k := range keys {
		sorted[i] = k.item
	}
	doc[statute.FieldSections] = sorted
}

// stamp records the cleaning timestamp and rule-set version in metadata.
func (e *Engine) stamp(doc map[string]any) {
	meta, ok := doc[statute.FieldMetadata].(map[string]any)
	if !ok {
		meta = make(map[string]any)
		doc[statute.FieldMetadata] = meta
	}
	meta["cleaned_at"] = e.now().UTC().Format(time.RFC3339)
	meta["cleaner_version"] = CleanerVersion
}

// --- raw-shape helpers ---

func isCoreSectionField(key string) bool {
	switch key {
	case statute.FieldSectionNumber, statute.FieldSectionTitle, statute.FieldSectionText:
		return true
	}
	return false
}

// mapSections returns the well-formed (map-shaped) sections. Malformed
// entries are tolerated and passed through untouched elsewhere.
func mapSections(doc map[string]any) []map[string]any {
	items, ok := doc[statute.FieldSections].([]any)
	if !ok {
		return nil
	}
	sections := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			sections = append(sections, m)
		}
	}
	return sections
}

func rawSectionCount(doc map[string]any) int {
	items, _ := doc[statute.FieldSections].([]any)
	return len(items)
}

// sectionEmpty reports whether every value in the section is null, empty,
// or absent.
func sectionEmpty(sec map[string]any) bool {
	for _, value := range sec {
		if !valueEmpty(value) {
			return false
		}
	}
	return true
}

func valueEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func normalizeText(s string) string {
	return textnorm.CollapseWhitespace(s)
}

// deepCopy clones the nested map/slice/scalar shape of a raw document.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

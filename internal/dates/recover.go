package dates

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/statline/statline/internal/llm"
	"github.com/statline/statline/internal/statute"
)

// snippetBudget bounds the early-section text sent to the recovery passes.
const snippetBudget = 1200

// Recovery method tags the oracle may return.
var validRecoveryMethods = map[string]struct{}{
	"gazette":          {},
	"notification":     {},
	"governor_assent":  {},
	"president_assent": {},
	"assembly_passage": {},
	"other":            {},
}

const recoverySystemPrompt = `You extract promulgation dates from legal statute text. ` +
	`Given a statute name and an excerpt, find the date the law was promulgated, assented to, or gazetted. ` +
	`Return ONLY a JSON object with exactly these keys:
{
  "date": "DD-Mon-YYYY or empty string if not found",
  "confidence": 0,
  "reasoning": "one sentence",
  "method": "gazette|notification|governor_assent|president_assent|assembly_passage|other"
}`

// RecoveryResult is the outcome of an opt-in recovery pass. Source records
// which pass produced the date (MethodLLM or MethodRegex); Method is the
// oracle's finer-grained tag for how the date was found in the text.
type RecoveryResult struct {
	Date       string `json:"date"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
	Method     string `json:"method"`
	Source     string `json:"-"`
}

// Empty reports whether the pass found nothing usable.
func (r RecoveryResult) Empty() bool { return r.Date == "" }

// datePatterns are the date shapes tried by the regex recovery pass, most
// specific first.
var datePatterns = []struct {
	re     string
	layout string
}{
	{`\b(\d{1,2})(?:st|nd|rd|th)?\s+day\s+of\s+([A-Za-z]+),?\s+(\d{4})\b`, "day-of"},
	{`\b(\d{1,2})-([A-Za-z]{3,9})-(\d{4})\b`, "d-mon-y"},
	{`\b(\d{1,2})[-/](\d{1,2})[-/](\d{4})\b`, "dmy"},
	{`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`, "ymd"},
	{`\b(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+),?\s+(\d{4})\b`, "d-month-y"},
	{`\b([A-Za-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`, "month-d-y"},
}

// Recoverer runs the opt-in recovery passes for documents whose merged
// date is still empty. A nil oracle permanently downgrades the AI pass to
// regex-only, so the pipeline always makes forward progress.
type Recoverer struct {
	oracle llm.Provider
}

// NewRecoverer creates a Recoverer; oracle may be nil.
func NewRecoverer(oracle llm.Provider) *Recoverer {
	return &Recoverer{oracle: oracle}
}

// ExtractDate recovers a date for the named statute from its early section
// text: oracle first when configured, regex otherwise or on oracle failure.
func (r *Recoverer) ExtractDate(ctx context.Context, name, snippet string) RecoveryResult {
	snippet = truncateSnippet(snippet)

	if r.oracle != nil {
		if result, err := r.extractWithOracle(ctx, name, snippet); err == nil && !result.Empty() {
			result.Source = MethodLLM
			return result
		}
	}
	return ExtractDateWithPatterns(name, snippet)
}

// extractWithOracle asks the oracle for a strict JSON recovery record. Any
// JSON-decode or validation failure yields a zero-confidence empty result
// rather than an error surfacing to the document.
func (r *Recoverer) extractWithOracle(ctx context.Context, name, snippet string) (RecoveryResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Statute: %s\n\nExcerpt:\n%s", name, snippet)
	response, err := r.oracle.Complete(callCtx, prompt, llm.CompletionOpts{
		Temperature: 0,
		MaxTokens:   256,
		Format:      "json",
		System:      recoverySystemPrompt,
	})
	if err != nil {
		return RecoveryResult{}, err
	}

	return ParseRecoveryResponse(response), nil
}

// ParseRecoveryResponse decodes and validates the oracle's JSON. Malformed
// JSON, an unknown method tag, an out-of-range confidence, or an
// unparseable date all produce a zero-confidence empty result.
func ParseRecoveryResponse(raw string) RecoveryResult {
	var result RecoveryResult
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &result); err != nil {
		return RecoveryResult{}
	}

	if result.Confidence < 0 || result.Confidence > 100 {
		return RecoveryResult{}
	}
	if _, ok := validRecoveryMethods[result.Method]; !ok {
		return RecoveryResult{}
	}

	if result.Date != "" {
		canonical, ok := Normalize(result.Date)
		if !ok {
			return RecoveryResult{}
		}
		result.Date = canonical
	}
	return result
}

// ExtractDateWithPatterns runs the regex fallback over the statute name
// plus snippet. It needs no external dependency.
func ExtractDateWithPatterns(name, snippet string) RecoveryResult {
	text := name + "\n" + truncateSnippet(snippet)

	for _, p := range datePatterns {
		re := patternCache(p.re)
		match := re.FindString(text)
		if match == "" {
			continue
		}
		if canonical, ok := Normalize(stripOrdinals(match)); ok {
			return RecoveryResult{
				Date:       canonical,
				Confidence: 60,
				Reasoning:  fmt.Sprintf("matched %s pattern", p.layout),
				Method:     "other",
				Source:     MethodRegex,
			}
		}
	}
	return RecoveryResult{}
}

var (
	patternMu  sync.Mutex
	patternMap = map[string]*regexp.Regexp{}
)

// patternCache compiles a pattern once and memoizes it across calls.
func patternCache(expr string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternMap[expr]; ok {
		return re
	}
	re := regexp.MustCompile(expr)
	patternMap[expr] = re
	return re
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)

func stripOrdinals(s string) string {
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "day of ", "")
	return s
}

func truncateSnippet(s string) string {
	if len(s) <= snippetBudget {
		return s
	}
	return s[:snippetBudget]
}

// SnippetFor builds the bounded early-section text for a document: the
// preamble plus leading sections, in order, until the budget is reached.
func SnippetFor(doc statute.Document) string {
	var b strings.Builder
	for _, sec := range doc.Sections {
		if b.Len() >= snippetBudget {
			break
		}
		if sec.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sec.Text)
	}
	return truncateSnippet(b.String())
}

// Package scope decides whether a document is a law of the target
// jurisdiction (Pakistan in the reference corpus).
//
// The cascade is deliberately rule-first, oracle-last: date threshold,
// keyword and province matching handle the bulk of documents
// deterministically; the oracle classifies only the ambiguous tail.
// Validation is advisory — it never deletes; callers decide what to do
// with out-of-scope documents.
package scope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/statline/statline/internal/llm"
	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

// DefaultCutoffYear is the year before which documents are out of scope
// unless a jurisdiction signal overrides: the target state did not exist.
const DefaultCutoffYear = 1947

// Reason codes for the deterministic rules.
const (
	ReasonPreCutoff      = "pre-cutoff"
	ReasonCountryKeyword = "jurisdiction keyword"
	ReasonProvinceMatch  = "province match"
	ReasonForeign        = "foreign"
	ReasonUnknownKept    = "unknown, kept by default"
)

var countryKeywords = []string{
	"pakistan",
	"gazette of pakistan",
	"west pakistan",
}

var provinces = []string{
	"punjab",
	"sindh",
	"balochistan",
	"khyber pakhtunkhwa",
	"gilgit-baltistan",
	"azad jammu and kashmir",
	"islamabad",
	"federal",
}

// Pre-partition instruments adopted into the corpus are in scope:
// prePartitionPhrases are masked out of the text before the foreign
// keyword scan so "british india" cannot trip the "india" rule.
var prePartitionPhrases = []string{
	"british india",
}

var foreignKeywords = []string{
	"india",
	"bangladesh",
	"burma",
	"ceylon",
	"united kingdom",
	"sri lanka",
}

const oracleSystemPrompt = `You classify legal documents by jurisdiction. ` +
	`Decide whether the document is a law of Pakistan (federal or provincial). ` +
	`Answer with exactly one line: IN_SCOPE or OUT_OF_SCOPE, followed by a one or two word reason.`

// Validator applies the jurisdiction rule cascade.
type Validator struct {
	oracle     llm.Provider // nil = no-oracle fallback path
	cutoffYear int
}

// NewValidator creates a validator. A nil oracle permanently downgrades the
// ambiguous-tail classification to "unknown, kept by default" for the run.
func NewValidator(oracle llm.Provider) *Validator {
	return &Validator{oracle: oracle, cutoffYear: DefaultCutoffYear}
}

// Validate returns whether the document is in scope plus a best-effort
// human-readable reason. It always returns a definite boolean; callers
// treat "unknown" outcomes as advisory (the reference policy keeps them).
func (v *Validator) Validate(ctx context.Context, doc statute.Document) (bool, string) {
	title := strings.ToLower(doc.Name)
	preamble := strings.ToLower(doc.PreambleText())
	province := textnorm.NormalizeJurisdiction(doc.Jurisdiction)

	// The date rule and the keyword rules are evaluated independently: a
	// jurisdiction token match overrides a pre-cutoff date.
	preCutoff := false
	if year := doc.EnactmentYear(); year > 0 && year < v.cutoffYear {
		preCutoff = true
	}

	for _, kw := range countryKeywords {
		if strings.Contains(title, kw) || strings.Contains(preamble, kw) {
			return true, ReasonCountryKeyword
		}
	}

	if province != textnorm.UnknownJurisdiction {
		for _, p := range provinces {
			if province == p || strings.Contains(province, p) {
				return true, ReasonProvinceMatch
			}
		}
	}

	if preCutoff {
		return false, ReasonPreCutoff
	}

	scanTitle := maskPrePartitionPhrases(title)
	scanPreamble := maskPrePartitionPhrases(preamble)
	for _, kw := range foreignKeywords {
		if containsWord(scanTitle, kw) || containsWord(scanPreamble, kw) {
			return false, ReasonForeign
		}
	}

	return v.oracleFallback(ctx, doc)
}

// oracleFallback asks the external oracle for a classification. Oracle
// failure is non-fatal: the document is kept with an "unknown" reason.
func (v *Validator) oracleFallback(ctx context.Context, doc statute.Document) (bool, string) {
	if v.oracle == nil {
		return true, ReasonUnknownKept
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Title: %s\nDate: %s\nPreamble: %s",
		doc.Name, doc.EnactmentDate, truncate(doc.PreambleText(), 800))

	response, err := v.oracle.Complete(callCtx, prompt, llm.CompletionOpts{
		Temperature: 0,
		MaxTokens:   32,
		System:      oracleSystemPrompt,
	})
	if err != nil {
		return true, ReasonUnknownKept
	}

	verdict, reason := parseOracleVerdict(response)
	switch verdict {
	case "IN_SCOPE":
		return true, reason
	case "OUT_OF_SCOPE":
		return false, reason
	default:
		return true, ReasonUnknownKept
	}
}

// parseOracleVerdict extracts the verdict token and trailing reason from
// the oracle's one-line answer.
func parseOracleVerdict(response string) (string, string) {
	line := strings.TrimSpace(response)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}

	verdict := strings.ToUpper(strings.Trim(fields[0], ":,."))
	reason := strings.Join(fields[1:], " ")
	if reason == "" {
		reason = strings.ToLower(verdict)
	}
	return verdict, reason
}

// containsWord matches a keyword on word boundaries so "india" does not
// fire inside "indiana" or "indian ocean" is still caught as a phrase.
func maskPrePartitionPhrases(text string) string {
	for _, phrase := range prePartitionPhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	return text
}

func containsWord(text, keyword string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], keyword)
		if pos < 0 {
			return false
		}
		pos += idx
		end := pos + len(keyword)
		beforeOK := pos == 0 || !isWordByte(text[pos-1])
		afterOK := end >= len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

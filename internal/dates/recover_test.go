package dates

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/statline/statline/internal/llm"
	"github.com/statline/statline/internal/statute"
)

type fakeOracle struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeOracle) Complete(_ context.Context, prompt string, _ llm.CompletionOpts) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeOracle) Name() string { return "fake" }

func TestExtractDateWithPatterns(t *testing.T) {
	cases := []struct {
		name    string
		snippet string
		want    string
	}{
		{"The Companies Ordinance 1984", "promulgated on 08-Oct-1984 by the President", "08-Oct-1984"},
		{"Some Act", "Gazette of Pakistan, Extraordinary, 14/08/1947", "14-Aug-1947"},
		{"Some Act", "assented to on March 1, 1984 by the Governor", "01-Mar-1984"},
		{"Some Act", "published 1984-03-01 in the official gazette", "01-Mar-1984"},
		{"Some Act", "dated the 14th day of August, 1947", "14-Aug-1947"},
		{"Some Act", "no date anywhere in this text", ""},
	}
	for _, tc := range cases {
		got := ExtractDateWithPatterns(tc.name, tc.snippet)
		if got.Date != tc.want {
			t.Errorf("ExtractDateWithPatterns(%q) = %q, want %q", tc.snippet, got.Date, tc.want)
		}
		if tc.want != "" && got.Confidence == 0 {
			t.Errorf("ExtractDateWithPatterns(%q) confidence = 0", tc.snippet)
		}
	}
}

func TestExtractDateUsesOracle(t *testing.T) {
	oracle := &fakeOracle{response: `{"date":"14-Aug-1947","confidence":85,"reasoning":"gazette notice","method":"gazette"}`}
	r := NewRecoverer(oracle)

	got := r.ExtractDate(context.Background(), "The Independence Act", "some preamble text")
	if got.Date != "14-Aug-1947" || got.Confidence != 85 || got.Method != "gazette" {
		t.Fatalf("ExtractDate = %+v", got)
	}
	if got.Source != MethodLLM {
		t.Fatalf("Source = %q, want %q", got.Source, MethodLLM)
	}
	if len(oracle.prompts) != 1 || !strings.Contains(oracle.prompts[0], "The Independence Act") {
		t.Fatalf("prompts = %v", oracle.prompts)
	}
}

func TestExtractDateOracleFailureFallsBackToPatterns(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("boom")}
	r := NewRecoverer(oracle)

	got := r.ExtractDate(context.Background(), "Some Act", "promulgated on 08-Oct-1984")
	if got.Date != "08-Oct-1984" || got.Source != MethodRegex {
		t.Fatalf("ExtractDate = %+v, want pattern fallback", got)
	}
}

func TestExtractDateNilOracle(t *testing.T) {
	r := NewRecoverer(nil)
	got := r.ExtractDate(context.Background(), "Some Act", "assented on 1984-03-01")
	if got.Date != "01-Mar-1984" {
		t.Fatalf("ExtractDate = %+v", got)
	}
	if got.Source != MethodRegex {
		t.Fatalf("Source = %q, want %q", got.Source, MethodRegex)
	}
}

func TestParseRecoveryResponse(t *testing.T) {
	cases := []struct {
		raw  string
		want RecoveryResult
	}{
		{
			raw:  "```json\n{\"date\":\"1984-10-08\",\"confidence\":70,\"reasoning\":\"ok\",\"method\":\"notification\"}\n```",
			want: RecoveryResult{Date: "08-Oct-1984", Confidence: 70, Reasoning: "ok", Method: "notification"},
		},
		{raw: `not json at all`, want: RecoveryResult{}},
		{raw: `{"date":"14-Aug-1947","confidence":150,"reasoning":"x","method":"gazette"}`, want: RecoveryResult{}},
		{raw: `{"date":"14-Aug-1947","confidence":80,"reasoning":"x","method":"vibes"}`, want: RecoveryResult{}},
		{raw: `{"date":"no such date","confidence":80,"reasoning":"x","method":"gazette"}`, want: RecoveryResult{}},
		{raw: `{"date":"","confidence":0,"reasoning":"none found","method":"other"}`, want: RecoveryResult{Reasoning: "none found", Method: "other"}},
	}
	for _, tc := range cases {
		got := ParseRecoveryResponse(tc.raw)
		if got != tc.want {
			t.Errorf("ParseRecoveryResponse(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}

func TestSnippetForTruncates(t *testing.T) {
	doc := statute.Document{
		Sections: []statute.Section{
			{Number: statute.PreambleNumber, Text: strings.Repeat("a", 800)},
			{Number: "1", Text: strings.Repeat("b", 800)},
			{Number: "2", Text: "never reached"},
		},
	}
	got := SnippetFor(doc)
	if len(got) != snippetBudget {
		t.Fatalf("len = %d, want %d", len(got), snippetBudget)
	}
	if !strings.HasPrefix(got, "aaa") || !strings.Contains(got, "b") {
		t.Fatalf("snippet missing leading sections")
	}
	if strings.Contains(got, "never reached") {
		t.Fatalf("snippet exceeded budget")
	}
}

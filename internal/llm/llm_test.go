package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseProviderFlag(t *testing.T) {
	cfg, err := ParseProviderFlag("google/gemini-2.5-flash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "google" || cfg.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg, err = ParseProviderFlag("openrouter/openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "openrouter" || cfg.Model != "openai/gpt-4o-mini" {
		t.Errorf("model with slashes mishandled: %+v", cfg)
	}

	if _, err := ParseProviderFlag("nope/model"); err == nil {
		t.Error("expected error for unknown provider")
	}

	cfg, err = ParseProviderFlag("")
	if err != nil || cfg.Provider != "google" {
		t.Errorf("empty flag should yield default google config, got %+v, %v", cfg, err)
	}
}

func TestStripFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	if got := StripFences(fenced); got != `{"a": 1}` {
		t.Errorf("StripFences = %q", got)
	}

	plain := `{"a": 1}`
	if got := StripFences(plain); got != plain {
		t.Errorf("plain text should pass through, got %q", got)
	}
}

func TestGoogleProviderUsesConfiguredModel(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(Config{Provider: "google", Model: "gemini-test", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	got, err := p.Complete(context.Background(), "prompt", CompletionOpts{Format: "json", System: "sys"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello" {
		t.Errorf("response = %q", got)
	}
	// The model is pinned at construction; every request goes to it.
	if !strings.Contains(gotPath, "models/gemini-test:generateContent") {
		t.Errorf("request path = %q", gotPath)
	}
	if !strings.Contains(gotBody, `"responseMimeType":"application/json"`) {
		t.Errorf("request body missing json mime type: %s", gotBody)
	}
	if !strings.Contains(gotBody, "sys") {
		t.Errorf("request body missing system instruction: %s", gotBody)
	}
}

func TestOpenrouterProviderUsesConfiguredModel(t *testing.T) {
	var gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(Config{Provider: "openrouter", Model: "openai/gpt-4o-mini", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	got, err := p.Complete(context.Background(), "prompt", CompletionOpts{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hi" {
		t.Errorf("response = %q", got)
	}
	if !strings.Contains(gotBody, `"model":"openai/gpt-4o-mini"`) {
		t.Errorf("request body model = %s", gotBody)
	}
	if gotAuth != "Bearer k" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return "ok", nil
}

func (f *flakyProvider) Name() string { return "test/flaky" }

func TestCompleteWithRetryExhaustion(t *testing.T) {
	p := &flakyProvider{failures: 10}
	_, err := CompleteWithRetry(context.Background(), p, "x", CompletionOpts{}, 0)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call with maxRetries=0, got %d", p.calls)
	}
}

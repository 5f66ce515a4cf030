package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseFlag(t *testing.T) {
	cfg, err := ParseFlag("ollama/nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.Model != "nomic-embed-text" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg, err = ParseFlag("openrouter/sentence-transformers/all-MiniLM-L6-v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "sentence-transformers/all-MiniLM-L6-v2" {
		t.Errorf("model with slashes mishandled: %+v", cfg)
	}

	if _, err := ParseFlag("bogus/model"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if sim := CosineSimilarity(a, b); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("identical vectors should score 1.0, got %f", sim)
	}
	if sim := CosineSimilarity(a, c); math.Abs(sim) > 1e-9 {
		t.Errorf("orthogonal vectors should score 0.0, got %f", sim)
	}
	if sim := CosineSimilarity(a, []float32{1, 2}); sim != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", sim)
	}
}

func TestEmbedBatchOrdering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		// Respond out of order to exercise index-based reassembly.
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{2, 2}, "index": 1},
				{"embedding": []float32{1, 1}, "index": 0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  0,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	vecs, err := client.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("embeddings not reassembled by index: %v", vecs)
	}
	if client.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", client.Dimensions())
	}
}

func TestEmbedBatchAllEmpty(t *testing.T) {
	client, err := NewClient(&Config{
		Provider:    "test",
		Model:       "m",
		Endpoint:    "http://localhost:1",
		TimeoutSecs: 1,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	vecs, err := client.EmbedBatch(context.Background(), []string{"", "  "})
	if err != nil {
		t.Fatalf("empty batch should not call the API: %v", err)
	}
	if len(vecs) != 2 || vecs[0] != nil || vecs[1] != nil {
		t.Errorf("expected nil vectors for empty texts, got %v", vecs)
	}
}

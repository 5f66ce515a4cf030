package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/statline/statline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestImportArrayFile(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.json", `[
		{"id": "d1", "name": "The Companies Act 1984", "jurisdiction": "federal", "instrument_type": "act"},
		{"id": "d2", "name": "The Contract Act 1872", "jurisdiction": "federal", "instrument_type": "act"}
	]`)

	engine := NewEngine(s)
	result, err := engine.ImportPath(context.Background(), path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsNew != 2 {
		t.Errorf("DocumentsNew = %d, want 2", result.DocumentsNew)
	}
	if result.FilesImported != 1 {
		t.Errorf("FilesImported = %d, want 1", result.FilesImported)
	}

	rec, err := s.GetDocument(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if rec.Name != "The Companies Act 1984" {
		t.Errorf("Name = %q", rec.Name)
	}
}

func TestImportMapFile(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.json", `{
		"fed-1": {"name": "The Penal Code 1860", "jurisdiction": "federal", "instrument_type": "act"},
		"fed-2": {"name": "The Evidence Act 1872", "jurisdiction": "federal", "instrument_type": "act"}
	}`)

	result, err := NewEngine(s).ImportPath(context.Background(), path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsNew != 2 {
		t.Errorf("DocumentsNew = %d, want 2", result.DocumentsNew)
	}
	if _, err := s.GetDocument(context.Background(), "fed-1"); err != nil {
		t.Errorf("map key not used as document id: %v", err)
	}
}

func TestImportSingleObject(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "one.json", `{
		"id": "solo",
		"name": "The Limitation Act 1908",
		"jurisdiction": "federal",
		"instrument_type": "act",
		"sections": [{"number": "1", "text": "Short title."}]
	}`)

	result, err := NewEngine(s).ImportPath(context.Background(), path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsNew != 1 {
		t.Fatalf("DocumentsNew = %d, want 1", result.DocumentsNew)
	}
	rec, err := s.GetDocument(context.Background(), "solo")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if rec.Name != "The Limitation Act 1908" {
		t.Errorf("Name = %q", rec.Name)
	}
}

func TestImportAssignsIDWhenMissing(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "noid.json", `[{"name": "The Registration Act 1908", "jurisdiction": "federal", "instrument_type": "act"}]`)

	result, err := NewEngine(s).ImportPath(context.Background(), path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsNew != 1 {
		t.Fatalf("DocumentsNew = %d, want 1", result.DocumentsNew)
	}
	count, err := s.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 1 {
		t.Errorf("stored %d documents, want 1", count)
	}
}

func TestImportUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertDocument(ctx, "d1", map[string]any{"name": "Old Name"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.json", `[{"id": "d1", "name": "New Name", "jurisdiction": "punjab", "instrument_type": "act"}]`)

	result, err := NewEngine(s).ImportPath(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsUpdated != 1 || result.DocumentsNew != 0 {
		t.Errorf("new=%d updated=%d, want 0/1", result.DocumentsNew, result.DocumentsUpdated)
	}
	rec, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if rec.Name != "New Name" {
		t.Errorf("Name = %q, want replacement", rec.Name)
	}
}

func TestImportDirectory(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id": "a1", "name": "Act A", "jurisdiction": "federal", "instrument_type": "act"}]`)
	writeFile(t, dir, "b.json", `[{"id": "b1", "name": "Act B", "jurisdiction": "sindh", "instrument_type": "act"}]`)
	writeFile(t, dir, "notes.txt", "not a corpus file")

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, sub, "c.json", `[{"id": "c1", "name": "Act C", "jurisdiction": "punjab", "instrument_type": "ordinance"}]`)

	// Non-recursive: direct children only.
	result, err := NewEngine(s).ImportPath(context.Background(), dir, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.FilesScanned != 2 || result.DocumentsNew != 2 {
		t.Errorf("non-recursive scanned=%d new=%d, want 2/2", result.FilesScanned, result.DocumentsNew)
	}

	// Recursive picks up the nested file too.
	result, err = NewEngine(s).ImportPath(context.Background(), dir, ImportOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ImportPath recursive: %v", err)
	}
	if result.FilesScanned != 3 {
		t.Errorf("recursive scanned = %d, want 3", result.FilesScanned)
	}
	if _, err := s.GetDocument(context.Background(), "c1"); err != nil {
		t.Errorf("nested document not imported: %v", err)
	}
}

func TestImportInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"name": `)

	result, err := NewEngine(s).ImportPath(context.Background(), path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.FilesSkipped != 1 || len(result.Errors) != 1 {
		t.Errorf("skipped=%d errors=%d, want 1/1", result.FilesSkipped, len(result.Errors))
	}
}

func TestImportDryRun(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.json", `[{"id": "d1", "name": "Act", "jurisdiction": "federal", "instrument_type": "act"}]`)

	result, err := NewEngine(s).ImportPath(context.Background(), path, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if result.DocumentsNew != 1 {
		t.Errorf("DocumentsNew = %d, want 1", result.DocumentsNew)
	}
	count, err := s.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 0 {
		t.Errorf("dry run wrote %d documents", count)
	}
}

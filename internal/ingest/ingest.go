// Package ingest loads raw statute corpora into the document store.
//
// Corpus files are JSON in one of three shapes: a single document object,
// an array of document objects, or a map of document id to object. Array
// and single-object documents take their identifier from an "id" field
// when present; otherwise one is assigned.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/statline/statline/internal/store"
)

// DefaultMaxFileSize is 50MB. Statute corpora ship as one large JSON
// dump per jurisdiction.
const DefaultMaxFileSize = 50 * 1024 * 1024

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned     int
	FilesImported    int
	FilesSkipped     int
	DocumentsNew     int
	DocumentsUpdated int
	Errors           []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.DocumentsNew += other.DocumentsNew
	r.DocumentsUpdated += other.DocumentsUpdated
	r.Errors = append(r.Errors, other.Errors...)
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Message string
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Recursive   bool
	DryRun      bool
	MaxFileSize int64 // bytes, default DefaultMaxFileSize
	ProgressFn  func(current, total int, file string)
}

// Engine imports corpus files into a document store.
type Engine struct {
	store store.Store
}

// NewEngine creates an import engine backed by the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// ImportPath imports a JSON file, or every JSON file under a directory.
func (e *Engine) ImportPath(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return e.importDir(ctx, path, opts)
	}
	result := &ImportResult{}
	e.importFile(ctx, path, opts, result)
	return result, nil
}

func (e *Engine) importDir(ctx context.Context, dir string, opts ImportOptions) (*ImportResult, error) {
	var files []string
	if opts.Recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isJSONFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && isJSONFile(entry.Name()) {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}
	sort.Strings(files)

	result := &ImportResult{}
	for i, file := range files {
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), file)
		}
		e.importFile(ctx, file, opts, result)
	}
	return result, nil
}

func (e *Engine) importFile(ctx context.Context, path string, opts ImportOptions, result *ImportResult) {
	result.FilesScanned++

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if info, err := os.Stat(path); err == nil && info.Size() > maxSize {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{
			File:    path,
			Message: fmt.Sprintf("file exceeds %d bytes, skipped", maxSize),
		})
		return
	}

	docs, err := parseCorpusFile(path)
	if err != nil {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{File: path, Message: err.Error()})
		return
	}

	imported := false
	for _, doc := range docs {
		if opts.DryRun {
			result.DocumentsNew++
			imported = true
			continue
		}
		_, err := e.store.GetDocument(ctx, doc.id)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			result.Errors = append(result.Errors, ImportError{File: path, Message: err.Error()})
			continue
		}
		if err := e.store.UpsertDocument(ctx, doc.id, doc.body); err != nil {
			result.Errors = append(result.Errors, ImportError{File: path, Message: err.Error()})
			continue
		}
		if exists {
			result.DocumentsUpdated++
		} else {
			result.DocumentsNew++
		}
		imported = true
	}
	if imported {
		result.FilesImported++
	} else {
		result.FilesSkipped++
	}
}

type rawDocument struct {
	id   string
	body map[string]any
}

// parseCorpusFile decodes one corpus file into identified documents.
func parseCorpusFile(path string) ([]rawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	// Array of document objects.
	var asArray []map[string]any
	if err := json.Unmarshal(data, &asArray); err == nil {
		docs := make([]rawDocument, 0, len(asArray))
		for _, body := range asArray {
			docs = append(docs, rawDocument{id: documentID(body), body: body})
		}
		return docs, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(data, &asObject); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	// A single document object has field values that are not all objects;
	// a map of id to document has only object values.
	if body, ok := decodeSingleDocument(asObject); ok {
		return []rawDocument{{id: documentID(body), body: body}}, nil
	}

	ids := make([]string, 0, len(asObject))
	for id := range asObject {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]rawDocument, 0, len(ids))
	for _, id := range ids {
		var body map[string]any
		if err := json.Unmarshal(asObject[id], &body); err != nil {
			return nil, fmt.Errorf("invalid document %q in %s: %w", id, path, err)
		}
		docs = append(docs, rawDocument{id: id, body: body})
	}
	return docs, nil
}

func decodeSingleDocument(obj map[string]json.RawMessage) (map[string]any, bool) {
	for _, raw := range obj {
		trimmed := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(trimmed, "{") {
			body := make(map[string]any, len(obj))
			for k, v := range obj {
				var val any
				if err := json.Unmarshal(v, &val); err != nil {
					return nil, false
				}
				body[k] = val
			}
			return body, true
		}
	}
	return nil, false
}

func documentID(body map[string]any) string {
	for _, key := range []string{"id", "ID", "Id"} {
		if v, ok := body[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func isJSONFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// FormatImportResult renders a result for CLI output.
func FormatImportResult(r *ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files scanned:      %d\n", r.FilesScanned)
	fmt.Fprintf(&b, "Files imported:     %d\n", r.FilesImported)
	fmt.Fprintf(&b, "Files skipped:      %d\n", r.FilesSkipped)
	fmt.Fprintf(&b, "Documents new:      %d\n", r.DocumentsNew)
	fmt.Fprintf(&b, "Documents updated:  %d\n", r.DocumentsUpdated)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors:             %d\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s: %s\n", e.File, e.Message)
		}
	}
	return b.String()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

// UpsertDocument stores the raw document body by its identifier, full
// replacement. Header columns are extracted from the body so partition
// scans never parse JSON.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, id string, body map[string]any) error {
	if id == "" {
		return fmt.Errorf("document id is empty")
	}

	blob, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", id, err)
	}

	doc := statute.FromRaw(id, body)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, jurisdiction, instrument_type, enactment_date, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name            = excluded.name,
			jurisdiction    = excluded.jurisdiction,
			instrument_type = excluded.instrument_type,
			enactment_date  = excluded.enactment_date,
			body            = excluded.body,
			updated_at      = CURRENT_TIMESTAMP`,
		id, doc.Name,
		textnorm.NormalizeJurisdiction(doc.Jurisdiction),
		strings.ToLower(strings.TrimSpace(doc.InstrumentType)),
		doc.EnactmentDate, string(blob))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", id, err)
	}
	return nil
}

// GetDocument fetches one document by id; sql.ErrNoRows when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, jurisdiction, instrument_type, enactment_date, body, updated_at
		FROM documents WHERE id = ?`, id)
	return scanRecord(row)
}

// ListDocuments pages through documents, optionally filtered by
// jurisdiction and instrument type. Ordering is by id so pagination is
// stable across calls.
func (s *SQLiteStore) ListDocuments(ctx context.Context, opts ListOpts) ([]*Record, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.pageSize
	}

	query := `SELECT id, name, jurisdiction, instrument_type, enactment_date, body, updated_at
		FROM documents`
	var conds []string
	var args []any
	if opts.Jurisdiction != "" {
		conds = append(conds, "jurisdiction = ?")
		args = append(args, textnorm.NormalizeJurisdiction(opts.Jurisdiction))
	}
	if opts.InstrumentType != "" {
		conds = append(conds, "instrument_type = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(opts.InstrumentType)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountDocuments returns the document count.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// DeleteDocuments removes the identified documents, returning how many
// rows were actually deleted.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	return result.RowsAffected()
}

// DistinctPartitions lists every (jurisdiction, instrument_type) pair with
// its document count, ordered for deterministic iteration.
func (s *SQLiteStore) DistinctPartitions(ctx context.Context) ([]Partition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT jurisdiction, instrument_type, COUNT(*)
		FROM documents
		GROUP BY jurisdiction, instrument_type
		ORDER BY jurisdiction, instrument_type`)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	defer rows.Close()

	var parts []Partition
	for rows.Next() {
		var p Partition
		if err := rows.Scan(&p.Jurisdiction, &p.InstrumentType, &p.Count); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// DocumentsByPartition fetches every document of one partition in stable
// id order.
func (s *SQLiteStore) DocumentsByPartition(ctx context.Context, jurisdiction, instrumentType string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, jurisdiction, instrument_type, enactment_date, body, updated_at
		FROM documents
		WHERE jurisdiction = ? AND instrument_type = ?
		ORDER BY id`,
		textnorm.NormalizeJurisdiction(jurisdiction),
		strings.ToLower(strings.TrimSpace(instrumentType)))
	if err != nil {
		return nil, fmt.Errorf("fetching partition %s/%s: %w", jurisdiction, instrumentType, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var blob string
	if err := row.Scan(&r.ID, &r.Name, &r.Jurisdiction, &r.InstrumentType,
		&r.EnactmentDate, &blob, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &r.Body); err != nil {
		return nil, fmt.Errorf("decoding document %s body: %w", r.ID, err)
	}
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

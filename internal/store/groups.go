package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertGroup stores a lineage group record by group ID, full replacement.
// Re-running a grouping batch is therefore idempotent: last writer wins,
// no incremental merge.
func (s *SQLiteStore) UpsertGroup(ctx context.Context, groupID string, body map[string]any) error {
	if groupID == "" {
		return fmt.Errorf("group id is empty")
	}

	blob, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling group %s: %w", groupID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO statute_groups (group_id, base_name, jurisdiction, instrument_type, original_member_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(group_id) DO UPDATE SET
			base_name          = excluded.base_name,
			jurisdiction       = excluded.jurisdiction,
			instrument_type    = excluded.instrument_type,
			original_member_id = excluded.original_member_id,
			body               = excluded.body,
			updated_at         = CURRENT_TIMESTAMP`,
		groupID,
		stringField(body, "base_name"),
		stringField(body, "jurisdiction"),
		stringField(body, "instrument_type"),
		stringField(body, "original_member_id"),
		string(blob))
	if err != nil {
		return fmt.Errorf("upserting group %s: %w", groupID, err)
	}
	return nil
}

// GetGroup fetches one group body by id; sql.ErrNoRows when absent.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (map[string]any, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM statute_groups WHERE group_id = ?", groupID).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return decodeGroupBody(groupID, blob)
}

// ListGroups pages through group bodies in stable id order.
func (s *SQLiteStore) ListGroups(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, body FROM statute_groups
		ORDER BY group_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	return collectGroupBodies(rows)
}

// SearchGroups finds groups whose base name contains the given substring,
// case-insensitively.
func (s *SQLiteStore) SearchGroups(ctx context.Context, nameSubstring string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, body FROM statute_groups
		WHERE base_name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY base_name LIMIT ?`, nameSubstring, limit)
	if err != nil {
		return nil, fmt.Errorf("searching groups: %w", err)
	}
	defer rows.Close()

	return collectGroupBodies(rows)
}

func collectGroupBodies(rows *sql.Rows) ([]map[string]any, error) {
	var bodies []map[string]any
	for rows.Next() {
		var id, blob string
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		body, err := decodeGroupBody(id, blob)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}

func decodeGroupBody(groupID, blob string) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal([]byte(blob), &body); err != nil {
		return nil, fmt.Errorf("decoding group %s body: %w", groupID, err)
	}
	return body, nil
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

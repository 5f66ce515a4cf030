package statute

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Relation labels a group member's relationship to its lineage.
const (
	RelationOriginal   = "original"
	RelationAmendment  = "amendment"
	RelationOrdinance  = "ordinance"
	RelationRepeal     = "repeal"
	RelationSupplement = "supplement"
	RelationUnknown    = "unknown"
)

// ValidRelation reports whether a relation label is one of the known values.
func ValidRelation(r string) bool {
	switch r {
	case RelationOriginal, RelationAmendment, RelationOrdinance,
		RelationRepeal, RelationSupplement, RelationUnknown:
		return true
	}
	return false
}

// GroupMember wraps a document reference inside a lineage group.
type GroupMember struct {
	DocumentID      string
	Name            string
	Relation        string
	IsOriginal      bool
	SimilarityScore *float64 // [0,1], nil when unscored
	Confidence      *float64 // [0,1], nil when unscored
}

// Group is a lineage cluster: one underlying legal instrument across its
// original, amended, and repealed forms.
type Group struct {
	GroupID          string
	BaseName         string
	Jurisdiction     string
	InstrumentType   string
	OriginalMemberID string
	Members          []GroupMember
	CreatedAt        time.Time
}

// GroupID derives the deterministic group identifier from jurisdiction,
// base name, and instrument type, so reruns upsert rather than duplicate.
func GroupID(jurisdiction, baseName, instrumentType string) string {
	key := strings.ToLower(jurisdiction) + "|" + strings.ToLower(baseName) + "|" + strings.ToLower(instrumentType)
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ToMap serializes the group as plain nested maps for the review surface.
func (g Group) ToMap() map[string]any {
	members := make([]any, 0, len(g.Members))
	for _, m := range g.Members {
		member := map[string]any{
			"document_id": m.DocumentID,
			"name":        m.Name,
			"relation":    m.Relation,
			"is_original": m.IsOriginal,
		}
		if m.SimilarityScore != nil {
			member["similarity_score"] = *m.SimilarityScore
		}
		if m.Confidence != nil {
			member["confidence"] = *m.Confidence
		}
		members = append(members, member)
	}

	return map[string]any{
		"group_id":           g.GroupID,
		"base_name":          g.BaseName,
		"jurisdiction":       g.Jurisdiction,
		"instrument_type":    g.InstrumentType,
		"original_member_id": g.OriginalMemberID,
		"members":            members,
		"created_at":         g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

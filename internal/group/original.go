package group

import (
	"sort"
	"strings"

	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

// ElectOriginal picks the index of the group's original instrument:
// earliest enactment year wins with missing years sorting last, then
// amendment-marked titles sort after plain ones, then input order breaks
// remaining ties so the election is stable.
func ElectOriginal(docs []statute.Document) int {
	type candidate struct {
		idx       int
		year      int
		noYear    bool
		amendment bool
	}

	candidates := make([]candidate, len(docs))
	for i, doc := range docs {
		year := doc.EnactmentYear()
		candidates[i] = candidate{
			idx:       i,
			year:      year,
			noYear:    year == 0,
			amendment: textnorm.HasAmendmentMarker(doc.Name),
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.noYear != cb.noYear {
			return !ca.noYear
		}
		if ca.year != cb.year {
			return ca.year < cb.year
		}
		if ca.amendment != cb.amendment {
			return !ca.amendment
		}
		return ca.idx < cb.idx
	})
	return candidates[0].idx
}

// reElectOriginal re-runs the election over an already-materialized group,
// used after cross-batch merges. Member names stand in for documents; the
// relation and flag move to the new winner, and the previous winner keeps
// its oracle relation when it had one, downgrading to unknown otherwise.
func reElectOriginal(g *statute.Group) {
	docs := make([]statute.Document, len(g.Members))
	for i, m := range g.Members {
		docs[i] = statute.Document{ID: m.DocumentID, Name: m.Name}
	}
	winner := ElectOriginal(docs)

	for i := range g.Members {
		if i == winner {
			continue
		}
		if !g.Members[i].IsOriginal {
			continue
		}
		g.Members[i].IsOriginal = false
		if strings.EqualFold(g.Members[i].Relation, statute.RelationOriginal) {
			g.Members[i].Relation = statute.RelationUnknown
		}
	}
	g.Members[winner].IsOriginal = true
	g.Members[winner].Relation = statute.RelationOriginal
	g.OriginalMemberID = g.Members[winner].DocumentID
}

package group

import (
	"testing"

	"github.com/statline/statline/internal/statute"
)

func TestElectOriginalEarliestYearWins(t *testing.T) {
	docs := []statute.Document{
		doc("d1", "The Companies (Amendment) Act 2017", "federal", "act", "30-May-2017"),
		doc("d2", "The Companies Act 1984", "federal", "act", "08-Oct-1984"),
	}
	if got := ElectOriginal(docs); got != 1 {
		t.Fatalf("ElectOriginal = %d, want 1", got)
	}
}

func TestElectOriginalMissingYearSortsLast(t *testing.T) {
	docs := []statute.Document{
		doc("d1", "The Companies Act", "federal", "act", ""),
		doc("d2", "The Companies Act 1984", "federal", "act", "08-Oct-1984"),
	}
	if got := ElectOriginal(docs); got != 1 {
		t.Fatalf("ElectOriginal = %d, want 1", got)
	}
}

func TestElectOriginalAmendmentMarkerBreaksYearTie(t *testing.T) {
	docs := []statute.Document{
		doc("d1", "The Companies (Amendment) Act 1984", "federal", "act", "01-Dec-1984"),
		doc("d2", "The Companies Act 1984", "federal", "act", "08-Oct-1984"),
	}
	if got := ElectOriginal(docs); got != 1 {
		t.Fatalf("ElectOriginal = %d, want 1", got)
	}
}

func TestElectOriginalInputOrderBreaksRemainingTies(t *testing.T) {
	docs := []statute.Document{
		doc("d1", "The Companies Act 1984", "federal", "act", "08-Oct-1984"),
		doc("d2", "Companies Act 1984", "federal", "act", "08-Oct-1984"),
	}
	if got := ElectOriginal(docs); got != 0 {
		t.Fatalf("ElectOriginal = %d, want 0", got)
	}
}

func TestElectOriginalYearFromTitleWhenDateMissing(t *testing.T) {
	docs := []statute.Document{
		doc("d1", "The Companies Act 2017", "federal", "act", ""),
		doc("d2", "The Companies Act 1984", "federal", "act", ""),
	}
	if got := ElectOriginal(docs); got != 1 {
		t.Fatalf("ElectOriginal = %d, want 1", got)
	}
}

func TestReElectOriginalAfterMerge(t *testing.T) {
	g := &statute.Group{
		OriginalMemberID: "d2",
		Members: []statute.GroupMember{
			{DocumentID: "d1", Name: "The Companies Act 1984", Relation: statute.RelationUnknown},
			{DocumentID: "d2", Name: "The Companies (Amendment) Act 2017", Relation: statute.RelationOriginal, IsOriginal: true},
		},
	}
	reElectOriginal(g)

	if g.OriginalMemberID != "d1" {
		t.Fatalf("OriginalMemberID = %s, want d1", g.OriginalMemberID)
	}
	if !g.Members[0].IsOriginal || g.Members[0].Relation != statute.RelationOriginal {
		t.Fatalf("member 0 = %+v", g.Members[0])
	}
	if g.Members[1].IsOriginal || g.Members[1].Relation != statute.RelationUnknown {
		t.Fatalf("member 1 = %+v", g.Members[1])
	}
}

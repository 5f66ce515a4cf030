package statute

import (
	"sort"
	"strconv"
	"strings"
)

// Sort tiers: preamble first, then numerically-labeled sections, then
// free-text labels.
const (
	tierPreamble = 0
	tierNumeric  = 1
	tierLexical  = 2
)

// SortKey is the deterministic ordering key for a section label.
type SortKey struct {
	Tier int
	Num  float64
	Lex  string
}

// SectionSortKey computes the ordering key for a raw section number.
// Preamble labels sort first, numeric labels sort by value (so "10" comes
// after "2"), and everything else sorts by lowercased label.
func SectionSortKey(number string) SortKey {
	trimmed := strings.TrimSpace(number)
	if IsPreambleLabel(trimmed) {
		return SortKey{Tier: tierPreamble}
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return SortKey{Tier: tierNumeric, Num: n}
	}
	return SortKey{Tier: tierLexical, Lex: strings.ToLower(trimmed)}
}

// Less reports whether k orders strictly before o.
func (k SortKey) Less(o SortKey) bool {
	if k.Tier != o.Tier {
		return k.Tier < o.Tier
	}
	if k.Tier == tierNumeric && k.Num != o.Num {
		return k.Num < o.Num
	}
	return k.Lex < o.Lex
}

// SortSections stably sorts sections by SectionSortKey; ties keep their
// original relative order.
func SortSections(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return SectionSortKey(sections[i].Number).Less(SectionSortKey(sections[j].Number))
	})
}

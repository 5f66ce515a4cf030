package clean

import (
	"context"
	"regexp"
	"strings"

	"github.com/statline/statline/internal/statute"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+|\n+`)

// splitFragments splits normalized text into candidate fragments on
// sentence and newline boundaries, discarding fragments shorter than
// minFragmentLen.
func splitFragments(text string) []string {
	var fragments []string
	for _, piece := range sentenceBoundary.Split(text, -1) {
		piece = strings.TrimSpace(piece)
		if len(piece) >= minFragmentLen {
			fragments = append(fragments, piece)
		}
	}
	return fragments
}

// dedupPreambleFragments removes preamble text repeated in other sections.
// The canonical preamble (first section labeled PREAMBLE) is never altered.
// A section left with empty text by removal is dropped only when it carries
// no other content: a title or extra field keeps it in the sequence with
// the text emptied.
func (e *Engine) dedupPreambleFragments(doc map[string]any, report *Report) {
	items, ok := doc[statute.FieldSections].([]any)
	if !ok || len(items) < 2 {
		return
	}

	preambleIdx := -1
	var fragments []string
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if statute.IsPreambleLabel(stringValue(m[statute.FieldSectionNumber])) {
			preambleIdx = i
			fragments = splitFragments(normalizeText(stringValue(m[statute.FieldSectionText])))
			break
		}
	}
	if preambleIdx < 0 || len(fragments) == 0 {
		return
	}

	ctx := context.Background()
	kept := make([]any, 0, len(items))
	for i, item := range items {
		if i == preambleIdx {
			kept = append(kept, item)
			continue
		}
		m, ok := item.(map[string]any)
		if !ok {
			// Malformed entries pass through unchanged.
			kept = append(kept, item)
			continue
		}

		text := normalizeText(stringValue(m[statute.FieldSectionText]))
		if text == "" {
			kept = append(kept, item)
			continue
		}

		matched := e.matchedFragments(ctx, fragments, text)
		if len(matched) > 0 {
			cleaned := removeFragments(text, matched)
			m[statute.FieldSectionText] = cleaned
			for _, frag := range matched {
				report.Removals = append(report.Removals, Removal{
					SectionIndex: i,
					Field:        statute.FieldSectionText,
					Fragment:     frag,
				})
			}
			if strings.TrimSpace(cleaned) == "" && !sectionHasOtherContent(m) {
				report.DroppedSections = append(report.DroppedSections, i)
				continue
			}
		}
		kept = append(kept, item)
	}
	doc[statute.FieldSections] = kept
}

// sectionHasOtherContent reports whether a section carries content besides
// its number and text, such as a title or a cross-reference list.
func sectionHasOtherContent(m map[string]any) bool {
	for k, v := range m {
		if k == statute.FieldSectionNumber || k == statute.FieldSectionText {
			continue
		}
		switch value := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(value) != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// matchedFragments runs each fragment through the matcher chain, accepting
// on the first matcher that fires.
func (e *Engine) matchedFragments(ctx context.Context, fragments []string, sectionText string) []string {
	var matched []string
	for _, frag := range fragments {
		for _, matcher := range e.matchers {
			if matcher.Matches(ctx, frag, sectionText) {
				matched = append(matched, frag)
				break
			}
		}
	}
	return matched
}

// removeFragments deletes all matched fragments from text via a single
// compiled case-insensitive alternation, capped at maxPatternLen to avoid
// pathological compilation, then re-collapses whitespace.
func removeFragments(text string, fragments []string) string {
	quoted := make([]string, 0, len(fragments))
	total := 0
	for _, frag := range fragments {
		q := regexp.QuoteMeta(frag)
		if total+len(q) > maxPatternLen {
			break
		}
		quoted = append(quoted, q)
		total += len(q)
	}
	if len(quoted) == 0 {
		return text
	}

	pattern, err := regexp.Compile(`(?i)(` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return text
	}
	return normalizeText(pattern.ReplaceAllString(text, ""))
}

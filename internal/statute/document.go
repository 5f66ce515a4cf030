// Package statute defines the document shapes that flow through the
// pipeline and the section ordering policy.
//
// Documents arrive from the scraper as schemaless key-value maps. The
// cleaning stage operates on that raw map shape; later stages (validation,
// dates, grouping) consume the typed Document view built at the boundary by
// FromRaw. Unrecognized fields ride along in the Extra bag so no source
// data is lost between stages.
package statute

import (
	"fmt"
	"strings"
	"time"

	"github.com/statline/statline/internal/textnorm"
)

// PreambleNumber is the reserved section label meaning "comes first".
// Matching is case-insensitive on the trimmed label.
const PreambleNumber = "PREAMBLE"

// DateLayout is the canonical date format used by every date-bearing field
// the pipeline emits: two-digit day, three-letter month, four-digit year.
const DateLayout = "02-Jan-2006"

// Raw document field names recognized at the boundary.
const (
	FieldName          = "name"
	FieldJurisdiction  = "jurisdiction"
	FieldProvince      = "Province"
	FieldType          = "instrument_type"
	FieldDate          = "Date"
	FieldPromulgation  = "Promulgation_Date"
	FieldSections      = "sections"
	FieldMetadata      = "metadata"
	FieldSectionNumber = "number"
	FieldSectionTitle  = "title"
	FieldSectionText   = "text"
)

// Section is one subdivision of a statute.
type Section struct {
	Number string
	Title  string
	Text   string
	Extra  map[string]any
}

// IsPreamble reports whether the section carries the reserved preamble label.
func (s Section) IsPreamble() bool {
	return IsPreambleLabel(s.Number)
}

// IsPreambleLabel reports whether a raw section number is the preamble
// sentinel, case-insensitively on the trimmed value.
func IsPreambleLabel(number string) bool {
	return strings.EqualFold(strings.TrimSpace(number), PreambleNumber)
}

// Document is the typed view of one legal instrument.
type Document struct {
	ID             string
	Name           string
	Jurisdiction   string
	InstrumentType string
	EnactmentDate  string // canonical DateLayout form, or empty
	Sections       []Section
	Metadata       map[string]any
	Extra          map[string]any
}

// EnactmentYear returns the year of the canonical enactment date, falling
// back to a year token in the title, or 0 when neither is available.
func (d Document) EnactmentYear() int {
	if d.EnactmentDate != "" {
		if t, err := time.Parse(DateLayout, d.EnactmentDate); err == nil {
			return t.Year()
		}
	}
	return textnorm.TitleYear(d.Name)
}

// PreambleText returns the text of the canonical preamble (first section
// labeled PREAMBLE), or "" if the document has none.
func (d Document) PreambleText() string {
	for _, s := range d.Sections {
		if s.IsPreamble() {
			return s.Text
		}
	}
	return ""
}

// FromRaw builds the typed Document view from a raw map-shaped document.
// Missing or malformed fields become zero values; unrecognized document
// fields land in Extra. The raw map is not mutated.
func FromRaw(id string, raw map[string]any) Document {
	doc := Document{
		ID:       id,
		Extra:    make(map[string]any),
		Metadata: make(map[string]any),
	}

	var jurisdiction, province string
	for key, value := range raw {
		switch key {
		case FieldName:
			doc.Name = asString(value)
		case FieldJurisdiction:
			jurisdiction = strings.TrimSpace(asString(value))
		case FieldProvince:
			province = strings.TrimSpace(asString(value))
		case FieldType:
			doc.InstrumentType = strings.TrimSpace(asString(value))
		case FieldDate:
			doc.EnactmentDate = asString(value)
		case FieldSections:
			doc.Sections = sectionsFromRaw(value)
		case FieldMetadata:
			if m, ok := value.(map[string]any); ok {
				for mk, mv := range m {
					doc.Metadata[mk] = mv
				}
			}
		default:
			doc.Extra[key] = value
		}
	}

	// The jurisdiction field wins over province whenever both carry a
	// value; province is the fallback for documents that only name one.
	if jurisdiction == "" {
		jurisdiction = province
	}
	doc.Jurisdiction = textnorm.NormalizeJurisdiction(jurisdiction)
	return doc
}

// ToMap serializes the document as plain nested maps and slices of
// primitives for the review/export surface.
func (d Document) ToMap() map[string]any {
	sections := make([]any, 0, len(d.Sections))
	for _, s := range d.Sections {
		sec := map[string]any{
			FieldSectionNumber: s.Number,
			FieldSectionText:   s.Text,
		}
		if s.Title != "" {
			sec[FieldSectionTitle] = s.Title
		}
		for k, v := range s.Extra {
			sec[k] = v
		}
		sections = append(sections, sec)
	}

	out := map[string]any{
		"id":             d.ID,
		FieldName:        d.Name,
		FieldJurisdiction: d.Jurisdiction,
		FieldType:        d.InstrumentType,
		FieldSections:    sections,
	}
	if d.EnactmentDate != "" {
		out[FieldDate] = d.EnactmentDate
	}
	if len(d.Metadata) > 0 {
		out[FieldMetadata] = d.Metadata
	}
	for k, v := range d.Extra {
		out[k] = v
	}
	return out
}

func sectionsFromRaw(value any) []Section {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	sections := make([]Section, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			// Malformed entries are tolerated upstream; here they simply
			// cannot contribute a typed section.
			continue
		}
		sec := Section{Extra: make(map[string]any)}
		for k, v := range m {
			switch k {
			case FieldSectionNumber:
				sec.Number = asString(v)
			case FieldSectionTitle:
				sec.Title = asString(v)
			case FieldSectionText:
				sec.Text = asString(v)
			default:
				sec.Extra[k] = v
			}
		}
		sections = append(sections, sec)
	}
	return sections
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", s)
	}
}

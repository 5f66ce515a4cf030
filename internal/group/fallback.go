package group

import (
	"strings"

	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

// clusterByRule is the deterministic fallback: documents cluster when
// their extracted base name, jurisdiction, and instrument type all agree.
// Non-amendment titles anchor lineages under their year-preserving key;
// amendment-titled documents carry their own year, so they join the
// lineage whose year-stripped base name matches (the first anchoring
// original in batch order wins). Documents the normalizer cannot name
// stay singletons rather than collapsing into one catch-all group.
func clusterByRule(batch []statute.Document) []cluster {
	byKey := make(map[string][]int)
	var order []string

	assign := func(key string, i int) {
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	lineages := make(map[string]string)
	for i, doc := range batch {
		if textnorm.HasAmendmentMarker(doc.Name) {
			continue
		}
		key := ruleKey(doc)
		if key == "" {
			assign(singletonKey(doc), i)
			continue
		}
		assign(key, i)
		if stem := stemKey(doc); stem != "" {
			if _, ok := lineages[stem]; !ok {
				lineages[stem] = key
			}
		}
	}

	for i, doc := range batch {
		if !textnorm.HasAmendmentMarker(doc.Name) {
			continue
		}
		if stem := stemKey(doc); stem != "" {
			if key, ok := lineages[stem]; ok {
				assign(key, i)
				continue
			}
		}
		key := ruleKey(doc)
		if key == "" {
			key = singletonKey(doc)
		}
		assign(key, i)
	}

	clusters := make([]cluster, 0, len(order))
	for _, key := range order {
		clusters = append(clusters, cluster{indices: byKey[key]})
	}
	return clusters
}

// ruleKey returns the equality key for the rule pass, or "" when the base
// name is unknown.
func ruleKey(doc statute.Document) string {
	baseName := textnorm.ExtractBaseName(doc.Name)
	if baseName == textnorm.UnknownName {
		return ""
	}
	return strings.ToLower(baseName) + "|" + partitionSuffix(doc)
}

// stemKey is ruleKey with year tokens stripped from the base name, or ""
// when nothing survives the stripping.
func stemKey(doc statute.Document) string {
	baseName := textnorm.ExtractBaseName(doc.Name)
	if baseName == textnorm.UnknownName {
		return ""
	}
	stem := textnorm.StripYearTokens(baseName)
	if stem == "" {
		return ""
	}
	return strings.ToLower(stem) + "|" + partitionSuffix(doc)
}

func partitionSuffix(doc statute.Document) string {
	jurisdiction := textnorm.NormalizeJurisdiction(doc.Jurisdiction)
	instrumentType := strings.ToLower(strings.TrimSpace(doc.InstrumentType))
	return jurisdiction + "|" + instrumentType
}

// singletonKey gives an unnameable document a per-document cluster key.
func singletonKey(doc statute.Document) string {
	return "\x00singleton\x00" + doc.ID
}

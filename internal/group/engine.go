// Package group clusters statute documents into lineage groups: one
// original instrument plus its amendments, ordinances, repeals, and
// supplements. An oracle proposes clusters batch by batch; a
// deterministic rule pass covers every batch the oracle cannot.
package group

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/statline/statline/internal/llm"
	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/textnorm"
)

const (
	// DefaultBatchSize bounds how many documents share one oracle call.
	DefaultBatchSize = 40

	// DefaultMaxRetries for each oracle batch before falling back.
	DefaultMaxRetries = 2

	// oracleTimeout per batch.
	oracleTimeout = 120 * time.Second

	// Snippet budgets for the per-document prompt entries.
	preambleBudget = 600
	sectionBudget  = 400
	sectionCount   = 3
)

const groupSystemPrompt = `You cluster legal statutes into lineage groups. A lineage group is one original instrument plus every later instrument that amends, repeals, supplements, or re-promulgates it.

Rules:
- NEVER place statutes from different jurisdictions in the same group.
- Group by legal lineage, not topic: "The Companies Act 1984" and "The Companies (Amendment) Act 2017" belong together; two unrelated acts about companies do not.
- Titles may differ in spelling or word order while naming the same instrument; judge semantic equivalence.
- Every document index must appear in exactly one group; a document with no relatives forms a singleton group.

Return ONLY a JSON object:
{
  "groups": [[0, 2], [1]],
  "relations": {"0": {"relation": "original", "confidence": 0.95}, "2": {"relation": "amendment", "confidence": 0.9}},
  "similarities": {"2": 0.93}
}

Valid relations: original, amendment, ordinance, repeal, supplement, unknown.`

// oracleGrouping is the expected JSON response for one batch.
type oracleGrouping struct {
	Groups       [][]int                   `json:"groups"`
	Relations    map[string]oracleRelation `json:"relations"`
	Similarities map[string]float64        `json:"similarities"`
}

type oracleRelation struct {
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// Engine clusters documents into lineage groups.
type Engine struct {
	oracle     llm.Provider
	batchSize  int
	maxRetries int
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize overrides the oracle batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMaxRetries overrides the per-batch oracle retry count.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. A nil oracle downgrades every batch to the
// rule pass.
func NewEngine(oracle llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		oracle:     oracle,
		batchSize:  DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result reports one grouping run. OracleFailures counts batches where
// the oracle was consulted but its answer was unusable; those batches are
// also counted in RuleBatches since the rule pass resolved them.
type Result struct {
	Groups         []statute.Group
	OracleBatches  int
	RuleBatches    int
	OracleFailures int
}

// GroupDocuments clusters the documents into lineage groups. Documents are
// partitioned by normalized jurisdiction plus instrument type up front, so
// no oracle answer can ever merge across jurisdictions. Groups sharing a
// group ID across batches are merged and the original re-elected.
//
// The stop callback (nil = never stop) is checked between batches only; a
// batch already submitted to the oracle runs to completion, and the
// partial result accumulated so far is returned.
func (e *Engine) GroupDocuments(ctx context.Context, docs []statute.Document, stop func() bool) (*Result, error) {
	result := &Result{}
	merged := make(map[string]*statute.Group)
	var order []string

	for _, part := range partitionDocuments(docs) {
		for start := 0; start < len(part); start += e.batchSize {
			if stop != nil && stop() {
				return collectGroups(result, merged, order), nil
			}
			if err := ctx.Err(); err != nil {
				return collectGroups(result, merged, order), err
			}

			end := start + e.batchSize
			if end > len(part) {
				end = len(part)
			}
			batch := part[start:end]

			clusters, fromOracle, oracleFailed := e.clusterBatch(ctx, batch)
			if fromOracle {
				result.OracleBatches++
			} else {
				result.RuleBatches++
			}
			if oracleFailed {
				result.OracleFailures++
			}

			for _, g := range e.materialize(batch, clusters) {
				existing, ok := merged[g.GroupID]
				if !ok {
					copied := g
					merged[g.GroupID] = &copied
					order = append(order, g.GroupID)
					continue
				}
				existing.Members = append(existing.Members, g.Members...)
				reElectOriginal(existing)
			}
		}
	}

	return collectGroups(result, merged, order), ctx.Err()
}

func collectGroups(result *Result, merged map[string]*statute.Group, order []string) *Result {
	for _, id := range order {
		result.Groups = append(result.Groups, *merged[id])
	}
	return result
}

// cluster pairs batch-local document indices with their oracle-assigned
// relation metadata. Rule-pass clusters carry no metadata.
type cluster struct {
	indices   []int
	relations map[int]oracleRelation
	scores    map[int]float64
}

// clusterBatch proposes clusters for one batch: oracle when available and
// well-formed, rule pass otherwise. The first bool reports whether the
// oracle answer was used; the second reports an oracle attempt that failed.
func (e *Engine) clusterBatch(ctx context.Context, batch []statute.Document) ([]cluster, bool, bool) {
	if e.oracle == nil || len(batch) < 2 {
		return clusterByRule(batch), false, false
	}

	callCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	resp, err := llm.CompleteWithRetry(callCtx, e.oracle, buildBatchPrompt(batch), llm.CompletionOpts{
		System:      groupSystemPrompt,
		Temperature: 0,
		MaxTokens:   4096,
		Format:      "json",
	}, e.maxRetries)
	if err != nil {
		return clusterByRule(batch), false, true
	}

	clusters, err := parseOracleGrouping(resp, len(batch))
	if err != nil {
		return clusterByRule(batch), false, true
	}
	return clusters, true, false
}

// buildBatchPrompt renders one numbered entry per document: title,
// jurisdiction, type, year, and a bounded excerpt.
func buildBatchPrompt(batch []statute.Document) string {
	var sb strings.Builder
	sb.WriteString("Cluster these statutes into lineage groups. Return JSON only.\n\n")
	for i, doc := range batch {
		fmt.Fprintf(&sb, "[%d] %s\n", i, doc.Name)
		fmt.Fprintf(&sb, "    jurisdiction: %s | type: %s", doc.Jurisdiction, doc.InstrumentType)
		if year := doc.EnactmentYear(); year > 0 {
			fmt.Fprintf(&sb, " | year: %d", year)
		}
		sb.WriteString("\n")
		if excerpt := buildExcerpt(doc); excerpt != "" {
			fmt.Fprintf(&sb, "    excerpt: %s\n", excerpt)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildExcerpt takes the preamble plus the first few sections, each
// clipped to its budget.
func buildExcerpt(doc statute.Document) string {
	var parts []string
	if preamble := doc.PreambleText(); preamble != "" {
		parts = append(parts, clip(preamble, preambleBudget))
	}
	taken := 0
	for _, sec := range doc.Sections {
		if taken >= sectionCount {
			break
		}
		if statute.IsPreambleLabel(sec.Number) || sec.Text == "" {
			continue
		}
		parts = append(parts, clip(sec.Text, sectionBudget))
		taken++
	}
	return strings.Join(parts, " ")
}

func clip(s string, n int) string {
	s = textnorm.CollapseWhitespace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseOracleGrouping decodes and validates the oracle's answer against
// the batch. Any defect rejects the whole answer: the caller falls back to
// the rule pass rather than trusting a half-valid clustering.
func parseOracleGrouping(resp string, batchLen int) ([]cluster, error) {
	var parsed oracleGrouping
	if err := json.Unmarshal([]byte(llm.StripFences(resp)), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(parsed.Groups) == 0 {
		return nil, fmt.Errorf("no groups in response")
	}

	seen := make(map[int]bool, batchLen)
	for _, g := range parsed.Groups {
		for _, idx := range g {
			if idx < 0 || idx >= batchLen {
				return nil, fmt.Errorf("index %d out of range 0..%d", idx, batchLen-1)
			}
			if seen[idx] {
				return nil, fmt.Errorf("index %d assigned twice", idx)
			}
			seen[idx] = true
		}
	}

	relations := make(map[int]oracleRelation, len(parsed.Relations))
	for key, rel := range parsed.Relations {
		idx, err := parseIndexKey(key, batchLen)
		if err != nil {
			return nil, err
		}
		if !statute.ValidRelation(rel.Relation) {
			return nil, fmt.Errorf("index %d: unknown relation %q", idx, rel.Relation)
		}
		if rel.Confidence < 0 || rel.Confidence > 1 {
			return nil, fmt.Errorf("index %d: confidence %.2f out of range", idx, rel.Confidence)
		}
		relations[idx] = rel
	}

	scores := make(map[int]float64, len(parsed.Similarities))
	for key, score := range parsed.Similarities {
		idx, err := parseIndexKey(key, batchLen)
		if err != nil {
			return nil, err
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("index %d: similarity %.2f out of range", idx, score)
		}
		scores[idx] = score
	}

	var clusters []cluster
	for _, g := range parsed.Groups {
		if len(g) == 0 {
			continue
		}
		clusters = append(clusters, cluster{indices: g, relations: relations, scores: scores})
	}

	// Indices the oracle dropped become singletons rather than vanishing.
	for idx := 0; idx < batchLen; idx++ {
		if !seen[idx] {
			clusters = append(clusters, cluster{indices: []int{idx}, relations: relations, scores: scores})
		}
	}
	return clusters, nil
}

func parseIndexKey(key string, batchLen int) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(key, "%d", &idx); err != nil {
		return 0, fmt.Errorf("non-numeric index key %q", key)
	}
	if idx < 0 || idx >= batchLen {
		return 0, fmt.Errorf("index key %d out of range 0..%d", idx, batchLen-1)
	}
	return idx, nil
}

// materialize turns batch-local clusters into lineage groups: base name
// from the elected original, deterministic group ID, forced original
// relation on the winner.
func (e *Engine) materialize(batch []statute.Document, clusters []cluster) []statute.Group {
	groups := make([]statute.Group, 0, len(clusters))
	for _, c := range clusters {
		members := make([]statute.GroupMember, 0, len(c.indices))
		docs := make([]statute.Document, 0, len(c.indices))
		for _, idx := range c.indices {
			doc := batch[idx]
			docs = append(docs, doc)
			member := statute.GroupMember{
				DocumentID: doc.ID,
				Name:       doc.Name,
				Relation:   statute.RelationUnknown,
			}
			if rel, ok := c.relations[idx]; ok {
				member.Relation = rel.Relation
				conf := rel.Confidence
				member.Confidence = &conf
			}
			if score, ok := c.scores[idx]; ok {
				s := score
				member.SimilarityScore = &s
			}
			members = append(members, member)
		}

		winner := ElectOriginal(docs)
		members[winner].Relation = statute.RelationOriginal
		members[winner].IsOriginal = true

		baseName := textnorm.ExtractBaseName(docs[winner].Name)
		jurisdiction := textnorm.NormalizeJurisdiction(docs[winner].Jurisdiction)
		instrumentType := strings.ToLower(strings.TrimSpace(docs[winner].InstrumentType))

		groups = append(groups, statute.Group{
			GroupID:          statute.GroupID(jurisdiction, baseName, instrumentType),
			BaseName:         baseName,
			Jurisdiction:     jurisdiction,
			InstrumentType:   instrumentType,
			OriginalMemberID: docs[winner].ID,
			Members:          members,
			CreatedAt:        e.now().UTC(),
		})
	}
	return groups
}

// partitionDocuments splits documents on normalized jurisdiction plus
// lowercased instrument type, preserving input order within each partition
// and a stable partition order across runs.
func partitionDocuments(docs []statute.Document) [][]statute.Document {
	byKey := make(map[string][]statute.Document)
	var keys []string
	for _, doc := range docs {
		key := textnorm.NormalizeJurisdiction(doc.Jurisdiction) + "|" +
			strings.ToLower(strings.TrimSpace(doc.InstrumentType))
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], doc)
	}
	sort.Strings(keys)

	parts := make([][]statute.Document, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, byKey[key])
	}
	return parts
}

// Package pipeline orchestrates the statline phases over the document
// store: cleaning, jurisdiction validation, date enrichment, and lineage
// grouping. Each phase pages through the store in batches, isolates
// per-document failures, and honors a stop flag between batches.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/statline/statline/internal/clean"
	"github.com/statline/statline/internal/dates"
	"github.com/statline/statline/internal/group"
	"github.com/statline/statline/internal/observe"
	"github.com/statline/statline/internal/scope"
	"github.com/statline/statline/internal/statute"
	"github.com/statline/statline/internal/store"
)

// DefaultPageSize is how many documents each phase pulls per store read.
const DefaultPageSize = 200

// Job tracks one pipeline run. A Job is created per phase invocation and
// carries the stop flag the phase checks between batches; a batch already
// in flight runs to completion before a stop is honored.
type Job struct {
	ID        string
	Phase     string
	StartedAt time.Time

	stopped atomic.Bool
}

// NewJob creates a Job for the named phase.
func NewJob(phase string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Phase:     phase,
		StartedAt: time.Now().UTC(),
	}
}

// Stop requests that the job halt at the next batch boundary.
func (j *Job) Stop() { j.stopped.Store(true) }

// Stopped reports whether a stop was requested.
func (j *Job) Stopped() bool { return j.stopped.Load() }

// Progress is reported after every batch.
type Progress struct {
	Job       string
	Phase     string
	Processed int
	Failed    int
}

// PhaseReport summarizes one completed phase.
type PhaseReport struct {
	Job       string
	Phase     string
	Processed int
	Failed    int
	Errors    []error

	// Phase-specific counters.
	Rejected  int // validate: documents out of scope
	Purged    int // validate: documents deleted
	Enriched  int // dates: canonical date set
	Recovered int // dates: dates filled by the recovery pass
	Groups    int // group: group records upserted
	Fallbacks int // group: batches resolved by the rule pass
}

// Runner wires the phase engines to the store.
type Runner struct {
	store     store.Store
	cleaner   *clean.Engine
	validator *scope.Validator
	enricher  *dates.Enricher
	recoverer *dates.Recoverer
	grouper   *group.Engine
	metrics   *observe.Metrics
	pageSize  int
	progress  func(Progress)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPageSize overrides the per-batch document count.
func WithPageSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithProgress installs a per-batch progress callback.
func WithProgress(fn func(Progress)) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// WithMetrics installs pipeline counters.
func WithMetrics(m *observe.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner. Any engine may be nil except the cleaner;
// phases whose engine is nil fail fast when invoked.
func NewRunner(s store.Store, cleaner *clean.Engine, validator *scope.Validator,
	enricher *dates.Enricher, recoverer *dates.Recoverer, grouper *group.Engine,
	opts ...RunnerOption) *Runner {
	r := &Runner{
		store:     s,
		cleaner:   cleaner,
		validator: validator,
		enricher:  enricher,
		recoverer: recoverer,
		grouper:   grouper,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CleanAll runs the cleaning phase over every stored document and upserts
// each cleaned body back under its original identifier.
func (r *Runner) CleanAll(ctx context.Context, job *Job) (*PhaseReport, error) {
	if r.cleaner == nil {
		return nil, fmt.Errorf("no cleaning engine configured")
	}
	report := &PhaseReport{Job: job.ID, Phase: job.Phase}

	err := r.forEachBatch(ctx, job, report, func(rec *store.Record) error {
		cleaned, audit := r.cleaner.Clean(rec.Body)
		if err := r.store.UpsertDocument(ctx, rec.ID, cleaned); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.DocumentsCleaned.Inc()
			r.metrics.SectionsDropped.Add(float64(len(audit.DroppedSections)))
			r.metrics.FragmentsRemoved.Add(float64(len(audit.Removals)))
		}
		return nil
	})
	return report, err
}

// ValidateAll runs jurisdiction validation. Validation is advisory: it
// never deletes by itself, and only removes out-of-scope documents when
// purge is set.
func (r *Runner) ValidateAll(ctx context.Context, job *Job, purge bool) (*PhaseReport, error) {
	if r.validator == nil {
		return nil, fmt.Errorf("no validator configured")
	}
	report := &PhaseReport{Job: job.ID, Phase: job.Phase}
	var rejected []string

	err := r.forEachBatch(ctx, job, report, func(rec *store.Record) error {
		doc := statute.FromRaw(rec.ID, rec.Body)
		inScope, _ := r.validator.Validate(ctx, doc)
		if !inScope {
			rejected = append(rejected, rec.ID)
			if r.metrics != nil {
				r.metrics.DocumentsRejected.Inc()
			}
		}
		return nil
	})
	report.Rejected = len(rejected)
	if err != nil {
		return report, err
	}

	if purge && len(rejected) > 0 {
		n, err := r.store.DeleteDocuments(ctx, rejected)
		if err != nil {
			return report, fmt.Errorf("purging out-of-scope documents: %w", err)
		}
		report.Purged = int(n)
	}
	return report, nil
}

// EnrichDates runs the date merge pass over every document, optionally
// followed by the recovery pass for documents whose date is still empty.
func (r *Runner) EnrichDates(ctx context.Context, job *Job, recover bool) (*PhaseReport, error) {
	if r.enricher == nil {
		return nil, fmt.Errorf("no date enricher configured")
	}
	report := &PhaseReport{Job: job.ID, Phase: job.Phase}

	err := r.forEachBatch(ctx, job, report, func(rec *store.Record) error {
		enriched := r.enricher.Enrich(rec.Body)

		date, _ := enriched[statute.FieldDate].(string)
		if date != "" {
			report.Enriched++
			if r.metrics != nil {
				r.metrics.DatesEnriched.Inc()
			}
		} else if recover && r.recoverer != nil {
			doc := statute.FromRaw(rec.ID, enriched)
			found := r.recoverer.ExtractDate(ctx, doc.Name, dates.SnippetFor(doc))
			if !found.Empty() {
				enriched[statute.FieldDate] = found.Date
				if meta, ok := enriched[dates.MetadataKey].(map[string]any); ok {
					meta["method"] = found.Source
					meta["confidence"] = found.Confidence
					meta["recovery_method"] = found.Method
				}
				report.Recovered++
				if r.metrics != nil {
					r.metrics.DatesRecovered.Inc()
				}
			}
		}

		return r.store.UpsertDocument(ctx, rec.ID, enriched)
	})
	return report, err
}

// GroupAll runs lineage grouping partition by partition, upserting every
// produced group record by its group ID (full replacement).
func (r *Runner) GroupAll(ctx context.Context, job *Job) (*PhaseReport, error) {
	if r.grouper == nil {
		return nil, fmt.Errorf("no grouping engine configured")
	}
	report := &PhaseReport{Job: job.ID, Phase: job.Phase}

	partitions, err := r.store.DistinctPartitions(ctx)
	if err != nil {
		return report, fmt.Errorf("listing partitions: %w", err)
	}

	for _, part := range partitions {
		if job.Stopped() {
			break
		}

		records, err := r.store.DocumentsByPartition(ctx, part.Jurisdiction, part.InstrumentType)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("partition %s/%s: %w", part.Jurisdiction, part.InstrumentType, err))
			continue
		}

		docs := make([]statute.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, statute.FromRaw(rec.ID, rec.Body))
		}

		result, err := r.grouper.GroupDocuments(ctx, docs, job.Stopped)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("grouping %s/%s: %w", part.Jurisdiction, part.InstrumentType, err))
			continue
		}
		report.Fallbacks += result.RuleBatches
		if r.metrics != nil {
			r.metrics.OracleCalls.Add(float64(result.OracleBatches + result.OracleFailures))
			r.metrics.OracleFailures.Add(float64(result.OracleFailures))
			r.metrics.FallbackGroupings.Add(float64(result.RuleBatches))
		}

		for _, g := range result.Groups {
			if err := r.store.UpsertGroup(ctx, g.GroupID, g.ToMap()); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Errorf("upserting group %s: %w", g.GroupID, err))
				continue
			}
			report.Groups++
			if r.metrics != nil {
				r.metrics.GroupsUpserted.Inc()
			}
		}
		report.Processed += len(docs)
		r.reportProgress(job, report)
	}
	return report, ctx.Err()
}

// forEachBatch pages through every document, applying fn per document.
// A failing document is recorded and skipped, never fatal to the batch.
// The job stop flag is honored between batches only.
func (r *Runner) forEachBatch(ctx context.Context, job *Job, report *PhaseReport, fn func(*store.Record) error) error {
	offset := 0
	for {
		if job.Stopped() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := r.store.ListDocuments(ctx, store.ListOpts{Limit: r.pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("listing documents at offset %d: %w", offset, err)
		}
		if len(records) == 0 {
			return nil
		}

		for _, rec := range records {
			if err := fn(rec); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Errorf("document %s: %w", rec.ID, err))
				continue
			}
			report.Processed++
		}
		r.reportProgress(job, report)

		offset += len(records)
	}
}

func (r *Runner) reportProgress(job *Job, report *PhaseReport) {
	if r.progress == nil {
		return
	}
	r.progress(Progress{
		Job:       job.ID,
		Phase:     job.Phase,
		Processed: report.Processed,
		Failed:    report.Failed,
	})
}

// Package observe holds the pipeline's Prometheus counters. Metrics are
// registered against an injectable Registerer so tests can use private
// registries.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter the pipeline increments.
type Metrics struct {
	DocumentsCleaned  prometheus.Counter
	SectionsDropped   prometheus.Counter
	FragmentsRemoved  prometheus.Counter
	DocumentsRejected prometheus.Counter
	DatesEnriched     prometheus.Counter
	DatesRecovered    prometheus.Counter
	OracleCalls       prometheus.Counter
	OracleFailures    prometheus.Counter
	FallbackGroupings prometheus.Counter
	GroupsUpserted    prometheus.Counter
}

// NewMetrics registers the pipeline counters on reg. Pass
// prometheus.DefaultRegisterer for production or a fresh
// prometheus.NewRegistry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_documents_cleaned_total",
			Help: "Documents processed by the cleaning phase.",
		}),
		SectionsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_sections_dropped_total",
			Help: "Sections emptied by dedup and dropped from documents.",
		}),
		FragmentsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_fragments_removed_total",
			Help: "Duplicated preamble fragments removed from sections.",
		}),
		DocumentsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_documents_rejected_total",
			Help: "Documents flagged out of scope by jurisdiction validation.",
		}),
		DatesEnriched: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_dates_enriched_total",
			Help: "Documents whose canonical date was set by the merge pass.",
		}),
		DatesRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_dates_recovered_total",
			Help: "Dates filled in by the opt-in recovery pass.",
		}),
		OracleCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_oracle_calls_total",
			Help: "Calls made to the external reasoning oracle.",
		}),
		OracleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_oracle_failures_total",
			Help: "Oracle calls that failed or returned unusable output.",
		}),
		FallbackGroupings: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_fallback_groupings_total",
			Help: "Grouping batches resolved by the rule-based fallback.",
		}),
		GroupsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "statline_groups_upserted_total",
			Help: "Lineage group records written to the store.",
		}),
	}
}

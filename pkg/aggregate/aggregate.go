// Package aggregate rolls classified badges up into per-profile counts.
package aggregate

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/classify"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/metrics"
)

// parallelThreshold is the record count above which classification fans out.
const parallelThreshold = 256

// Aggregate is the per-participant rollup.
// Counts[c] >= MilestoneCounts[c] holds for every category.
type Aggregate struct {
	Counts          badge.Counts   `json:"counts"`
	MilestoneCounts badge.Counts   `json:"milestoneEligibleCounts"`
	Details         *badge.Details `json:"badgeDetails,omitempty"`
}

// Aggregator classifies and tallies badge records.
type Aggregator struct {
	classifier *classify.Classifier
	metrics    *metrics.Metrics
	details    bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDetails retains classified badges grouped by category.
func WithDetails() Option {
	return func(a *Aggregator) { a.details = true }
}

// WithMetrics counts classified badges by category.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New creates an Aggregator.
func New(c *classify.Classifier, opts ...Option) *Aggregator {
	a := &Aggregator{classifier: c}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate classifies every record and tallies the results. Records are
// independent, so large pages are classified concurrently; the tally and the
// detail lists follow extraction order regardless.
func (a *Aggregator) Aggregate(records []badge.Record) Aggregate {
	results := a.classifyAll(records)

	var agg Aggregate
	if a.details {
		agg.Details = badge.NewDetails()
	}
	for i, res := range results {
		a.metrics.BadgeClassified(res.Category.String())
		if res.Category == badge.None {
			continue
		}
		agg.Counts.Add(res.Category)
		if res.CountsForMilestone {
			agg.MilestoneCounts.Add(res.Category)
		}
		if agg.Details != nil {
			agg.Details.Append(badge.Detail{
				Name:               records[i].Title,
				Type:               res.Category,
				EarnedDate:         records[i].EarnedDateText,
				CountsForMilestone: res.CountsForMilestone,
			})
		}
	}
	return agg
}

func (a *Aggregator) classifyAll(records []badge.Record) []badge.Classification {
	results := make([]badge.Classification, len(records))
	if len(records) < parallelThreshold {
		for i, rec := range records {
			results[i] = a.classifier.Classify(rec)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		g.Go(func() error {
			results[i] = a.classifier.Classify(records[i])
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail
	return results
}

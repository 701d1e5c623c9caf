// Package leaderboard scores a roster of participants in sequential,
// bounded-width batches and ranks the results.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/aggregate"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/classify"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/extract"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/fetch"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/metrics"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/roster"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/score"
)

// Defaults for batching.
const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 500 * time.Millisecond
)

var (
	// ErrEmptyRoster is returned when there is nobody to score.
	ErrEmptyRoster = errors.New("roster has no participants")
	// ErrBatchFailed is returned when every participant with a profile URL failed.
	ErrBatchFailed = errors.New("no profile could be fetched")
)

// Fetcher retrieves a profile page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RuleSource yields the current rule set. *rules.Store implements it.
type RuleSource interface {
	Load() *rules.Rules
}

// Row is one ranked participant. Display counts are taken from the
// milestone-eligible subset; ArcadeCount is the combined arcade count.
type Row struct {
	Name            string       `json:"name"`
	URL             string       `json:"profileUrl"`
	SkillCount      int          `json:"skillCount"`
	ArcadeCount     int          `json:"arcadeCount"`
	TriviaCount     int          `json:"triviaCount"`
	ExtraCount      int          `json:"extraCount"`
	Counts          badge.Counts `json:"counts"`
	MilestoneCounts badge.Counts `json:"milestoneEligibleCounts"`
	score.Result
	Error string `json:"error,omitempty"`
}

// TotalStats sums milestone-eligible counts across all rows. Extra badges are
// also part of TotalArcade; TotalExtra is informational.
type TotalStats struct {
	TotalAll    int `json:"totalAllBadges"`
	TotalArcade int `json:"totalArcadeBadges"`
	TotalTrivia int `json:"totalTriviaBadges"`
	TotalSkill  int `json:"totalSkillBadges"`
	TotalExtra  int `json:"totalExtraSkillBadges"`
}

// Orchestrator processes rosters.
type Orchestrator struct {
	fetcher    Fetcher
	rules      RuleSource
	catalog    *catalog.Catalog
	logger     *slog.Logger
	metrics    *metrics.Metrics
	batchSize  int
	batchPause time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many participants are fetched concurrently.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithBatchPause sets the minimum spacing between batch starts. Zero disables pacing.
func WithBatchPause(d time.Duration) Option {
	return func(o *Orchestrator) { o.batchPause = d }
}

// WithCatalog sets the skill badge catalog. Without it no title classifies as skill.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records batch durations and badge categories.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator.
func New(f Fetcher, rs RuleSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:    f,
		rules:      rs,
		catalog:    catalog.Empty(),
		logger:     slog.Default(),
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// outcome is the per-participant result before ranking.
type outcome struct {
	row       Row
	attempted bool
	failed    bool
}

// run is the state of one Process call: a rule snapshot and the pipeline built on it.
type run struct {
	rules *rules.Rules
	agg   *aggregate.Aggregator
}

// Process scores every participant and returns rows ranked by total points,
// descending; ties keep roster order. A participant whose page cannot be
// fetched gets a zero row. ErrBatchFailed is returned only when every
// participant with a URL failed.
func (o *Orchestrator) Process(ctx context.Context, participants roster.Roster) ([]Row, TotalStats, error) {
	if len(participants) == 0 {
		return nil, TotalStats{}, ErrEmptyRoster
	}

	r := o.rules.Load()
	rn := &run{
		rules: r,
		agg:   aggregate.New(classify.New(r, o.catalog), aggregate.WithMetrics(o.metrics)),
	}

	pacer := rate.NewLimiter(rate.Inf, 1)
	if o.batchPause > 0 {
		pacer = rate.NewLimiter(rate.Every(o.batchPause), 1)
	}

	outcomes := make([]outcome, len(participants))
	batches := (len(participants) + o.batchSize - 1) / o.batchSize
	for b := range batches {
		if err := pacer.Wait(ctx); err != nil {
			return nil, TotalStats{}, err
		}
		start := b * o.batchSize
		end := min(start+o.batchSize, len(participants))

		began := time.Now()
		o.logger.DebugContext(ctx, "processing batch", "batch", b+1, "of", batches, "size", end-start)
		if err := o.processBatch(ctx, rn, participants[start:end], outcomes[start:end]); err != nil {
			return nil, TotalStats{}, err
		}
		o.metrics.BatchDone(time.Since(began))
	}

	var attempted, failed int
	rows := make([]Row, len(outcomes))
	for i, oc := range outcomes {
		rows[i] = oc.row
		if oc.attempted {
			attempted++
		}
		if oc.failed {
			failed++
		}
	}
	if attempted > 0 && failed == attempted {
		return nil, TotalStats{}, fmt.Errorf("%w: %d of %d participants failed", ErrBatchFailed, failed, attempted)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalPoints > rows[j].TotalPoints })
	o.logger.InfoContext(ctx, "leaderboard processed", "participants", len(rows), "batches", batches, "failed", failed)
	return rows, Totals(rows), nil
}

// processBatch fans out one goroutine per participant and waits for all of
// them. Results are written by index so roster order is kept.
func (o *Orchestrator) processBatch(ctx context.Context, rn *run, batch roster.Roster, out []outcome) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range batch {
		g.Go(func() error {
			out[i] = o.evaluate(gctx, rn, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (o *Orchestrator) evaluate(ctx context.Context, rn *run, p roster.Participant) outcome {
	if !fetch.Fetchable(p.URL) {
		if p.URL != "" {
			o.logger.WarnContext(ctx, "malformed profile url, scoring zero", "name", p.Name, "url", p.URL)
		}
		return outcome{row: newRow(p, aggregate.Aggregate{}, rn.rules)}
	}

	body, err := o.fetcher.Fetch(ctx, p.URL)
	if err != nil {
		o.logger.WarnContext(ctx, "profile unavailable, scoring zero", "name", p.Name, "url", p.URL, "error", err)
		row := newRow(p, aggregate.Aggregate{}, rn.rules)
		row.Error = err.Error()
		return outcome{row: row, attempted: true, failed: true}
	}

	records, err := extract.Badges(body)
	if err != nil {
		o.logger.WarnContext(ctx, "profile unparseable, scoring zero", "name", p.Name, "url", p.URL, "error", err)
		row := newRow(p, aggregate.Aggregate{}, rn.rules)
		row.Error = err.Error()
		return outcome{row: row, attempted: true, failed: true}
	}

	return outcome{row: newRow(p, rn.agg.Aggregate(records), rn.rules), attempted: true}
}

func newRow(p roster.Participant, agg aggregate.Aggregate, r *rules.Rules) Row {
	mc := agg.MilestoneCounts
	return Row{
		Name:            p.Name,
		URL:             p.URL,
		SkillCount:      mc.Skill,
		ArcadeCount:     mc.CombinedArcade(),
		TriviaCount:     mc.Trivia,
		ExtraCount:      mc.Extra + mc.PremiumExtra,
		Counts:          agg.Counts,
		MilestoneCounts: mc,
		Result:          score.Score(agg, r),
	}
}

// Totals sums milestone-eligible counts across rows.
func Totals(rows []Row) TotalStats {
	var t TotalStats
	for i := range rows {
		t.TotalArcade += rows[i].ArcadeCount
		t.TotalTrivia += rows[i].TriviaCount
		t.TotalSkill += rows[i].SkillCount
		t.TotalExtra += rows[i].ExtraCount
	}
	t.TotalAll = t.TotalArcade + t.TotalTrivia + t.TotalSkill
	return t
}

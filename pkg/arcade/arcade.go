// Package arcade provides the leaderboard and single-profile operations on
// top of the fetch, classification and scoring packages.
//
// Basic usage:
//
//	svc := arcade.New(arcade.WithLogger(logger))
//	resp, err := svc.Leaderboard(ctx, csvBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.CacheStatus, len(resp.Leaderboard))
package arcade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/aggregate"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/cache"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/classify"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/extract"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/fetch"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/leaderboard"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/metrics"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/profile"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/roster"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/score"
)

// Cache statuses reported in a Response.
const (
	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// Re-export common errors.
var (
	ErrInvalidURL      = profile.ErrInvalidURL
	ErrProfileNotFound = profile.ErrProfileNotFound
	ErrRateLimited     = profile.ErrRateLimited
	ErrEmptyRoster     = leaderboard.ErrEmptyRoster
	ErrBatchFailed     = leaderboard.ErrBatchFailed
)

// Response is the ranked leaderboard for one roster upload.
type Response struct {
	CacheStatus string                 `json:"cacheStatus"`
	Leaderboard []leaderboard.Row      `json:"leaderboard"`
	TotalStats  leaderboard.TotalStats `json:"totalStats"`
}

// RawCounts splits badge counts into all-time and competition-period tallies.
type RawCounts struct {
	badge.Counts
	CompetitionPeriod badge.Counts `json:"competitionPeriod"`
}

// Breakdown is the scored view of one profile.
type Breakdown struct {
	SkillCount  int `json:"skillCount"`
	ArcadeCount int `json:"arcadeCount"`
	TriviaCount int `json:"triviaCount"`
	score.Result
	RawCounts     RawCounts       `json:"rawCounts"`
	BadgeDetails  *badge.Details  `json:"badgeDetails"`
	MissingBadges []catalog.Badge `json:"missingSkillBadges"`
}

// Report is the single-profile analysis.
type Report struct {
	Success         bool      `json:"success"`
	ProfileID       string    `json:"profileId"`
	ProfileName     string    `json:"profileName,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	ProfileURL      string    `json:"profileUrl"`
	Data            Breakdown `json:"data"`
}

// Service runs leaderboard and profile computations.
type Service struct {
	fetcher      leaderboard.Fetcher
	rules        *rules.Store
	catalog      *catalog.Catalog
	cache        *cache.Manager
	orchestrator *leaderboard.Orchestrator
	logger       *slog.Logger
	metrics      *metrics.Metrics
	group        singleflight.Group
}

// Option configures a Service.
type Option func(*config)

//nolint:govet // fieldalignment: intentional layout for readability
type config struct {
	fetcher    leaderboard.Fetcher
	pageCache  fetch.Cacher
	rules      *rules.Store
	catalog    *catalog.Catalog
	cache      *cache.Manager
	logger     *slog.Logger
	metrics    *metrics.Metrics
	batchSize  int
	batchPause time.Duration
}

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f leaderboard.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithPageCache caches fetched profile pages. Ignored when WithFetcher is used.
func WithPageCache(pc fetch.Cacher) Option {
	return func(c *config) { c.pageCache = pc }
}

// WithRules sets the rule store. Defaults to the embedded rules.
func WithRules(s *rules.Store) Option {
	return func(c *config) { c.rules = s }
}

// WithCatalog sets the skill badge catalog. Defaults to the embedded catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *config) { c.catalog = cat }
}

// WithCache sets the leaderboard cache.
func WithCache(m *cache.Manager) Option {
	return func(c *config) { c.cache = m }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithBatchSize sets how many profiles are fetched concurrently.
func WithBatchSize(n int) Option {
	return func(c *config) { c.batchSize = n }
}

// WithBatchPause sets the minimum spacing between batches.
func WithBatchPause(d time.Duration) Option {
	return func(c *config) { c.batchPause = d }
}

// New creates a Service.
func New(opts ...Option) *Service {
	cfg := &config{
		logger:     slog.Default(),
		batchSize:  leaderboard.DefaultBatchSize,
		batchPause: leaderboard.DefaultBatchPause,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.rules == nil {
		cfg.rules = rules.NewStore(rules.Default())
	}
	if cfg.catalog == nil {
		cfg.catalog = catalog.Default()
	}
	if cfg.cache == nil {
		cfg.cache = cache.New(cache.WithLogger(cfg.logger))
	}
	if cfg.fetcher == nil {
		cfg.fetcher = fetch.New(
			fetch.WithLogger(cfg.logger),
			fetch.WithMetrics(cfg.metrics),
			fetch.WithPageCache(cfg.pageCache),
		)
	}

	return &Service{
		fetcher: cfg.fetcher,
		rules:   cfg.rules,
		catalog: cfg.catalog,
		cache:   cfg.cache,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		orchestrator: leaderboard.New(cfg.fetcher, cfg.rules,
			leaderboard.WithCatalog(cfg.catalog),
			leaderboard.WithLogger(cfg.logger),
			leaderboard.WithMetrics(cfg.metrics),
			leaderboard.WithBatchSize(cfg.batchSize),
			leaderboard.WithBatchPause(cfg.batchPause),
		),
	}
}

// Leaderboard ranks the participants of one or more CSV tables. Identical
// rosters within the cache TTL are served from memory; concurrent identical
// uploads share one computation.
func (s *Service) Leaderboard(ctx context.Context, tables ...[]byte) (*Response, error) {
	participants, err := roster.Parse(tables...)
	if err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(participants) == 0 {
		return nil, ErrEmptyRoster
	}

	key := cacheKey(s.rules.Load().Version, participants)
	s.cache.EvictExpired()
	if e, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookup(CacheHit)
		s.logger.InfoContext(ctx, "leaderboard cache hit", "key", shortKey(key), "rows", len(e.Rows))
		return &Response{CacheStatus: CacheHit, Leaderboard: e.Rows, TotalStats: e.Stats}, nil
	}
	s.metrics.CacheLookup(CacheMiss)
	s.logger.InfoContext(ctx, "leaderboard cache miss", "key", shortKey(key), "participants", len(participants))

	// Joined callers must not fail because the first caller went away.
	v, err, shared := s.group.Do(key, func() (any, error) {
		rows, stats, err := s.orchestrator.Process(context.WithoutCancel(ctx), participants)
		if err != nil {
			return nil, err
		}
		return s.cache.Put(key, rows, stats), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight leaderboard computation", "key", shortKey(key))
	}
	e := v.(*cache.Entry) //nolint:errcheck,forcetypeassert // only *cache.Entry is returned above
	return &Response{CacheStatus: CacheMiss, Leaderboard: e.Rows, TotalStats: e.Stats}, nil
}

// Profile fetches and scores a single public profile. The missing skill badge
// list is selected and ordered by f.
func (s *Service) Profile(ctx context.Context, rawURL string, f catalog.Filter) (*Report, error) {
	if !profile.ValidURL(rawURL) {
		return nil, ErrInvalidURL
	}

	body, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	p, err := extract.Profile(body, rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	r := s.rules.Load()
	agg := aggregate.New(classify.New(r, s.catalog),
		aggregate.WithDetails(),
		aggregate.WithMetrics(s.metrics),
	).Aggregate(p.Badges)

	earned := make([]string, 0, len(agg.Details.Skill))
	for _, d := range agg.Details.Skill {
		earned = append(earned, d.Name)
	}

	id := p.ID
	if id == "" {
		id = "Unknown"
	}
	s.logger.InfoContext(ctx, "profile analyzed", "profile", id, "badges", len(p.Badges))

	return &Report{
		Success:         true,
		ProfileID:       id,
		ProfileName:     p.Name,
		ProfileImageURL: p.AvatarURL,
		ProfileURL:      rawURL,
		Data: Breakdown{
			SkillCount:  agg.Counts.Skill,
			ArcadeCount: agg.Counts.CombinedArcade(),
			TriviaCount: agg.Counts.Trivia,
			Result:      score.Score(agg, r),
			RawCounts: RawCounts{
				Counts:            agg.Counts,
				CompetitionPeriod: agg.MilestoneCounts,
			},
			BadgeDetails:  agg.Details,
			MissingBadges: s.catalog.Missing(earned, f),
		},
	}, nil
}

// CacheStats returns leaderboard cache statistics.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// IsInvalidInput reports whether err was caused by the caller's input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrEmptyRoster) || errors.Is(err, roster.ErrMissingColumns)
}

// cacheKey binds the roster hash to the rules version so a rules reload never
// serves a leaderboard computed under older rules.
func cacheKey(rulesVersion string, participants roster.Roster) string {
	sum := sha256.Sum256([]byte(rulesVersion + "\n" + participants.Hash()))
	return hex.EncodeToString(sum[:])
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

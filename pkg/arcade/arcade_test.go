package arcade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/cache"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/fetch"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
)

const profileBase = "https://www.cloudskillsboost.google/public_profiles/"

type countingFetcher struct {
	pages map[string]string
	mu    sync.Mutex
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Attempts: 3, Err: &fetch.HTTPError{URL: url, StatusCode: http.StatusNotFound}}
	}
	return []byte(body), nil
}

func (f *countingFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func badgeCard(title, earned string) string {
	return fmt.Sprintf(`<div class="profile-badge"><span class="ql-title-medium">%s</span><span>Earned %s</span></div>`, title, earned)
}

const adaPage = `<html><body>
<ql-avatar class="profile-avatar" src="https://cdn.example.com/ada.png"></ql-avatar>
<h1 class="ql-display-small">Ada</h1>` +
	`<div class="profile-badge"><span class="ql-title-medium">Build a Secure Google Cloud Network</span><span>Earned Aug 1, 2025</span></div>` +
	`<div class="profile-badge"><span class="ql-title-medium">Get Started with Looker</span><span>Earned Oct 2, 2025</span></div>` +
	`<div class="profile-badge"><span class="ql-title-medium">Level 1: Kickoff</span><span>Earned Sep 16, 2025</span></div>` +
	`<div class="profile-badge"><span class="ql-title-medium">Skills Scribble</span><span>Earned Sep 20, 2025</span></div>` +
	`<div class="profile-badge"><span class="ql-title-medium">Skills Boost Arcade Trivia August 2025 Week 2</span><span>Earned Aug 15, 2025</span></div>` +
	`</body></html>`

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newService(f *countingFetcher, opts ...Option) *Service {
	return New(append([]Option{WithFetcher(f), WithBatchPause(0)}, opts...)...)
}

func rosterCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("Nama Peserta,URL Profil Google Cloud Skills Boost\n")
	for i := range n {
		fmt.Fprintf(&b, "P%d,%sp%d\n", i, profileBase, i)
	}
	return []byte(b.String())
}

func rosterPages(n int) map[string]string {
	pages := map[string]string{}
	for i := range n {
		var cards strings.Builder
		for range i {
			cards.WriteString(badgeCard("Level 2: Practice", "Aug 5, 2025"))
		}
		pages[fmt.Sprintf("%sp%d", profileBase, i)] = "<html><body>" + cards.String() + "</body></html>"
	}
	return pages
}

func TestLeaderboardCacheHit(t *testing.T) {
	f := &countingFetcher{pages: rosterPages(5)}
	svc := newService(f)

	first, err := svc.Leaderboard(context.Background(), rosterCSV(5))
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if first.CacheStatus != CacheMiss {
		t.Errorf("first CacheStatus = %s, want MISS", first.CacheStatus)
	}
	calls := f.Calls()

	second, err := svc.Leaderboard(context.Background(), rosterCSV(5))
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if second.CacheStatus != CacheHit {
		t.Errorf("second CacheStatus = %s, want HIT", second.CacheStatus)
	}
	if f.Calls() != calls {
		t.Errorf("fetches after hit = %d, want %d", f.Calls(), calls)
	}

	a, err := json.Marshal(first.Leaderboard)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second.Leaderboard)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("cached leaderboard differs:\n%s\n%s", a, b)
	}
	if first.TotalStats != second.TotalStats {
		t.Errorf("TotalStats differ: %+v vs %+v", first.TotalStats, second.TotalStats)
	}
	if got := svc.CacheStats(); got.Hits != 1 || got.Misses != 1 {
		t.Errorf("CacheStats() = %+v, want 1 hit 1 miss", got)
	}
}

func TestLeaderboardCacheExpiry(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}
	f := &countingFetcher{pages: rosterPages(3)}
	svc := newService(f, WithCache(cache.New(cache.WithClock(c.Now))))

	if _, err := svc.Leaderboard(context.Background(), rosterCSV(3)); err != nil {
		t.Fatal(err)
	}
	c.Advance(cache.DefaultTTL)

	resp, err := svc.Leaderboard(context.Background(), rosterCSV(3))
	if err != nil {
		t.Fatal(err)
	}
	if resp.CacheStatus != CacheMiss {
		t.Errorf("CacheStatus after TTL = %s, want MISS", resp.CacheStatus)
	}
	if f.Calls() != 6 {
		t.Errorf("fetches = %d, want 6", f.Calls())
	}
}

func TestLeaderboardRulesVersionInvalidatesCache(t *testing.T) {
	f := &countingFetcher{pages: rosterPages(2)}
	store := rules.NewStore(rules.Default())
	svc := newService(f, WithRules(store))

	if _, err := svc.Leaderboard(context.Background(), rosterCSV(2)); err != nil {
		t.Fatal(err)
	}
	next := *rules.Default()
	next.Version = "next"
	store.Swap(&next)

	resp, err := svc.Leaderboard(context.Background(), rosterCSV(2))
	if err != nil {
		t.Fatal(err)
	}
	if resp.CacheStatus != CacheMiss {
		t.Errorf("CacheStatus after rules swap = %s, want MISS", resp.CacheStatus)
	}
}

func TestLeaderboardRanking(t *testing.T) {
	f := &countingFetcher{pages: rosterPages(4)}
	resp, err := newService(f).Leaderboard(context.Background(), rosterCSV(4))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range resp.Leaderboard {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"P3", "P2", "P1", "P0"}, names); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	if resp.TotalStats.TotalArcade != 6 || resp.TotalStats.TotalAll != 6 {
		t.Errorf("TotalStats = %+v", resp.TotalStats)
	}
}

func TestLeaderboardMalformedURLs(t *testing.T) {
	f := &countingFetcher{}
	resp, err := newService(f).Leaderboard(context.Background(), []byte("name,url\nAlice,not a url\nBob,\n"))
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(resp.Leaderboard) != 2 || f.Calls() != 0 {
		t.Errorf("rows = %d fetches = %d, want 2 rows and no fetches", len(resp.Leaderboard), f.Calls())
	}
}

func TestLeaderboardSurvivesCallerCancel(t *testing.T) {
	f := &countingFetcher{pages: rosterPages(3)}
	svc := newService(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := svc.Leaderboard(ctx, rosterCSV(3))
	if err != nil {
		t.Fatalf("Leaderboard() with canceled caller error = %v", err)
	}
	if len(resp.Leaderboard) != 3 {
		t.Errorf("rows = %d, want 3", len(resp.Leaderboard))
	}

	again, err := svc.Leaderboard(context.Background(), rosterCSV(3))
	if err != nil {
		t.Fatal(err)
	}
	if again.CacheStatus != CacheHit {
		t.Errorf("CacheStatus = %s, want HIT", again.CacheStatus)
	}
}

func TestLeaderboardErrors(t *testing.T) {
	svc := newService(&countingFetcher{})
	tests := []struct {
		name  string
		table string
		want  error
	}{
		{"header only", "name,url\n", ErrEmptyRoster},
		{"all fetches fail", "name,url\na," + profileBase + "missing\n", ErrBatchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Leaderboard(context.Background(), []byte(tt.table))
			if !errors.Is(err, tt.want) {
				t.Errorf("Leaderboard() error = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := svc.Leaderboard(context.Background(), []byte("email\nx\n")); !IsInvalidInput(err) {
		t.Errorf("missing columns error = %v, want invalid input", err)
	}
}

func TestProfile(t *testing.T) {
	url := profileBase + "ada-123?locale=en"
	f := &countingFetcher{pages: map[string]string{url: adaPage}}
	svc := newService(f)

	rep, err := svc.Profile(context.Background(), url, catalog.Filter{Level: catalog.LevelIntroductory, Sort: catalog.SortDuration})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if rep.ProfileID != "ada-123" || rep.ProfileName != "Ada" || rep.ProfileImageURL != "https://cdn.example.com/ada.png" {
		t.Errorf("identity = %q %q %q", rep.ProfileID, rep.ProfileName, rep.ProfileImageURL)
	}

	d := rep.Data
	if d.RawCounts.Skill != 2 || d.RawCounts.CompetitionPeriod.Skill != 1 {
		t.Errorf("skill counts = %d/%d, want 2/1", d.RawCounts.Skill, d.RawCounts.CompetitionPeriod.Skill)
	}
	if d.RawCounts.Extra != 1 || d.RawCounts.CompetitionPeriod.Extra != 0 {
		t.Errorf("extra counts = %d/%d, want 1/0", d.RawCounts.Extra, d.RawCounts.CompetitionPeriod.Extra)
	}
	// 2*0.5 + 1 + 1 + 2
	if d.BasePoints != 5 || d.TotalPoints != 5 || d.MilestoneLabel != "-" {
		t.Errorf("score = base %v total %v milestone %q", d.BasePoints, d.TotalPoints, d.MilestoneLabel)
	}
	if d.ArcadeCount != 2 {
		t.Errorf("ArcadeCount = %d, want 2", d.ArcadeCount)
	}
	if len(d.BadgeDetails.Skill) != 2 || len(d.BadgeDetails.Trivia) != 1 {
		t.Errorf("BadgeDetails = %+v", d.BadgeDetails)
	}

	for i, b := range d.MissingBadges {
		if b.Level != catalog.LevelIntroductory {
			t.Errorf("missing badge %q has level %s", b.Name, b.Level)
		}
		if b.Name == "Get Started with Looker" {
			t.Error("earned badge reported missing")
		}
		if i > 0 && d.MissingBadges[i-1].Minutes() > b.Minutes() {
			t.Errorf("missing badges not sorted by duration at %d", i)
		}
	}
	if len(d.MissingBadges) == 0 {
		t.Error("no missing badges reported")
	}
}

func TestProfileErrors(t *testing.T) {
	svc := newService(&countingFetcher{})

	if _, err := svc.Profile(context.Background(), "https://example.com/u/1", catalog.Filter{}); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("invalid URL error = %v", err)
	}
	_, err := svc.Profile(context.Background(), profileBase+"gone", catalog.Filter{})
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("missing profile error = %v, want ErrProfileNotFound", err)
	}
	if !fetch.IsHTTPStatus(err, http.StatusNotFound) {
		t.Errorf("IsHTTPStatus(404) = false for %v", err)
	}
}

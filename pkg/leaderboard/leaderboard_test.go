package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/roster"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
)

type card struct{ title, earned string }

func page(cards ...card) []byte {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		fmt.Fprintf(&b, `<div class="profile-badge"><span class="ql-title-medium">%s</span><span>Earned %s</span></div>`, c.title, c.earned)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func repeat(c card, n int) []card {
	out := make([]card, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// fakeFetcher serves canned pages and records call order and concurrency.
type fakeFetcher struct {
	pages    map[string][]byte
	mu       sync.Mutex
	order    []string
	inFlight int
	peak     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.order = append(f.order, url)
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return body, nil
}

func newOrchestrator(f Fetcher, opts ...Option) *Orchestrator {
	opts = append([]Option{WithBatchPause(0), WithCatalog(catalog.Default())}, opts...)
	return New(f, rules.NewStore(rules.Default()), opts...)
}

func profileURL(i int) string {
	return fmt.Sprintf("https://www.cloudskillsboost.google/public_profiles/p%02d", i)
}

func TestProcessBatchesAndSorts(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{}}
	var participants roster.Roster
	for i := range 25 {
		url := profileURL(i)
		f.pages[url] = page(repeat(card{"Level 1: Warmup", "Aug 1, 2025"}, i)...)
		participants = append(participants, roster.Participant{Name: fmt.Sprintf("P%02d", i), URL: url})
	}

	rows, totals, err := newOrchestrator(f, WithBatchSize(10)).Process(context.Background(), participants)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(rows) != 25 {
		t.Fatalf("len(rows) = %d, want 25", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].TotalPoints < rows[i].TotalPoints {
			t.Fatalf("rows not sorted descending at %d: %v < %v", i, rows[i-1].TotalPoints, rows[i].TotalPoints)
		}
	}
	if rows[0].Name != "P24" || rows[0].TotalPoints != 24 {
		t.Errorf("top row = %s %v, want P24 24", rows[0].Name, rows[0].TotalPoints)
	}

	if f.peak > 10 {
		t.Errorf("peak concurrency = %d, want <= 10", f.peak)
	}
	// Batches run sequentially: every fetch of batch N starts before any of batch N+1.
	for b, want := range [][2]int{{0, 10}, {10, 20}, {20, 25}} {
		var got []string
		for i := want[0]; i < want[1]; i++ {
			got = append(got, profileURL(i))
		}
		batch := slices.Clone(f.order[want[0]:want[1]])
		slices.Sort(batch)
		if !slices.Equal(batch, got) {
			t.Errorf("batch %d fetched %v, want %v", b+1, batch, got)
		}
	}

	wantArcade := 24 * 25 / 2
	if totals.TotalArcade != wantArcade || totals.TotalAll != wantArcade {
		t.Errorf("totals = %+v, want arcade and all = %d", totals, wantArcade)
	}
}

func TestProcessTiesKeepRosterOrder(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{
		profileURL(1): page(),
		profileURL(2): page(card{"Level 1: A", "Aug 1, 2025"}),
		profileURL(3): page(),
	}}
	participants := roster.Roster{
		{Name: "first", URL: profileURL(1)},
		{Name: "top", URL: profileURL(2)},
		{Name: "third", URL: profileURL(3)},
	}
	rows, _, err := newOrchestrator(f).Process(context.Background(), participants)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.Name)
	}
	if want := []string{"top", "first", "third"}; !slices.Equal(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}
}

func TestProcessFailedFetchScoresZero(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{
		profileURL(1): page(card{"Level 1: A", "Aug 1, 2025"}),
	}}
	participants := roster.Roster{
		{Name: "ok", URL: profileURL(1)},
		{Name: "down", URL: profileURL(2)},
	}
	rows, _, err := newOrchestrator(f).Process(context.Background(), participants)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	down := rows[1]
	if down.Name != "down" {
		t.Fatalf("rows = %+v", rows)
	}
	if down.Counts.Total() != 0 || down.TotalPoints != 0 || down.Milestone != "" || down.BonusPoints != 0 {
		t.Errorf("failed row = %+v, want zeros", down)
	}
	if down.Error == "" {
		t.Error("failed row has no error message")
	}
}

func TestProcessExcludesBadgesBeforeSeason(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{
		profileURL(1): page(
			card{"Build a Secure Google Cloud Network", "Jul 14, 2025"},
			card{"Get Started with Looker", "Jul 15, 2025"},
		),
	}}
	rows, _, err := newOrchestrator(f).Process(context.Background(), roster.Roster{{Name: "a", URL: profileURL(1)}})
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.Counts.Skill != 1 || row.MilestoneCounts.Skill != 1 {
		t.Errorf("skill counts = %d/%d, want 1/1", row.Counts.Skill, row.MilestoneCounts.Skill)
	}
	if row.BasePoints != 0.5 {
		t.Errorf("BasePoints = %v, want 0.5", row.BasePoints)
	}
}

func TestProcessErrors(t *testing.T) {
	t.Run("empty roster", func(t *testing.T) {
		_, _, err := newOrchestrator(&fakeFetcher{}).Process(context.Background(), nil)
		if !errors.Is(err, ErrEmptyRoster) {
			t.Errorf("err = %v, want ErrEmptyRoster", err)
		}
	})
	t.Run("every fetch fails", func(t *testing.T) {
		participants := roster.Roster{{Name: "a", URL: profileURL(1)}, {Name: "b", URL: profileURL(2)}}
		_, _, err := newOrchestrator(&fakeFetcher{}).Process(context.Background(), participants)
		if !errors.Is(err, ErrBatchFailed) {
			t.Errorf("err = %v, want ErrBatchFailed", err)
		}
	})
	t.Run("missing urls are not failures", func(t *testing.T) {
		f := &fakeFetcher{}
		rows, _, err := newOrchestrator(f).Process(context.Background(), roster.Roster{{Name: "a"}, {Name: "b"}})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if len(rows) != 2 || len(f.order) != 0 {
			t.Errorf("rows = %d fetches = %d, want 2 rows and no fetches", len(rows), len(f.order))
		}
	})
	t.Run("malformed urls score zero without fetching", func(t *testing.T) {
		f := &fakeFetcher{}
		participants := roster.Roster{{Name: "Alice", URL: "not a url"}, {Name: "Bob"}}
		rows, _, err := newOrchestrator(f).Process(context.Background(), participants)
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if len(rows) != 2 || len(f.order) != 0 {
			t.Errorf("rows = %d fetches = %d, want 2 rows and no fetches", len(rows), len(f.order))
		}
		for _, r := range rows {
			if r.TotalPoints != 0 || r.Error != "" {
				t.Errorf("row %+v, want zero row without error", r)
			}
		}
	})
	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := newOrchestrator(&fakeFetcher{}).Process(ctx, roster.Roster{{Name: "a", URL: profileURL(1)}})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestTotals(t *testing.T) {
	rows := []Row{
		{SkillCount: 10, ArcadeCount: 5, TriviaCount: 2, ExtraCount: 1},
		{SkillCount: 4, ArcadeCount: 1, TriviaCount: 3},
	}
	want := TotalStats{TotalAll: 25, TotalArcade: 6, TotalTrivia: 5, TotalSkill: 14, TotalExtra: 1}
	if got := Totals(rows); got != want {
		t.Errorf("Totals() = %+v, want %+v", got, want)
	}
}

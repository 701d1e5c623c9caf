// Package rules loads the versioned season configuration: eligibility dates,
// the title pattern sets used by the classifier, point weights and the
// milestone ladder.
//
// A Rules value is immutable once compiled. Reloading produces a new value.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the layout of season dates in the rules document.
const DateLayout = "2006-01-02"

//go:embed default.yaml
var defaultDocument []byte

// ErrInvalidPattern is returned when a pattern set does not compile.
var ErrInvalidPattern = errors.New("invalid pattern")

// Document is the YAML form of a rule set.
type Document struct {
	Version         string   `yaml:"version"`
	Season          Season   `yaml:"season"`
	GamesPathPrefix string   `yaml:"games_path_prefix"`
	Patterns        Patterns `yaml:"patterns"`
	Scoring         Scoring  `yaml:"scoring"`
}

// Season holds the competition dates.
type Season struct {
	MinEligibleDate string `yaml:"min_eligible_date"`
	MilestoneCutoff string `yaml:"milestone_cutoff"`
}

// Patterns lists case-insensitive regular expressions per set.
type Patterns struct {
	Excluded     []string `yaml:"excluded"`
	PremiumExtra []string `yaml:"premium_extra"`
	Extra        []string `yaml:"extra"`
	Trivia       []string `yaml:"trivia"`
	Arcade       []string `yaml:"arcade"`
	Completion   []string `yaml:"completion"`
}

// Scoring holds point weights, the milestone ladder and the arcade tiers.
type Scoring struct {
	Weights    Weights     `yaml:"weights"`
	Milestones []Milestone `yaml:"milestones"`
	Tiers      []Tier      `yaml:"tiers"`
}

// Weights are the points awarded per badge of each category.
type Weights struct {
	Skill        float64 `yaml:"skill"`
	Arcade       float64 `yaml:"arcade"`
	Trivia       float64 `yaml:"trivia"`
	Extra        float64 `yaml:"extra"`
	PremiumExtra float64 `yaml:"premium_extra"`
}

// Milestone is one rung of the bonus ladder. Arcade is compared against the
// combined arcade count (arcade + extra + premium extra).
type Milestone struct {
	Name   string `yaml:"name"`
	Label  string `yaml:"label"`
	Arcade int    `yaml:"arcade"`
	Trivia int    `yaml:"trivia"`
	Skill  int    `yaml:"skill"`
	Bonus  int    `yaml:"bonus"`
}

// Tier is a points band used for display.
type Tier struct {
	Name      string  `yaml:"name"`
	MinPoints float64 `yaml:"min_points"`
	Stars     int     `yaml:"stars"`
}

// Rules is a compiled, immutable rule set.
type Rules struct {
	MinEligible     time.Time
	MilestoneCutoff time.Time

	// Compiled pattern sets; nil never matches.
	Excluded     *regexp.Regexp
	PremiumExtra *regexp.Regexp
	Extra        *regexp.Regexp
	Trivia       *regexp.Regexp
	Arcade       *regexp.Regexp
	Completion   *regexp.Regexp

	Version         string
	GamesPathPrefix string
	Weights         Weights
	Milestones      []Milestone // highest bonus first
	Tiers           []Tier      // lowest threshold first
}

// Default returns the rule set embedded in the binary.
func Default() *Rules {
	r, err := Parse(defaultDocument)
	if err != nil {
		panic("embedded rules: " + err.Error())
	}
	return r
}

// Load reads and compiles a rules document from path.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML rules document.
func Parse(data []byte) (*Rules, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return Compile(&doc)
}

// Compile validates doc and builds a Rules value.
func Compile(doc *Document) (*Rules, error) {
	minDate, err := time.Parse(DateLayout, doc.Season.MinEligibleDate)
	if err != nil {
		return nil, fmt.Errorf("min_eligible_date: %w", err)
	}
	cutoff, err := time.Parse(DateLayout, doc.Season.MilestoneCutoff)
	if err != nil {
		return nil, fmt.Errorf("milestone_cutoff: %w", err)
	}
	if cutoff.Before(minDate) {
		return nil, fmt.Errorf("milestone_cutoff %s precedes min_eligible_date %s",
			doc.Season.MilestoneCutoff, doc.Season.MinEligibleDate)
	}

	r := &Rules{
		Version:         doc.Version,
		MinEligible:     minDate,
		MilestoneCutoff: cutoff,
		GamesPathPrefix: doc.GamesPathPrefix,
		Weights:         doc.Scoring.Weights,
		Milestones:      append([]Milestone(nil), doc.Scoring.Milestones...),
		Tiers:           append([]Tier(nil), doc.Scoring.Tiers...),
	}

	sets := []struct {
		name     string
		patterns []string
		dst      **regexp.Regexp
	}{
		{"excluded", doc.Patterns.Excluded, &r.Excluded},
		{"premium_extra", doc.Patterns.PremiumExtra, &r.PremiumExtra},
		{"extra", doc.Patterns.Extra, &r.Extra},
		{"trivia", doc.Patterns.Trivia, &r.Trivia},
		{"arcade", doc.Patterns.Arcade, &r.Arcade},
		{"completion", doc.Patterns.Completion, &r.Completion},
	}
	for _, s := range sets {
		re, err := compileSet(s.patterns)
		if err != nil {
			return nil, fmt.Errorf("%w in %s: %w", ErrInvalidPattern, s.name, err)
		}
		*s.dst = re
	}

	for _, m := range r.Milestones {
		if m.Name == "" || m.Bonus < 0 {
			return nil, fmt.Errorf("milestone %q: name required and bonus must be non-negative", m.Name)
		}
	}
	sort.SliceStable(r.Milestones, func(i, j int) bool { return r.Milestones[i].Bonus > r.Milestones[j].Bonus })
	sort.SliceStable(r.Tiers, func(i, j int) bool { return r.Tiers[i].MinPoints < r.Tiers[j].MinPoints })

	return r, nil
}

// compileSet joins patterns into one case-insensitive alternation.
func compileSet(patterns []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return nil, err
		}
		parts = append(parts, "(?:"+p+")")
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile("(?i)" + strings.Join(parts, "|"))
}

// Match reports whether re matches s. A nil re never matches.
func Match(re *regexp.Regexp, s string) bool {
	return re != nil && re.MatchString(s)
}

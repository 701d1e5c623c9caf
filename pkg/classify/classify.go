// Package classify assigns a scoring category to a single badge record.
//
// Classification first applies the date window, then walks an ordered list of
// rules where the first match wins. Categories overlap lexically (an extra
// badge title may contain "level"), so the order is part of the contract and
// is exposed through Chain.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/catalog"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/htmlutil"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
)

// Input is the view of a record the rules operate on.
type Input struct {
	Record badge.Record
	Lower  string // lowercased title
	Normal string // lowercased, whitespace collapsed, trimmed
}

// Rule is one step of the chain. Apply reports whether the rule decides the
// badge and, if so, its category (badge.None discards it).
type Rule struct {
	Name  string
	Apply func(in *Input) (badge.Category, bool)
}

// Classifier is safe for concurrent use; it holds only immutable data.
type Classifier struct {
	rules *rules.Rules
	chain []Rule
}

// New builds a Classifier over a compiled rule set and skill catalog.
// A nil catalog never matches.
func New(r *rules.Rules, cat *catalog.Catalog) *Classifier {
	return &Classifier{rules: r, chain: buildChain(r, cat)}
}

// Chain returns the rule names in evaluation order.
func (c *Classifier) Chain() []string {
	names := make([]string, len(c.chain))
	for i, r := range c.chain {
		names[i] = r.Name
	}
	return names
}

// Classify applies the rule set's own eligibility window.
func (c *Classifier) Classify(rec badge.Record) badge.Classification {
	return c.ClassifyWindow(rec, c.rules.MinEligible, c.rules.MilestoneCutoff)
}

// ClassifyWindow classifies rec. Badges earned before minEligible, or whose
// date text is missing or unparseable, are discarded. A badge counts for the
// milestone when earned on or before milestoneCutoff.
func (c *Classifier) ClassifyWindow(rec badge.Record, minEligible, milestoneCutoff time.Time) badge.Classification {
	earned, ok := ParseEarnedDate(rec.EarnedDateText)
	if !ok || earned.Before(civil(minEligible)) {
		return badge.Classification{}
	}
	countsForMilestone := !earned.After(civil(milestoneCutoff))

	in := &Input{
		Record: rec,
		Lower:  strings.ToLower(rec.Title),
		Normal: htmlutil.NormalizeTitle(rec.Title),
	}
	for _, r := range c.chain {
		cat, decided := r.Apply(in)
		if !decided {
			continue
		}
		if cat == badge.None {
			return badge.Classification{}
		}
		return badge.Classification{Category: cat, CountsForMilestone: countsForMilestone}
	}
	return badge.Classification{}
}

func buildChain(r *rules.Rules, cat *catalog.Catalog) []Rule {
	set := func(name string, re *regexp.Regexp, c badge.Category) Rule {
		return Rule{Name: name, Apply: func(in *Input) (badge.Category, bool) {
			return c, rules.Match(re, in.Record.Title)
		}}
	}

	return []Rule{
		{Name: "untitled", Apply: func(in *Input) (badge.Category, bool) {
			return badge.None, in.Normal == ""
		}},
		set("excluded", r.Excluded, badge.None),
		set("premium_extra", r.PremiumExtra, badge.PremiumExtra),
		set("extra", r.Extra, badge.Extra),
		{Name: "trivia", Apply: func(in *Input) (badge.Category, bool) {
			return badge.Trivia, strings.Contains(in.Lower, "trivia") || rules.Match(r.Trivia, in.Record.Title)
		}},
		{Name: "arcade", Apply: func(in *Input) (badge.Category, bool) {
			hit := strings.Contains(in.Lower, "level") ||
				strings.Contains(in.Lower, "game") ||
				rules.Match(r.Arcade, in.Record.Title)
			return badge.Arcade, hit
		}},
		set("completion", r.Completion, badge.None),
		{Name: "skill_catalog", Apply: func(in *Input) (badge.Category, bool) {
			return badge.Skill, cat.Contains(in.Normal)
		}},
		{Name: "game_modal", Apply: func(in *Input) (badge.Category, bool) {
			rec := in.Record
			if !rec.HasGameModalLink || r.GamesPathPrefix == "" || !strings.HasPrefix(rec.GameHref, r.GamesPathPrefix) {
				return badge.None, false
			}
			if strings.Contains(in.Lower, "trivia") {
				return badge.Trivia, true
			}
			return badge.Arcade, true
		}},
		// Unknown titles are dropped rather than counted as skill badges.
		{Name: "unrecognized", Apply: func(*Input) (badge.Category, bool) {
			return badge.None, true
		}},
	}
}

var (
	commaPattern = regexp.MustCompile(`\s*,\s*`)
	dateLayouts  = []string{"Jan 2, 2006", "January 2, 2006"}
)

// ParseEarnedDate parses text like "Aug 1, 2025" into a UTC calendar date.
func ParseEarnedDate(text string) (time.Time, bool) {
	s := htmlutil.CollapseSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	s = commaPattern.ReplaceAllString(s, ", ")
	if strings.HasPrefix(strings.ToLower(s), "sept ") {
		s = "Sep " + s[5:]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// civil truncates t to midnight UTC of its calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

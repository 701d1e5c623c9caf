// Package score converts aggregated badge counts into points, a milestone
// and an arcade tier.
package score

import (
	"github.com/codeGROOVE-dev/arcadeboard/pkg/aggregate"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/rules"
)

// NoMilestone is the display label when no milestone is reached.
const NoMilestone = "-"

// Tier is the arcade points band for display.
type Tier struct {
	Name  string `json:"name"`
	Stars int    `json:"stars"`
}

// Result is the score of one profile.
//
// BasePoints weighs every eligible badge; the milestone and its bonus are
// derived from the milestone-eligible subset only.
type Result struct {
	SkillPoints        float64 `json:"skillPoints"`
	ArcadePoints       float64 `json:"arcadePoints"`
	TriviaPoints       float64 `json:"triviaPoints"`
	ExtraSkillPoints   float64 `json:"extraSkillPoints"`
	PremiumExtraPoints float64 `json:"premiumExtraPoints"`
	BasePoints         float64 `json:"basePoints"`
	Milestone          string  `json:"milestone"` // empty when none
	MilestoneLabel     string  `json:"currentMilestone"`
	BonusPoints        int     `json:"bonusPoints"`
	TotalPoints        float64 `json:"totalPoints"`
	Tier               Tier    `json:"arcadeTier"`
}

// Score computes the result for agg under r.
func Score(agg aggregate.Aggregate, r *rules.Rules) Result {
	w := r.Weights
	c := agg.Counts
	res := Result{
		SkillPoints:        float64(c.Skill) * w.Skill,
		ArcadePoints:       float64(c.Arcade) * w.Arcade,
		TriviaPoints:       float64(c.Trivia) * w.Trivia,
		ExtraSkillPoints:   float64(c.Extra) * w.Extra,
		PremiumExtraPoints: float64(c.PremiumExtra) * w.PremiumExtra,
		MilestoneLabel:     NoMilestone,
	}
	res.BasePoints = res.SkillPoints + res.ArcadePoints + res.TriviaPoints + res.ExtraSkillPoints + res.PremiumExtraPoints

	if m, ok := Milestone(agg.MilestoneCounts, r.Milestones); ok {
		res.Milestone = m.Name
		res.MilestoneLabel = m.Label
		res.BonusPoints = m.Bonus
	}
	res.TotalPoints = res.BasePoints + float64(res.BonusPoints)
	res.Tier = ArcadeTier(res.TotalPoints, r.Tiers)
	return res
}

// Milestone returns the first rung of ladder whose thresholds are all met by
// counts. The ladder must be ordered highest bonus first, as rules.Compile
// leaves it.
func Milestone(counts badge.Counts, ladder []rules.Milestone) (rules.Milestone, bool) {
	arcade := counts.CombinedArcade()
	for _, m := range ladder {
		if arcade >= m.Arcade && counts.Trivia >= m.Trivia && counts.Skill >= m.Skill {
			return m, true
		}
	}
	return rules.Milestone{}, false
}

// ArcadeTier returns the highest tier whose threshold points reaches.
// Tiers must be ordered by ascending threshold.
func ArcadeTier(points float64, tiers []rules.Tier) Tier {
	var t Tier
	for _, tier := range tiers {
		if points < tier.MinPoints {
			break
		}
		t = Tier{Name: tier.Name, Stars: tier.Stars}
	}
	return t
}

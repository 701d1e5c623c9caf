// Package badge defines the records and categories shared by the extraction,
// classification and scoring stages.
package badge

import "encoding/json"

// Category is the scoring bucket a badge is classified into.
type Category int

// Categories in declaration order. None means the badge is discarded.
const (
	None Category = iota
	Skill
	Arcade
	Trivia
	Extra
	PremiumExtra
)

// Scored lists every category that contributes points, in display order.
var Scored = []Category{Skill, Arcade, Trivia, Extra, PremiumExtra}

var categoryNames = map[Category]string{
	None:         "none",
	Skill:        "skill",
	Arcade:       "arcade",
	Trivia:       "trivia",
	Extra:        "extra",
	PremiumExtra: "premiumExtra",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON encodes the category by name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Record is one badge card extracted from a profile page.
// Title is the raw text from the markup; it is normalized only when classified.
type Record struct {
	Title            string
	EarnedDateText   string // empty when no "Earned <date>" text was found
	HasGameModalLink bool
	GameHref         string
}

// Classification is the outcome of classifying a single Record.
// CountsForMilestone is only meaningful when Category != None.
type Classification struct {
	Category           Category
	CountsForMilestone bool
}

// Counts holds per-category badge totals.
type Counts struct {
	Skill        int `json:"skill"`
	Arcade       int `json:"arcade"`
	Trivia       int `json:"trivia"`
	Extra        int `json:"extra"`
	PremiumExtra int `json:"premiumExtra"`
}

// Add increments the counter for c. None is ignored.
func (c *Counts) Add(cat Category) {
	switch cat {
	case Skill:
		c.Skill++
	case Arcade:
		c.Arcade++
	case Trivia:
		c.Trivia++
	case Extra:
		c.Extra++
	case PremiumExtra:
		c.PremiumExtra++
	case None:
	}
}

// Get returns the counter for c.
func (c Counts) Get(cat Category) int {
	switch cat {
	case Skill:
		return c.Skill
	case Arcade:
		return c.Arcade
	case Trivia:
		return c.Trivia
	case Extra:
		return c.Extra
	case PremiumExtra:
		return c.PremiumExtra
	default:
		return 0
	}
}

// Total returns the sum across all categories.
func (c Counts) Total() int {
	return c.Skill + c.Arcade + c.Trivia + c.Extra + c.PremiumExtra
}

// CombinedArcade is arcade + extra + premium extra, used for milestone thresholds.
func (c Counts) CombinedArcade() int {
	return c.Arcade + c.Extra + c.PremiumExtra
}

// Detail is a classified badge retained for user-facing breakdowns.
type Detail struct {
	Name               string   `json:"name"`
	Type               Category `json:"type"`
	EarnedDate         string   `json:"earnedDate"`
	CountsForMilestone bool     `json:"countsForMilestone"`
}

// Details groups retained badges by category.
type Details struct {
	Skill   []Detail `json:"skill"`
	Arcade  []Detail `json:"arcade"`
	Trivia  []Detail `json:"trivia"`
	Extra   []Detail `json:"extra"`
	Premium []Detail `json:"premium"`
}

// Append adds d to the list for its category.
func (d *Details) Append(det Detail) {
	switch det.Type {
	case Skill:
		d.Skill = append(d.Skill, det)
	case Arcade:
		d.Arcade = append(d.Arcade, det)
	case Trivia:
		d.Trivia = append(d.Trivia, det)
	case Extra:
		d.Extra = append(d.Extra, det)
	case PremiumExtra:
		d.Premium = append(d.Premium, det)
	case None:
	}
}

// NewDetails returns Details with non-nil lists so they encode as [] rather than null.
func NewDetails() *Details {
	return &Details{
		Skill:   []Detail{},
		Arcade:  []Detail{},
		Trivia:  []Detail{},
		Extra:   []Detail{},
		Premium: []Detail{},
	}
}

// Package catalog holds the reference table of known skill badges. It is
// loaded once and never mutated; the classifier uses it for exact-name
// lookup and the profile report uses it to list badges not yet earned.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/htmlutil"
)

//go:embed skill_badges.json
var defaultCatalog []byte

// ErrEmpty is returned when a catalog document lists no badges.
var ErrEmpty = errors.New("catalog has no badges")

// Badge levels.
const (
	LevelIntroductory = "Introductory"
	LevelIntermediate = "Intermediate"
)

// Badge is one catalog entry.
type Badge struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Level     string `json:"level"`
	Cost      string `json:"cost"`
	Keyword   string `json:"keyword"`
	Duration  string `json:"duration"`
	LabsCount string `json:"labs_count"`
}

// Minutes returns the parsed Duration in minutes.
func (b Badge) Minutes() int { return ParseDuration(b.Duration) }

// Labs returns LabsCount as an integer, 0 when unparseable.
func (b Badge) Labs() int {
	n, err := strconv.Atoi(strings.TrimSpace(b.LabsCount))
	if err != nil {
		return 0
	}
	return n
}

// Catalog is an immutable set of skill badges keyed by normalized name.
type Catalog struct {
	byName map[string]int
	badges []Badge
}

// Empty returns a catalog that matches nothing.
func Empty() *Catalog {
	return &Catalog{byName: map[string]int{}}
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("embedded catalog: " + err.Error())
	}
	return c
}

// Load reads a catalog JSON document from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog JSON document.
func Parse(data []byte) (*Catalog, error) {
	var badges []Badge
	if err := json.Unmarshal(data, &badges); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(badges) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{badges: badges, byName: make(map[string]int, len(badges))}
	for i, b := range badges {
		c.byName[htmlutil.NormalizeTitle(b.Name)] = i
	}
	return c, nil
}

// Contains reports whether title names a catalog badge. Titles are compared
// after lowercasing and collapsing whitespace.
func (c *Catalog) Contains(title string) bool {
	if c == nil {
		return false
	}
	_, ok := c.byName[htmlutil.NormalizeTitle(title)]
	return ok
}

// Len returns the number of badges.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.badges)
}

// All returns a copy of every badge in document order.
func (c *Catalog) All() []Badge {
	if c == nil {
		return nil
	}
	return append([]Badge(nil), c.badges...)
}

// Sort orders for Missing.
const (
	SortName     = "name"
	SortDuration = "duration"
	SortLabs     = "labs"
)

// Filter selects and orders the gap report.
type Filter struct {
	Level string // "", "all", LevelIntroductory or LevelIntermediate
	Sort  string // SortName (default), SortDuration or SortLabs
}

// Missing returns catalog badges whose names are not in earned.
func (c *Catalog) Missing(earned []string, f Filter) []Badge {
	have := make(map[string]bool, len(earned))
	for _, name := range earned {
		have[htmlutil.NormalizeTitle(name)] = true
	}

	out := []Badge{}
	for _, b := range c.All() {
		if have[htmlutil.NormalizeTitle(b.Name)] {
			continue
		}
		if f.Level != "" && f.Level != "all" && !strings.EqualFold(b.Level, f.Level) {
			continue
		}
		out = append(out, b)
	}

	switch f.Sort {
	case SortDuration:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	case SortLabs:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Labs() < out[j].Labs() })
	default:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	}
	return out
}

var (
	hoursPattern   = regexp.MustCompile(`(\d+)\s*jam`)
	minutesPattern = regexp.MustCompile(`(\d+)\s*menit`)
)

// ParseDuration converts strings like "2 jam 30 menit" to minutes.
func ParseDuration(s string) int {
	total := 0
	if m := hoursPattern.FindStringSubmatch(s); len(m) > 1 {
		h, _ := strconv.Atoi(m[1]) //nolint:errcheck // digits only
		total += h * 60
	}
	if m := minutesPattern.FindStringSubmatch(s); len(m) > 1 {
		n, _ := strconv.Atoi(m[1]) //nolint:errcheck // digits only
		total += n
	}
	return total
}

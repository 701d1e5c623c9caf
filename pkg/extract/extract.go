// Package extract parses profile page HTML into badge records.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/htmlutil"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/profile"
)

// Selectors for the badge page markup. The page is not under our control, so
// each field has a primary selector and fallbacks tried in order.
const (
	badgeSelector = ".profile-badge"
	modalSelector = "ql-button[modal]"
	hrefSelector  = "ql-button[href]"
)

// selector names a CSS query; first restricts it to the first match.
type selector struct {
	css   string
	first bool
}

var (
	titleSelectors = []selector{{css: ".ql-title-medium"}, {css: ".badge-title"}}
	nameSelectors  = []selector{
		{css: "h1.ql-display-small"},
		{css: ".profile-name"},
		{css: "h1.profile-name"},
		{css: ".ql-headline-1", first: true},
		{css: `[class*="profile"] h1`, first: true},
	}
	avatarSelectors = []string{
		"ql-avatar.profile-avatar",
		".profile-avatar img",
		"img.profile-avatar",
	}

	earnedPattern = regexp.MustCompile(`Earned\s+([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
)

// Badges returns one record per badge card in document order.
func Badges(body []byte) ([]badge.Record, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}
	return records(doc), nil
}

// Profile parses the whole page: display name, avatar and badges.
// A page without badges that reads as an error page yields
// profile.ErrProfileNotFound; upstream serves those with status 200.
func Profile(body []byte, rawURL string) (*profile.Profile, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}
	recs := records(doc)
	if len(recs) == 0 && htmlutil.IsNotFound(doc.Find("title").Text()+" "+doc.Find("h1").Text()) {
		return nil, fmt.Errorf("%s: %w", rawURL, profile.ErrProfileNotFound)
	}
	return &profile.Profile{
		URL:       rawURL,
		ID:        profile.ID(rawURL),
		Name:      firstText(doc.Selection, nameSelectors),
		AvatarURL: firstAttr(doc.Selection, avatarSelectors, "src"),
		Badges:    recs,
	}, nil
}

// EarnedDateText returns the "<Month> <Day>, <Year>" part of the first
// "Earned ..." phrase in text, or "".
func EarnedDateText(text string) string {
	if m := earnedPattern.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return ""
}

func parse(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse profile html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

func records(doc *goquery.Document) []badge.Record {
	cards := doc.Find(badgeSelector)
	out := make([]badge.Record, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		out = append(out, record(card))
	})
	return out
}

func record(card *goquery.Selection) badge.Record {
	rec := badge.Record{
		Title:          firstText(card, titleSelectors),
		EarnedDateText: EarnedDateText(nodesText(card)),
	}
	if card.Find(modalSelector).Length() > 0 {
		rec.HasGameModalLink = true
		rec.GameHref, _ = card.Find(hrefSelector).Attr("href")
	}
	return rec
}

// firstText returns the trimmed text of the first selector that yields any.
func firstText(s *goquery.Selection, selectors []selector) string {
	for _, sel := range selectors {
		found := s.Find(sel.css)
		if sel.first {
			found = found.First()
		}
		if text := strings.TrimSpace(found.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, selectors []string, attr string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func nodesText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		b.WriteString(htmlutil.Text(n))
	}
	return b.String()
}

// Package htmlutil provides HTML text helpers for badge page scraping.
package htmlutil

import (
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
)

var multiSpacePattern = regexp.MustCompile(`\s+`)

// CollapseSpace replaces every whitespace run (including newlines) with a
// single space and trims the result.
func CollapseSpace(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(s, " "))
}

// NormalizeTitle lowercases s and collapses its whitespace.
// Catalog lookups compare titles in this form.
func NormalizeTitle(s string) string {
	return CollapseSpace(strings.ToLower(s))
}

// Text returns the concatenated text content of n and its descendants.
func Text(n *nethtml.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// IsNotFound detects "page not found" or private-profile pages.
func IsNotFound(text string) bool {
	lower := strings.ToLower(text)
	patterns := []string{
		"404 not found",
		"page not found",
		"error 404",
		"the page you were looking for doesn't exist",
		"profile not found",
		"this profile is private",
		"this profile is not available",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Package profile defines the parsed form of a public badge profile page.
package profile

import (
	"errors"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/badge"
)

// Common errors returned while fetching or validating profiles.
var (
	ErrInvalidURL      = errors.New("not a public badge profile URL")
	ErrProfileNotFound = errors.New("profile not found")
	ErrRateLimited     = errors.New("rate limited")
)

// Profile represents the data extracted from one profile page.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Profile struct {
	URL       string `json:",omitempty"` // URL as fetched
	ID        string `json:",omitempty"` // public_profiles/<id> segment
	Name      string `json:",omitempty"` // Display name shown on the page
	AvatarURL string `json:",omitempty"`
	Error     string `json:",omitempty"` // Set when the page could not be fetched

	Badges []badge.Record `json:"-"` // Badge cards in document order
}

var idPattern = regexp.MustCompile(`public_profiles/([^/?#]+)`)

// ValidURL reports whether rawURL looks like a public Skills Boost profile.
func ValidURL(rawURL string) bool {
	return strings.Contains(rawURL, "cloudskillsboost.google") && strings.Contains(rawURL, "public_profiles")
}

// ID extracts the profile identifier from a profile URL, or "" if absent.
func ID(rawURL string) string {
	if m := idPattern.FindStringSubmatch(rawURL); len(m) > 1 {
		return m[1]
	}
	return ""
}

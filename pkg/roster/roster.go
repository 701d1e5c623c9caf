// Package roster parses participant tables and derives the content hash used
// as the leaderboard cache key.
package roster

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingColumns is returned when a table has no recognizable name and URL columns.
var ErrMissingColumns = errors.New("roster: name and url columns are required")

// Column headers recognized case-insensitively.
var (
	nameHeaders = []string{"nama peserta", "name", "nama", "participant"}
	urlHeaders  = []string{"url profil google cloud skills boost", "url", "profile url", "profile"}
)

// Participant is one roster row. URL may be empty; such rows score zero.
type Participant struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Roster is an ordered list of participants.
type Roster []Participant

// Parse reads one or more CSV tables and unions their rows in order.
func Parse(tables ...[]byte) (Roster, error) {
	var out Roster
	for i, t := range tables {
		rows, err := parseTable(bytes.NewReader(t))
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i+1, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func parseTable(r io.Reader) (Roster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	nameCol, urlCol := columnIndex(header, nameHeaders), columnIndex(header, urlHeaders)
	if nameCol < 0 || urlCol < 0 {
		return nil, ErrMissingColumns
	}

	var out Roster
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		p := Participant{Name: field(rec, nameCol), URL: field(rec, urlCol)}
		if p.Name == "" && p.URL == "" {
			continue
		}
		out = append(out, p)
	}
}

func columnIndex(header []string, names []string) int {
	for _, want := range names {
		for i, h := range header {
			h = strings.TrimPrefix(h, "\ufeff")
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Hash returns the hex SHA-256 of the roster's canonical form. Two uploads
// with the same rows in the same order hash identically regardless of CSV
// quoting, header spelling or surrounding whitespace.
func (r Roster) Hash() string {
	h := sha256.New()
	for _, p := range r {
		h.Write([]byte(p.Name)) //nolint:errcheck // hash writes never fail
		h.Write([]byte{'\t'})   //nolint:errcheck // hash writes never fail
		h.Write([]byte(p.URL))  //nolint:errcheck // hash writes never fail
		h.Write([]byte{'\n'})   //nolint:errcheck // hash writes never fail
	}
	return hex.EncodeToString(h.Sum(nil))
}

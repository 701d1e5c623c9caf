package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const smallCatalog = `[
  {"name": "Get Started with Looker", "level": "Introductory", "duration": "2 jam", "labs_count": "5"},
  {"name": "Build a Secure Google Cloud Network", "level": "Intermediate", "duration": "3 jam 45 menit", "labs_count": "5"},
  {"name": "Analyze Images with the Cloud Vision API", "level": "Introductory", "duration": "1 jam 30 menit", "labs_count": "4"}
]`

func TestDefault(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}
	if !c.Contains("Build a Secure Google Cloud Network") {
		t.Error("default catalog missing a known badge")
	}
}

func TestContainsNormalizes(t *testing.T) {
	c, err := Parse([]byte(smallCatalog))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tests := []struct {
		title string
		want  bool
	}{
		{"Get Started with Looker", true},
		{"  get   STARTED with\nlooker ", true},
		{"Get Started with Looker Studio", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.Contains(tt.title); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestEmptyAndNil(t *testing.T) {
	if Empty().Contains("Get Started with Looker") {
		t.Error("Empty() should match nothing")
	}
	var c *Catalog
	if c.Contains("x") || c.Len() != 0 || c.All() != nil {
		t.Error("nil catalog should be inert")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte(`[]`)); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse([]) error = %v, want ErrEmpty", err)
	}
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Error("Parse(invalid) should fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badges.json")
	if err := os.WriteFile(path, []byte(smallCatalog), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestMissing(t *testing.T) {
	c, err := Parse([]byte(smallCatalog))
	if err != nil {
		t.Fatal(err)
	}
	earned := []string{"get started with LOOKER"}

	names := func(bs []Badge) []string {
		out := []string{}
		for _, b := range bs {
			out = append(out, b.Name)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by name", Filter{}, []string{"Analyze Images with the Cloud Vision API", "Build a Secure Google Cloud Network"}},
		{"by duration", Filter{Sort: SortDuration}, []string{"Analyze Images with the Cloud Vision API", "Build a Secure Google Cloud Network"}},
		{"intermediate only", Filter{Level: LevelIntermediate}, []string{"Build a Secure Google Cloud Network"}},
		{"all levels by labs", Filter{Level: "all", Sort: SortLabs}, []string{"Analyze Images with the Cloud Vision API", "Build a Secure Google Cloud Network"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, names(c.Missing(earned, tt.filter))); diff != "" {
				t.Errorf("Missing() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2 jam 30 menit", 150},
		{"45 menit", 45},
		{"1 jam", 60},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

package filter

import (
	"testing"
	"time"

	"github.com/flashlab/termscp/internal/models"
)

func entryList(names ...string) []models.Entry {
	entries := make([]models.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, models.NewFile("/tmp/"+name, name, 10, time.Now(), nil))
	}
	return entries
}

func names(entries []models.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestApply(t *testing.T) {
	entries := entryList("results.dat", "debug.log", "notes.txt", "final_results.txt")

	tests := []struct {
		name     string
		config   Config
		expected []string
	}{
		{
			name:     "no filters returns all",
			config:   Config{},
			expected: []string{"results.dat", "debug.log", "notes.txt", "final_results.txt"},
		},
		{
			name:     "include by extension",
			config:   Config{Include: []string{"*.txt"}},
			expected: []string{"notes.txt", "final_results.txt"},
		},
		{
			name:     "exclude wins over include",
			config:   Config{Include: []string{"*.txt"}, Exclude: []string{"final*"}},
			expected: []string{"notes.txt"},
		},
		{
			name:     "search terms must all match",
			config:   Config{Search: []string{"results", "final"}},
			expected: []string{"final_results.txt"},
		},
		{
			name:     "search is case-insensitive",
			config:   Config{Search: []string{"RESULTS"}},
			expected: []string{"results.dat", "final_results.txt"},
		},
		{
			name:     "multiple includes",
			config:   Config{Include: []string{"*.dat", "*.log"}},
			expected: []string{"results.dat", "debug.log"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(Apply(entries, tt.config))
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("got %v, want %v", got, tt.expected)
					break
				}
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		path     string
		pattern  string
		expected bool
	}{
		{"file.txt", "*.txt", true},
		{"file.dat", "*.txt", false},
		{"a/b/c/results.dat", "**/results.dat", true},
		{"a/b/c/results.dat", "*.dat", true}, // base name match
		{"run_1/output/res.dat", "run_*/output/*", true},
		{"run_1/other/res.dat", "run_*/output/*", false},
		{"deep/tree/anything.bin", "deep/**", true},
		{"file.txt", "file.?xt", false},
		{"file.txt", "file.t?t", true},
		{"file.txt", "[", false}, // invalid pattern matches nothing
	}

	for _, tt := range tests {
		t.Run(tt.path+"_"+tt.pattern, func(t *testing.T) {
			got := MatchPattern(tt.path, tt.pattern)
			if got != tt.expected {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestValidPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"*.txt", true},
		{"**/results.dat", true},
		{"run_?/output/*", true},
		{"[a-z].dat", true},
		{"[", false},
		{"a[", false},
	}
	for _, tt := range tests {
		if got := ValidPattern(tt.pattern); got != tt.want {
			t.Errorf("ValidPattern(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestParsePatternList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"*.dat", []string{"*.dat"}},
		{"*.dat,*.txt", []string{"*.dat", "*.txt"}},
		{" *.dat , *.txt ", []string{"*.dat", "*.txt"}},
		{",,", []string{}},
	}

	for _, tt := range tests {
		got := ParsePatternList(tt.input)
		if len(got) != len(tt.expected) {
			t.Errorf("ParsePatternList(%q) = %v, want %v", tt.input, got, tt.expected)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("ParsePatternList(%q) = %v, want %v", tt.input, got, tt.expected)
				break
			}
		}
	}
}

// Package filter provides reusable file filtering logic.
// It is shared by the find command and the transfer queue so both
// interpret patterns the same way.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flashlab/termscp/internal/models"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style). Empty means include all.
	// Example: []string{"*.dat", "*.txt"}
	Include []string

	// Exclude patterns (glob-style). Takes precedence over Include.
	// Example: []string{"debug*", "temp*"}
	Exclude []string

	// Search terms (case-insensitive substring match).
	// An entry must match ALL search terms to be included.
	Search []string
}

// Empty reports whether the configuration filters nothing.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.Search) == 0
}

// Apply filters a directory listing based on the filter configuration.
func Apply(entries []models.Entry, config Config) []models.Entry {
	if config.Empty() {
		return entries
	}

	filtered := make([]models.Entry, 0, len(entries))
	for _, entry := range entries {
		if Matches(entry.Name, config) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Matches checks if a name matches the filter configuration.
// Exclude patterns win over include patterns; search terms are
// case-insensitive substrings that must all be present.
func Matches(name string, config Config) bool {
	for _, pattern := range config.Exclude {
		if MatchPattern(name, pattern) {
			return false
		}
	}

	if len(config.Include) > 0 {
		included := false
		for _, pattern := range config.Include {
			if MatchPattern(name, pattern) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	if len(config.Search) > 0 {
		lowerName := strings.ToLower(name)
		for _, term := range config.Search {
			if !strings.Contains(lowerName, strings.ToLower(term)) {
				return false
			}
		}
	}

	return true
}

// MatchPattern matches a path or name against a glob pattern.
// Patterns support *, ?, character classes and ** for crossing
// directory boundaries. Both sides are normalized to forward slashes
// so Windows paths match the same patterns. Invalid patterns match
// nothing.
func MatchPattern(path, pattern string) bool {
	path = filepath.ToSlash(path)
	pattern = filepath.ToSlash(pattern)

	if matched, _ := doublestar.Match(pattern, path); matched {
		return true
	}
	// Match against the base name too, so "*.txt" finds nested files
	if base := filepath.Base(path); base != path {
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// ValidPattern reports whether pattern is well-formed glob syntax.
func ValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(filepath.ToSlash(pattern))
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.dat,*.txt" -> []string{"*.dat", "*.txt"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}

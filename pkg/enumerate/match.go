package enumerate

import (
	"fmt"
	"path"
	"strings"
)

// MatchPattern reports whether a slash separated relative path matches a
// glob pattern:
//
//   - "*", "?" and "[...]" match within one path segment (path.Match rules)
//   - "**" as a whole segment matches zero or more segments
//   - a pattern without "/" matches the base name at any depth, so "*.jpg"
//     selects every JPEG in the tree
//
// Malformed patterns never match; ValidatePattern reports them up front.
func MatchPattern(pattern, relPath string) bool {
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "/") {
		if pattern == "**" {
			return true
		}
		matched, err := path.Match(pattern, path.Base(relPath))
		return err == nil && matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchSegments(pattern, segments []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for len(pattern) > 0 && pattern[0] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(segments); i++ {
				if matchSegments(pattern, segments[i:]) {
					return true
				}
			}
			return false
		}
		if len(segments) == 0 {
			return false
		}
		matched, err := path.Match(pattern[0], segments[0])
		if err != nil || !matched {
			return false
		}
		pattern, segments = pattern[1:], segments[1:]
	}
	return len(segments) == 0
}

// MatchAnyPattern reports whether relPath matches any of patterns.
func MatchAnyPattern(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if MatchPattern(p, relPath) {
			return true
		}
	}
	return false
}

// ValidatePattern returns an error for a malformed glob.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	for _, seg := range strings.Split(pattern, "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
	}
	return nil
}

package scanner

import (
	"fmt"
	"path"
	"strings"
)

// PatternMatcher filters asset keys with include and exclude globs.
//
// Patterns use path.Match syntax per segment plus "**", which matches any
// number of segments. A pattern without a slash matches the base name at
// any depth, and a pattern ending in a slash matches everything under that
// directory.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// ShouldIncludeFile reports whether key survives the patterns. Excludes
// take precedence; when include patterns are given the key must match one.
func (pm *PatternMatcher) ShouldIncludeFile(
	key string,
	includePatterns []string,
	excludePatterns []string,
) bool {
	for _, pattern := range excludePatterns {
		if pm.matchesPattern(key, pattern) {
			return false
		}
	}

	if len(includePatterns) == 0 {
		return true
	}
	for _, pattern := range includePatterns {
		if pm.matchesPattern(key, pattern) {
			return true
		}
	}
	return false
}

func (pm *PatternMatcher) matchesPattern(key, pattern string) bool {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "/")
	if pattern == "" {
		return false
	}

	if strings.HasSuffix(pattern, "/") {
		dir := strings.TrimSuffix(pattern, "/")
		return strings.HasPrefix(key, dir+"/")
	}

	if !strings.Contains(pattern, "/") {
		if ok, _ := path.Match(pattern, path.Base(key)); ok {
			return true
		}
	}

	return matchSegments(strings.Split(pattern, "/"), strings.Split(key, "/"))
}

func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], parts[0])
		if err != nil || !ok {
			return false
		}
		pattern, parts = pattern[1:], parts[1:]
	}
	return len(parts) == 0
}

// ValidatePatterns checks that every pattern is syntactically correct.
func (pm *PatternMatcher) ValidatePatterns(patterns []string) []error {
	var errs []error

	for i, pattern := range patterns {
		for _, segment := range strings.Split(strings.Trim(pattern, "/"), "/") {
			if segment == "**" {
				continue
			}
			if _, err := path.Match(segment, "probe"); err != nil {
				errs = append(errs, &PatternError{Pattern: pattern, Index: i, Err: err})
				break
			}
		}
	}

	return errs
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

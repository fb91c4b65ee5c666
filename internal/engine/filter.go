package engine

import (
	"path"
	"strings"
)

// FilterExcluded drops repositories matching any exclude pattern. Order is kept.
func FilterExcluded(fullNames []string, exclude []string) []string {
	if len(exclude) == 0 {
		return fullNames
	}
	filtered := make([]string, 0, len(fullNames))
	for _, fullName := range fullNames {
		_, repoName, _ := strings.Cut(fullName, "/")
		if matchesAnyPattern(exclude, fullName, repoName) {
			continue
		}
		filtered = append(filtered, fullName)
	}
	return filtered
}

func matchesAnyPattern(patterns []string, fullName, repoName string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, repoName) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullName, repoName string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	// If the pattern includes an owner component (contains '/'), match against full name.
	// Otherwise match against repo name only so patterns like "*-archive" work.
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullName)
		return matched
	}
	matched, _ := path.Match(pattern, repoName)
	return matched
}

package target

import (
	"path"
	"strings"
)

// Filter narrows targets by include/exclude patterns.
//
// Patterns use Go path.Match syntax. A pattern containing '/' matches
// OWNER/NAME; otherwise it matches NAME only, so "zenoh-plugin-*" works
// without spelling out the owner.
func Filter(targets []Target, include, exclude []string) []Target {
	if len(include) == 0 && len(exclude) == 0 {
		return targets
	}

	var filtered []Target
	for _, t := range targets {
		// If Include is set, must match at least one
		if len(include) > 0 && !matchesAnyPattern(include, t.FullName(), t.Name) {
			continue
		}
		// If Exclude is set, must not match any
		if len(exclude) > 0 && matchesAnyPattern(exclude, t.FullName(), t.Name) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

func matchesAnyPattern(patterns []string, fullName, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullName, name string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, strings.ToLower(fullName))
		return matched
	}
	matched, _ := path.Match(pattern, strings.ToLower(name))
	return matched
}

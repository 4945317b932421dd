// Package globmatch implements the "*" / "?" wildcard matching used for
// secret-key include globs.
package globmatch

import "strings"

// Match reports whether name matches the glob pattern, case-insensitively.
// "*" matches any run of characters (including none), "?" matches exactly
// one character. There is no character-class or brace support — the spec's
// key/service glob vocabulary is limited to these two wildcards.
func Match(pattern, name string) bool {
	return match(strings.ToLower(pattern), strings.ToLower(name))
}

func match(pattern, name string) bool {
	// Classic DP-free iterative glob matcher with wildcard backtracking.
	var p, n int
	var star = -1
	var match0 int

	for n < len(name) {
		if p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]) {
			p++
			n++
			continue
		}
		if p < len(pattern) && pattern[p] == '*' {
			star = p
			match0 = n
			p++
			continue
		}
		if star != -1 {
			p = star + 1
			match0++
			n = match0
			continue
		}
		return false
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// MatchAny reports whether name matches any of patterns. An empty patterns
// slice matches everything (the "no include filter configured" case).
func MatchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

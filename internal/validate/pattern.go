package validate

import (
	"regexp"
	"strings"
)

const maxPatternLen = 200

// adjacentQuantified flags two quantified wildcards/classes back to back,
// e.g. ".*.*" or ".+.+" or a bracket class flanked by quantifiers on both
// sides — classic catastrophic-backtracking bait.
var adjacentQuantified = regexp.MustCompile(`(\.[*+]){2,}|\][*+?]\[[^\]]*\][*+?]`)

// quantifiedAlternation flags a quantifier applied to a group containing
// alternation, e.g. "(a|b)+".
var quantifiedAlternation = regexp.MustCompile(`\([^)]*\|[^)]*\)[*+]`)

// doubleBoundedQuantifier flags two consecutive {n,m} quantifiers.
var doubleBoundedQuantifier = regexp.MustCompile(`\{[0-9]+,[0-9]*\}\{[0-9]+,[0-9]*\}`)

// Pattern validates a regex pattern against length limits and a set of
// heuristic signatures of nested/ambiguous quantification known to trigger
// catastrophic backtracking in the standard library's RE2-derived engine
// under pathological adversarial input, or which are simply unreasonable for
// a log-grep use case. Compile is attempted last so a rejected pattern never
// reaches regexp.Compile.
func Pattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxPatternLen {
		return nil, errf("pattern_too_long", "pattern exceeds %d characters", maxPatternLen)
	}
	if adjacentQuantified.MatchString(pattern) {
		return nil, errf("dangerous_pattern", "pattern %q has adjacent quantified wildcards", pattern)
	}
	if quantifiedAlternation.MatchString(pattern) {
		return nil, errf("dangerous_pattern", "pattern %q quantifies an alternation group", pattern)
	}
	if doubleBoundedQuantifier.MatchString(pattern) {
		return nil, errf("dangerous_pattern", "pattern %q has consecutive bounded quantifiers", pattern)
	}
	if openGroups(pattern) > 3 && hasQuantifier(pattern) {
		return nil, errf("dangerous_pattern", "pattern %q combines more than 3 groups with a quantifier", pattern)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errf("invalid_pattern", "pattern %q failed to compile: %v", pattern, err)
	}
	return re, nil
}

// PatternCaseInsensitive is Pattern with the case-insensitive flag applied
// via the standard (?i) inline modifier, which RE2 honors without changing
// the pattern's structure (so the heuristics above still see the raw text).
func PatternCaseInsensitive(pattern string, insensitive bool) (*regexp.Regexp, error) {
	if !insensitive {
		return Pattern(pattern)
	}
	re, err := Pattern(pattern)
	if err != nil {
		return nil, err
	}
	return regexp.Compile("(?i)" + re.String())
}

func openGroups(pattern string) int {
	n := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' {
			i++
			continue
		}
		if pattern[i] == '(' {
			n++
		}
	}
	return n
}

func hasQuantifier(pattern string) bool {
	return strings.ContainsAny(pattern, "*+") || strings.Contains(pattern, "{")
}
